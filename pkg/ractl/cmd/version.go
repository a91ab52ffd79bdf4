package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resource-allocator/ractl/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show ractl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if rt.outputFormat == "" {
				_, _ = fmt.Fprintln(rt.Writer(), info.String())
				return nil
			}
			return printResult(rt, info)
		},
	}
}
