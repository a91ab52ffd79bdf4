package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/resource-allocator/ractl/pkg/ractl/client"
	"github.com/resource-allocator/ractl/pkg/ractl/output"
)

func completeResources(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return client.ResourceNames(), cobra.ShellCompDirectiveNoFileComp
}

func printResult(rt *runtimeState, obj any) error {
	printer, err := output.NewPrinter(rt.OutputFormat())
	if err != nil {
		return err
	}
	return printer.Print(rt.Writer(), obj)
}

// checkResource validates the name before any login happens.
func checkResource(name string) error {
	_, err := client.Lookup(name)
	return err
}

func newListCommand() *cobra.Command {
	var opts client.ListOptions
	cmd := &cobra.Command{
		Use:               "list RESOURCE",
		Short:             "List all records of a resource",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := checkResource(args[0]); err != nil {
				return err
			}
			c, err := rt.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			items, err := c.List(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return printResult(rt, items)
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of records to return")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of records to skip")
	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "get RESOURCE ID",
		Short:             "Show one record",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := checkResource(args[0]); err != nil {
				return err
			}
			c, err := rt.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			item, err := c.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printResult(rt, item)
		},
	}
}

func newQueryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query RESOURCE KEY=VALUE...",
		Short: "List records whose fields match every KEY=VALUE (case-insensitive)",
		Long: `List records whose fields match every KEY=VALUE. The whole collection is fetched
and filtered locally. Values compare case-insensitively against the field's text form:
null is "None" and booleans are "True" or "False". A record that lacks KEY never matches,
so KEY=None only selects records where the field is present and null.`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := checkResource(args[0]); err != nil {
				return err
			}
			filters, err := parseData(args[1:])
			if err != nil {
				return err
			}
			c, err := rt.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			items, err := c.Query(cmd.Context(), args[0], filters)
			if err != nil {
				return err
			}
			return printResult(rt, items)
		},
	}
}

func newCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "create RESOURCE KEY=VALUE...",
		Short:             "Create a record",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := checkResource(args[0]); err != nil {
				return err
			}
			data, err := parseData(args[1:])
			if err != nil {
				return err
			}
			c, err := rt.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			item, err := c.Create(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			return printResult(rt, item)
		},
	}
}

func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "update RESOURCE ID KEY=VALUE...",
		Short:             "Update fields of a record",
		Args:              cobra.MinimumNArgs(3),
		ValidArgsFunction: completeResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := checkResource(args[0]); err != nil {
				return err
			}
			data, err := parseData(args[2:])
			if err != nil {
				return err
			}
			c, err := rt.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			item, err := c.Update(cmd.Context(), args[0], args[1], data)
			if err != nil {
				return err
			}
			return printResult(rt, item)
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete RESOURCE ID",
		Short:             "Delete a record",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := checkResource(args[0]); err != nil {
				return err
			}
			c, err := rt.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			item, err := c.Delete(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if item == nil {
				item = client.Item{"deleted": args[1]}
			}
			return printResult(rt, item)
		},
	}
}

func newResourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the resource types ractl can manage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			var rows []client.Item
			for _, r := range client.Resources() {
				ops := make([]string, 0, len(r.Operations))
				for _, op := range r.Operations {
					ops = append(ops, string(op))
				}
				rows = append(rows, client.Item{
					"name":       r.Name,
					"path":       r.Path,
					"operations": strings.Join(ops, ","),
				})
			}
			return printResult(rt, rows)
		},
	}
}
