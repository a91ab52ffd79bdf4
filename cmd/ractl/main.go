package main

import (
	"context"
	"fmt"
	"os"

	"github.com/resource-allocator/ractl/pkg/ractl/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := cmd.DefaultConfig()
	if err := cmd.Run(context.Background(), cfg, args); err != nil {
		_, _ = fmt.Fprintf(cfg.ErrWriter, "Error: %v\n", err)
		return 1
	}
	return 0
}
