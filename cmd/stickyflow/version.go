package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/stickyflow/pkg/schema"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/stickyflow/
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "stickyflow %s\n", version)
			_, _ = fmt.Fprintf(out, "grammar %s, expander %s\n", schema.GrammarVersion, schema.ExpanderVersion)
		},
	}
}
