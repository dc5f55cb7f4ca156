package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "presencectl",
		Short:         "Operational tooling for the GCM presence service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "presencectl", version)
		},
	})
	root.AddCommand(newCheckCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newTopologyCmd())
	return root
}
