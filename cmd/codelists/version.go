package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cl "github.com/gofhir/codelists"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cl.UserAgent())
		},
	}
}
