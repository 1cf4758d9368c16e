package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gofhir/codelists/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect codelist rules",
	}

	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective rules as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("rules")
			reg, err := loadRegistry(path)
			if err != nil {
				return err
			}
			return rules.Encode(cmd.OutOrStdout(), reg)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := rules.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d codelists OK\n", args[0], reg.Len())
			return nil
		},
	}

	cmd.AddCommand(printCmd, validateCmd)
	return cmd
}
