package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gofhir/codelists/service"
)

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [codelist...]",
		Short: "Download and normalize codelists (all when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("out"); dir != "" {
				a.cfg.OutputDir = dir
			}
			noCSV, _ := cmd.Flags().GetBool("no-csv")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			ctx := cmd.Context()
			sinks, release, err := a.sinks(ctx, !noCSV)
			if err != nil {
				return err
			}
			defer release()

			updater := service.NewUpdater(a.registry, a.loader(),
				service.WithEngine(a.engine()),
				service.WithSink(sinks),
				service.WithLogger(a.log),
				service.WithDryRun(dryRun),
				service.WithProgress(func(o service.Outcome) {
					status := "ok"
					switch {
					case o.Err != nil:
						status = "failed: " + o.Err.Error()
					case o.Skipped:
						status = "skipped: no source configured"
					case dryRun:
						status = "ok (not written)"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", o.Name, status)
				}),
			)

			report, err := updater.Update(ctx, args...)
			if err != nil {
				return err
			}

			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d codelists failed", len(failed), len(report.Outcomes))
			}
			return nil
		},
	}
	cmd.Flags().String("out", "", "directory for CSV output (default from CODELISTS_OUTPUT_DIR)")
	cmd.Flags().Bool("no-csv", false, "skip writing CSV files")
	cmd.Flags().Bool("dry-run", false, "normalize and report without writing to any sink")
	return cmd
}
