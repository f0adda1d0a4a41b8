package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare meter aggregates with the payment and vend records",
}

var reconcileDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "List meters whose aggregate totals disagree with the records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *App) error {
			drift, err := app.Reconciler.FindDrift(ctx)
			if err != nil {
				return err
			}
			if len(drift) == 0 {
				fmt.Println("no drift")
				return nil
			}
			return printJSON(drift)
		})
	},
}

var (
	repairMeter string
	repairAll   bool
	revendLimit int
)

var reconcileRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Recompute aggregate totals from the records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (repairMeter == "") == !repairAll {
			return errors.New("pass exactly one of --meter or --all")
		}
		return withApp(func(ctx context.Context, app *App) error {
			if repairAll {
				repaired, err := app.Reconciler.RepairAll(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("repaired %d meter(s)\n", repaired)
				return nil
			}
			agg, err := app.Reconciler.Repair(ctx, repairMeter)
			if err != nil {
				return err
			}
			return printJSON(agg)
		})
	},
}

var reconcileRevendCmd = &cobra.Command{
	Use:   "revend",
	Short: "Vend payments that never got a token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *App) error {
			report, err := app.Reconciler.Revend(ctx, app.Pipeline, revendLimit)
			if err != nil {
				return err
			}
			app.Bus.Wait()
			return printJSON(report)
		})
	},
}

func init() {
	reconcileRepairCmd.Flags().StringVar(&repairMeter, "meter", "", "meter to repair")
	reconcileRepairCmd.Flags().BoolVar(&repairAll, "all", false, "repair every drifted meter")
	reconcileRevendCmd.Flags().IntVar(&revendLimit, "limit", 100, "maximum payments to vend")

	reconcileCmd.AddCommand(reconcileDriftCmd)
	reconcileCmd.AddCommand(reconcileRepairCmd)
	reconcileCmd.AddCommand(reconcileRevendCmd)
}
