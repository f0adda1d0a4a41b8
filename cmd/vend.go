package cmd

import (
	"context"

	"github.com/spf13/cobra"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/tokengen"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
)

var (
	vendMeter  string
	vendPhone  string
	vendAmount string
)

var vendCmd = &cobra.Command{
	Use:   "vend",
	Short: "Vend a token for an amount paid outside the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := tokengen.ParseAmount(vendAmount)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *App) error {
			record, err := app.Pipeline.Vend(ctx, vending.VendRequest{
				MeterNumber: vendMeter,
				PhoneNumber: vendPhone,
				Amount:      amount,
			})
			if err != nil {
				appErr, ok := apperrors.IsAppError(err)
				if !ok || record == nil || appErr.Code != apperrors.ErrCodeAggregateUpdateFailed {
					return err
				}
				app.Logger.Warn("vend stored but aggregate is stale; run reconcile repair", "meter_number", vendMeter, "error", err)
			}
			app.Bus.Wait()
			return printJSON(record)
		})
	},
}

func init() {
	vendCmd.Flags().StringVar(&vendMeter, "meter", "", "meter number")
	vendCmd.Flags().StringVar(&vendPhone, "phone", "", "phone number to notify")
	vendCmd.Flags().StringVar(&vendAmount, "amount", "", "amount paid")
	_ = vendCmd.MarkFlagRequired("meter")
	_ = vendCmd.MarkFlagRequired("phone")
	_ = vendCmd.MarkFlagRequired("amount")
}
