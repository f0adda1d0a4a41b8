package cmd

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var darajaCmd = &cobra.Command{
	Use:   "daraja",
	Short: "Talk to the Daraja gateway",
}

var darajaTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Obtain an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *App) error {
			token, err := app.Gateway.GetAccessToken(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"environment":  app.Gateway.Environment(),
				"token_length": len(token),
			})
		})
	},
}

var darajaRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the confirmation and validation URLs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *App) error {
			resp, err := app.Gateway.RegisterURLs(ctx)
			if err != nil {
				return err
			}
			return printJSON(resp)
		})
	},
}

var darajaStatusCmd = &cobra.Command{
	Use:   "status [trans-id]",
	Short: "Query the status of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *App) error {
			resp, err := app.Gateway.QueryTransactionStatus(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(resp)
		})
	},
}

var (
	simulateMeter  string
	simulateAmount string
)

var darajaSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a sandbox payment and vend it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(simulateAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", simulateAmount, err)
		}
		return withApp(func(ctx context.Context, app *App) error {
			result, err := app.Simulator.Simulate(ctx, simulateMeter, amount)
			if err != nil && (result == nil || result.Vend == nil) {
				return err
			}
			if err != nil {
				app.Logger.Warn("simulation completed with stale aggregate", "error", err)
			}
			app.Bus.Wait()
			return printJSON(result)
		})
	},
}

func init() {
	darajaSimulateCmd.Flags().StringVar(&simulateMeter, "meter", "MTR001", "meter number billed")
	darajaSimulateCmd.Flags().StringVar(&simulateAmount, "amount", "100", "amount to pay")

	darajaCmd.AddCommand(darajaTestCmd)
	darajaCmd.AddCommand(darajaRegisterCmd)
	darajaCmd.AddCommand(darajaStatusCmd)
	darajaCmd.AddCommand(darajaSimulateCmd)
}
