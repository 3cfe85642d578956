package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, closeApp, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer closeApp()

		if err := app.Kratos.SignOut(ctx); err != nil {
			printer.Warning("The identity provider did not confirm the sign-out: %v", err)
		}
		printer.Success("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current auth state",
	Long: `Bootstrap the session the way the app does on startup and show the result:
the stored session, else one refresh attempt, else signed out.

Examples:
  gymctl whoami
  gymctl whoami --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		app, closeApp, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer closeApp()

		state := app.Session.Start(ctx)

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		}
		return printer.RenderAuthState(state)
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	whoamiCmd.Flags().Bool("json", false, "output as JSON")
}
