package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"nomade/loader"
)

var resetForce bool

var dbResetCmd = &cobra.Command{
	Use:   "db:reset",
	Short: "Recreate the local tables (operator work survives unless --force)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := loader.InitDatabase(cmd.Context(), store, resetForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database reset (force=%t)\n", resetForce)
		return nil
	},
}

func init() {
	dbResetCmd.Flags().BoolVar(&resetForce, "force", false, "Also drop movements, tracking and delivery-request drafts")
	rootCmd.AddCommand(dbResetCmd)
}
