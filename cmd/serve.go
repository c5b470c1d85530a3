package cmd

import (
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"nomade/config"
	"nomade/picking"
	"nomade/reconcile"
	"nomade/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local JSON API used by the handheld UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		log.Printf("Database %s ready.", cfg.DatabasePath)

		mux := http.NewServeMux()
		server.SetupRoutes(mux, store, picking.NewLedger(store), reconcile.New(store, config.Rights{}))

		log.Printf("Starting server on http://%s", addr)
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: listenAddr from config)")
	rootCmd.AddCommand(serveCmd)
}
