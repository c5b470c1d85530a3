package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"nomade/config"
	"nomade/loader"
	"nomade/picking"
	"nomade/reconcile"
	"nomade/snapshot"
	"nomade/syncer"
)

var (
	syncFile     string
	syncOut      string
	syncSchedule string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Export pending movements, then import the latest snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		path := syncFile
		if path == "" {
			path = cfg.SnapshotPath
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		source := syncer.FileSource{Load: func() (snapshot.Payload, error) {
			return loader.LoadPayloadFile(path)
		}}
		var sink syncer.RecordSink
		if syncOut != "" {
			sink = syncer.FileSink{Path: syncOut}
		}
		s := syncer.New(picking.NewLedger(store), reconcile.New(store, config.Rights{}), source, sink)

		if syncSchedule == "" {
			return runSync(cmd.Context(), cmd, s)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		_, err = c.AddFunc(syncSchedule, func() {
			if err := runSync(ctx, cmd, s); err != nil {
				log.Printf("ERROR: [Sync] scheduled run failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid --schedule %q: %w", syncSchedule, err)
		}
		c.Start()
		log.Printf("INFO: [Sync] scheduled with %q, press Ctrl+C to stop", syncSchedule)

		<-ctx.Done()
		<-c.Stop().Done()
		log.Println("INFO: [Sync] scheduler stopped")
		return nil
	},
}

func runSync(ctx context.Context, cmd *cobra.Command, s *syncer.Syncer) error {
	res, err := s.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent: %d movements\n", res.Sent)
	if res.Report != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Imported: %s (%d steps)\n", res.Report.RunID, len(res.Report.Steps))
	}
	return nil
}

func init() {
	syncCmd.Flags().StringVarP(&syncFile, "file", "f", "", "Snapshot JSON file (default: snapshotPath from config)")
	syncCmd.Flags().StringVarP(&syncOut, "out", "o", "", "Write pending movements to this JSON file")
	syncCmd.Flags().StringVar(&syncSchedule, "schedule", "", "Run repeatedly on a cron schedule, e.g. \"@every 5m\"")
	rootCmd.AddCommand(syncCmd)
}
