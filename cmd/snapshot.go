package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nomade/config"
	"nomade/loader"
	"nomade/reconcile"
	"nomade/snapshot"
)

var (
	snapshotFile    string
	snapshotCSV     []string
	snapshotPartial bool
)

var snapshotImportCmd = &cobra.Command{
	Use:   "snapshot:import",
	Short: "Import a snapshot payload (JSON, optionally merged with CSV collections)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		path := snapshotFile
		if path == "" {
			path = cfg.SnapshotPath
		}

		load := func() (snapshot.Payload, error) {
			p, err := loader.LoadPayloadFile(path)
			if err != nil {
				return nil, err
			}
			for _, spec := range snapshotCSV {
				collection, file, ok := strings.Cut(spec, "=")
				if !ok || !snapshot.Known(collection) {
					return nil, fmt.Errorf("invalid --csv %q (want collection=path)", spec)
				}
				recs, err := loader.LoadCSVCollection(file, cfg.CSVEncoding)
				if err != nil {
					return nil, err
				}
				p.Merge(snapshot.Payload{collection: recs})
			}
			return p, nil
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		engine := reconcile.New(store, config.Rights{})

		if snapshotPartial {
			p, err := load()
			if err != nil {
				return err
			}
			n, err := engine.ImportPartialRefArticles(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reference articles updated: %d\n", n)
			return nil
		}

		p, err := load()
		if err != nil {
			return err
		}
		report, err := engine.Import(cmd.Context(), p)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "=== Import %s ===\n", report.RunID)
		for _, st := range report.Steps {
			fmt.Fprintf(out, "%-18s %d\n", st.Name, st.Rows)
		}
		if report.AnomaliesSkipped {
			fmt.Fprintln(out, "anomalies          skipped")
		}
		return nil
	},
}

func init() {
	snapshotImportCmd.Flags().StringVarP(&snapshotFile, "file", "f", "", "Snapshot JSON file (default: snapshotPath from config)")
	snapshotImportCmd.Flags().StringArrayVar(&snapshotCSV, "csv", nil, "Merge a CSV export into a collection: collection=path (repeatable)")
	snapshotImportCmd.Flags().BoolVar(&snapshotPartial, "partial-ref-articles", false, "Only refresh the reference articles that are resent")
	rootCmd.AddCommand(snapshotImportCmd)
}
