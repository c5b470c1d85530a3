package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nomade/config"
	"nomade/database"
)

var rootCmd = &cobra.Command{
	Use:   "nomade",
	Short: "Offline warehouse client: local store, snapshot import and pick ledger",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadConfig(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute はコマンドを実行します。main から呼ばれます。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore は設定のDBを開き、足りないテーブルを作成します。
func openStore(ctx context.Context) (*database.Store, error) {
	cfg := config.GetConfig()
	store, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func parseIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
