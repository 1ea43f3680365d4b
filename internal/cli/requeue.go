package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/erc20-detector/internal/control"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue [contract_id...]",
	Short: "Move contracts back to PENDING_ANALYSIS (all FAILED contracts when no id is given)",
	RunE:  runRequeue,
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid contract id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runRequeue(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	store, db, err := control.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			_ = db.Close()
		}()
	}

	n, err := store.Requeue(ctx, ids)
	if err != nil {
		return err
	}

	slog.Info("Requeued contracts", "count", n)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d contracts\n", n)
	return nil
}
