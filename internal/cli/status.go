package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/erc20-detector/internal/control"
	"github.com/vietddude/erc20-detector/internal/core/domain"
	redisclient "github.com/vietddude/erc20-detector/internal/infra/redis"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show contract counts per status and pipeline stats",
	RunE:  runStatus,
}

var resetStats bool

func init() {
	statusCmd.Flags().BoolVar(&resetStats, "reset", false, "Clear the Redis pipeline counters after printing them")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tCONTRACTS")
	for _, status := range domain.AllContractStatuses {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", status, counts[status])
	}
	_ = w.Flush()

	if !cfg.Redis.Enabled() {
		return nil
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	statsStore := redisclient.NewStatsStore(client)
	stats, err := statsStore.Snapshot(ctx)
	if err != nil {
		return err
	}

	lastSweep := "never"
	if !stats.LastSweep.IsZero() {
		lastSweep = stats.LastSweep.Format(time.RFC3339)
	}

	w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "\nSTAT\tVALUE")
	_, _ = fmt.Fprintf(w, "published\t%d\n", stats.Published)
	_, _ = fmt.Fprintf(w, "batches\t%d\n", stats.Batches)
	_, _ = fmt.Fprintf(w, "compliant\t%d\n", stats.Compliant)
	_, _ = fmt.Fprintf(w, "non_compliant\t%d\n", stats.NonCompliant)
	_, _ = fmt.Fprintf(w, "last_sweep\t%s (%d contracts)\n", lastSweep, stats.LastSweepSize)
	if err := w.Flush(); err != nil {
		return err
	}

	if !resetStats {
		return nil
	}
	if err := statsStore.Reset(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nPipeline stats cleared")
	return nil
}
