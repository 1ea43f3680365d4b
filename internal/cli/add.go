package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/erc20-detector/internal/control"
	"github.com/vietddude/erc20-detector/internal/core/domain"
)

var addCmd = &cobra.Command{
	Use:   "add <address> <file.sol>",
	Short: "Store a contract source for analysis",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.UseDatabase() {
		return fmt.Errorf("database.url is required to add contracts")
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

	c := &domain.Contract{Address: args[0], SourceCode: string(source)}
	if err := store.Create(ctx, c); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added contract %s with id %d\n", c.Address, c.ID)
	return nil
}
