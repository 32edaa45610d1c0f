package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/salespilot/pkg/logger"
	"github.com/spf13/cobra"
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Inspect reconciled payment records",
}

var paymentShowCmd = &cobra.Command{
	Use:   "show <doc-id>",
	Short: "Print a payment record from the configured store as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaymentShow,
}

func runPaymentShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg, logger.LoggerWrapper())
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("payment %s: %w", args[0], err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func init() {
	paymentCmd.AddCommand(paymentShowCmd)
	rootCmd.AddCommand(paymentCmd)
}
