package cmd

import (
	"fmt"
	"strconv"

	"github.com/frahmantamala/salespilot/pkg/logger"
	"github.com/spf13/cobra"
)

var fxCmd = &cobra.Command{
	Use:   "fx",
	Short: "Currency conversion helpers",
}

var fxConvertCmd = &cobra.Command{
	Use:   "convert <usd>",
	Short: "Convert a USD amount to INR with the live or fallback rate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		converter, redisClient := newConverter(cfg.FX, logger.LoggerWrapper())
		if redisClient != nil {
			defer redisClient.Close()
		}

		conv, err := converter.USDToINR(cmd.Context(), amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "amount_inr=%s rate=%s source=%s\n",
			conv.AmountINR.StringFixed(2), conv.Rate.String(), conv.Source)
		return nil
	},
}

func init() {
	fxCmd.AddCommand(fxConvertCmd)
	rootCmd.AddCommand(fxCmd)
}
