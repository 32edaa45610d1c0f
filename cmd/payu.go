package cmd

import (
	"errors"
	"fmt"
	"net/url"

	paymentPkg "github.com/frahmantamala/salespilot/internal/payment"
	"github.com/spf13/cobra"
)

var payuCmd = &cobra.Command{
	Use:   "payu",
	Short: "PayU hash tooling",
}

var (
	payuForm    string
	payuRequest bool
)

var payuHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Compute or verify a PayU hash offline",
	Long: `Computes the hash PayU expects for a checkout form (--request) or checks the
hash of a callback form. Fields are given url-encoded, e.g.
  salespilot payu hash --form 'txnid=ABC123&amount=2564.76&status=success&hash=...'`,
	RunE: runPayUHash,
}

func runPayUHash(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.PayU.Configured() {
		return errors.New("PAYU_KEY and PAYU_SALT must be set")
	}

	values, err := url.ParseQuery(payuForm)
	if err != nil {
		return fmt.Errorf("invalid --form: %w", err)
	}
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}

	verifier := paymentPkg.NewPayUVerifier(cfg.PayU.Key, cfg.PayU.Salt)
	out := cmd.OutOrStdout()

	if payuRequest {
		req := paymentPkg.PayURequest{
			TxnID:       fields["txnid"],
			Amount:      fields["amount"],
			ProductInfo: fields["productinfo"],
			FirstName:   fields["firstname"],
			Email:       fields["email"],
			UDF:         [5]string{fields["udf1"], fields["udf2"], fields["udf3"], fields["udf4"], fields["udf5"]},
		}
		fmt.Fprintln(out, verifier.RequestHash(req))
		return nil
	}

	result, err := verifier.Verify(cmd.Context(), &paymentPkg.Callback{Fields: fields})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "expected: %s\nverified: %t\n", verifier.ResponseHash(fields), result.Verified)
	if result.Reason != "" {
		fmt.Fprintf(out, "reason:   %s\n", result.Reason)
	}
	return nil
}

func init() {
	payuHashCmd.Flags().StringVar(&payuForm, "form", "", "url-encoded form fields")
	payuHashCmd.Flags().BoolVar(&payuRequest, "request", false, "compute the checkout request hash instead of verifying a callback")
	_ = payuHashCmd.MarkFlagRequired("form")

	payuCmd.AddCommand(payuHashCmd)
	rootCmd.AddCommand(payuCmd)
}
