package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/fx"
)

const maxBodyBytes = 1 << 20

// URLs are the bases handlers build links from.
type URLs struct {
	// Public is the externally reachable site, used for gateway return URLs.
	Public string
	// Pages prefixes the /payment/success and /payment/failed redirects.
	// Empty keeps them relative.
	Pages string
}

func (u URLs) public(path string) string {
	return strings.TrimRight(u.Public, "/") + path
}

// Converter turns USD into INR for PayU, which only settles rupees.
type Converter interface {
	USDToINR(ctx context.Context, amountUSD float64) (*fx.Conversion, error)
}

var errInvalidBody = internal.NewValidationError("request body must be valid JSON", internal.ErrCodeInvalidBody)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errInvalidBody.WithCause(err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errInvalidBody.WithCause(err)
	}
	return body, nil
}

// formFields flattens a parsed form, keeping the first value of each key.
func formFields(r *http.Request) (map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(r.Form))
	for k, v := range r.Form {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields, nil
}
