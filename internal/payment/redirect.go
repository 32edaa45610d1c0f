package payment

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	SuccessPagePath = "/payment/success"
	FailedPagePath  = "/payment/failed"
)

type queryParam struct {
	key   string
	value string
}

func param(key, value string) queryParam {
	return queryParam{key: key, value: value}
}

// pageURL builds base+path with params in the given order. Empty values are
// dropped. url.Values is not used because it sorts keys.
func pageURL(base, path string, params ...queryParam) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString(path)

	sep := "?"
	for _, p := range params {
		if p.value == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
		sep = "&"
	}
	return b.String()
}

func formatAmount(amount *float64) string {
	if amount == nil {
		return ""
	}
	return strconv.FormatFloat(*amount, 'f', 2, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
