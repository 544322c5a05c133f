package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// limitParam reads a positive limit query parameter, falling back to def.
func limitParam(r *http.Request, def uint64) uint64 {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def
	}
	limit, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || limit == 0 {
		return def
	}
	return limit
}

func offsetParam(r *http.Request) uint64 {
	raw := strings.TrimSpace(r.URL.Query().Get("offset"))
	offset, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return offset
}

// dayParam reads a YYYY-MM-DD day parameter, defaulting to today (UTC).
func dayParam(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("day"))
	if raw == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("invalid day format (expected YYYY-MM-DD)")
	}
	return day, nil
}

// protocolParam validates the optional protocol query parameter.
func protocolParam(r *http.Request) (string, error) {
	raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("protocol")))
	if raw == "" {
		return "", nil
	}
	if raw != "A" && raw != "B" {
		return "", errors.New("invalid protocol (expected A or B)")
	}
	return raw, nil
}

// tagPairParams reads the mandatory key/value tag query parameters.
func tagPairParams(r *http.Request) (string, string, error) {
	key := trimmed(r.URL.Query().Get("key"))
	if key == "" {
		return "", "", errors.New("missing tag key")
	}
	value := trimmed(r.URL.Query().Get("value"))
	if value == "" {
		return "", "", errors.New("missing tag value")
	}
	return key, value, nil
}

// tagKeyVariants expands a tag key into the casing variants the protocol
// streams persist: variant A stores lower-case keys, variant B Header-Case.
// Without a protocol both variants are searched.
func tagKeyVariants(protocol, key string) []string {
	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return nil
	}
	lower := strings.ToLower(trimmedKey)
	header := toHeaderCase(trimmedKey)
	switch protocol {
	case "A":
		return []string{lower}
	case "B":
		return []string{header}
	}
	if lower == header {
		return []string{lower}
	}
	return []string{lower, header}
}

func toHeaderCase(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for i, segment := range strings.Split(input, "-") {
		if i > 0 {
			b.WriteByte('-')
		}
		if segment == "" {
			continue
		}
		b.WriteString(strings.ToUpper(segment[:1]))
		b.WriteString(strings.ToLower(segment[1:]))
	}
	return b.String()
}

func trimmed(raw string) string {
	return strings.TrimSpace(raw)
}

// sourceParam validates the optional stream source parameter; anything but
// the two sub-query names is dropped.
func sourceParam(raw string) string {
	source := strings.ToLower(strings.TrimSpace(raw))
	if source == "transfer" || source == "process" {
		return source
	}
	return ""
}

// orderParam reports whether ascending ordering was requested.
func orderParam(raw string) bool {
	return strings.ToLower(strings.TrimSpace(raw)) == "asc"
}

func uint64Param(raw string) (*uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid u64 value")
	}
	return &v, nil
}

func uint32Param(raw string) (*uint32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, errors.New("invalid u32 value")
	}
	out := uint32(v)
	return &out, nil
}

// amountParam converts a human token amount (up to 12 decimal places) to a
// raw base-unit integer string.
func amountParam(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	return humanAmountToRaw(raw)
}

// humanAmountToRaw scales "12.5" to "12500000000000": the token's 12-decimal
// base units, with leading zeros stripped.
func humanAmountToRaw(input string) (string, error) {
	whole, frac, _ := strings.Cut(input, ".")
	if strings.Contains(frac, ".") {
		return "", errors.New("invalid amount format")
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return "", errors.New("invalid amount format")
	}
	if len(frac) > 12 {
		return "", errors.New("amount has more than 12 decimal places")
	}
	raw := whole + frac + strings.Repeat("0", 12-len(frac))
	raw = strings.TrimLeft(raw, "0")
	if raw == "" {
		return "0", nil
	}
	return raw, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// tokenParam validates the token path segment. Both network tokens share
// the same persisted stream today.
func tokenParam(r *http.Request) (string, error) {
	token := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "token")))
	if token == "" {
		return "", errors.New("missing token")
	}
	if token != "ao" && token != "pi" {
		return "", errors.New("unsupported token")
	}
	return token, nil
}
