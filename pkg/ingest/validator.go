package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

// FieldCount is the fixed width of a minute-bar row:
// time, code, name, open, close, high, low, volume, amount, change_pct, amplitude.
const FieldCount = 11

const (
	fieldTime = iota
	fieldCode
	fieldName
	fieldOpen
	fieldClose
	fieldHigh
	fieldLow
	fieldVolume
	fieldAmount
	fieldChangePct
	fieldAmplitude
)

const timestampLayout = "2006-01-02 15:04:05"

// Limits are the absolute-value ceilings applied to numeric fields.
type Limits struct {
	MaxPrice     float64
	MaxVolume    float64
	MaxAmount    float64
	MaxChangePct float64
	MaxAmplitude float64
}

// Result is either an accepted tick or a rejection reason, never both.
type Result struct {
	Tick   marketmodels.Tick
	Reason string
}

// OK reports whether the row was accepted.
func (r Result) OK() bool { return r.Reason == "" }

func accept(t marketmodels.Tick) Result { return Result{Tick: t} }

func reject(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Validator turns raw CSV fields into ticks. It holds only immutable settings,
// so one value can be shared by any number of goroutines.
type Validator struct {
	NormalizeCodes bool
	Limits         Limits
}

// Validate checks one row. Every business-rule violation is returned as a
// rejection; Validate never panics on malformed input.
func (v Validator) Validate(fields []string) Result {
	if len(fields) != FieldCount {
		return reject("expected %d fields, got %d", FieldCount, len(fields))
	}

	var tick marketmodels.Tick

	ts, reason := parseTimestamp(fields[fieldTime])
	if reason != "" {
		return reject("%s", reason)
	}
	tick.Time = ts

	code, reason := v.normalizeCode(fields[fieldCode])
	if reason != "" {
		return reject("%s", reason)
	}
	tick.Code = code

	name := strings.TrimSpace(fields[fieldName])
	if reason := checkText("name", name); reason != "" {
		return reject("%s", reason)
	}
	tick.Name = name

	prices := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", fields[fieldOpen], &tick.Open},
		{"close", fields[fieldClose], &tick.Close},
		{"high", fields[fieldHigh], &tick.High},
		{"low", fields[fieldLow], &tick.Low},
	}
	for _, p := range prices {
		f, reason := parseFinite(p.name, p.raw)
		if reason != "" {
			return reject("%s", reason)
		}
		if math.Abs(f) > v.Limits.MaxPrice {
			return reject("%s %g exceeds limit %g", p.name, f, v.Limits.MaxPrice)
		}
		*p.dst = f
	}

	if hi := math.Max(tick.Open, tick.Close); tick.High < hi {
		return reject("high < max(open, close): high=%g open=%g close=%g", tick.High, tick.Open, tick.Close)
	}
	if lo := math.Min(tick.Open, tick.Close); tick.Low > lo {
		return reject("low > min(open, close): low=%g open=%g close=%g", tick.Low, tick.Open, tick.Close)
	}

	volume, reason := v.parseVolume(fields[fieldVolume])
	if reason != "" {
		return reject("%s", reason)
	}
	tick.Volume = volume

	bounded := []struct {
		name  string
		raw   string
		limit float64
		dst   *float64
	}{
		{"amount", fields[fieldAmount], v.Limits.MaxAmount, &tick.Amount},
		{"change_pct", fields[fieldChangePct], v.Limits.MaxChangePct, &tick.ChangePct},
		{"amplitude", fields[fieldAmplitude], v.Limits.MaxAmplitude, &tick.Amplitude},
	}
	for _, b := range bounded {
		f, reason := parseFinite(b.name, b.raw)
		if reason != "" {
			return reject("%s", reason)
		}
		if math.Abs(f) > b.limit {
			return reject("%s %g exceeds limit %g", b.name, f, b.limit)
		}
		*b.dst = f
	}

	return accept(tick)
}

func parseTimestamp(raw string) (time.Time, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, "empty timestamp"
	}
	// Only the first 19 characters count, which drops fractional seconds.
	if len(raw) > len(timestampLayout) {
		raw = raw[:len(timestampLayout)]
	}
	ts, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Sprintf("invalid timestamp %q", raw)
	}
	return ts, ""
}

var exchangeSuffix = map[string]string{
	"sh": "SH",
	"sz": "SZ",
	"bj": "BJ",
}

// normalizeCode rewrites sh600000 into 600000.SH. Codes already in canonical
// form pass through unchanged.
func (v Validator) normalizeCode(raw string) (string, string) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", "empty code"
	}
	if reason := checkText("code", code); reason != "" {
		return "", reason
	}
	if !v.NormalizeCodes {
		return code, ""
	}

	if isCanonicalCode(code) {
		return code, ""
	}

	if len(code) != 8 {
		return "", fmt.Sprintf("malformed code %q: want 2-letter exchange prefix and 6 digits", code)
	}
	prefix := strings.ToLower(code[:2])
	suffix, ok := exchangeSuffix[prefix]
	if !ok {
		return "", fmt.Sprintf("unrecognized exchange prefix %q in code %q", code[:2], code)
	}
	digits := code[2:]
	if !allDigits(digits) {
		return "", fmt.Sprintf("malformed code %q: %q is not 6 digits", code, digits)
	}
	return digits + "." + suffix, ""
}

// checkText rejects text PostgreSQL cannot store in a TEXT column.
func checkText(field, s string) string {
	if !utf8.ValidString(s) {
		return fmt.Sprintf("%s is not valid UTF-8: %q", field, s)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return fmt.Sprintf("%s contains a NUL byte: %q", field, s)
	}
	return ""
}

func isCanonicalCode(code string) bool {
	if len(code) != 9 || code[6] != '.' || !allDigits(code[:6]) {
		return false
	}
	switch code[7:] {
	case "SH", "SZ", "BJ":
		return true
	}
	return false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseFinite(name, raw string) (float64, string) {
	raw = strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, fmt.Sprintf("%s is not finite: %q", name, raw)
		}
		return 0, fmt.Sprintf("invalid %s %q", name, raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Sprintf("%s is not finite: %q", name, raw)
	}
	return f, ""
}

// parseVolume accepts integer text directly; float text must be finite,
// within MaxVolume and integral.
func (v Validator) parseVolume(raw string) (int64, string) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, ""
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, fmt.Sprintf("volume is not finite: %q", raw)
		}
		return 0, fmt.Sprintf("invalid volume %q", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Sprintf("volume is not finite: %q", raw)
	}
	if math.Abs(f) > v.Limits.MaxVolume {
		return 0, fmt.Sprintf("volume %g too large for safe conversion (limit %g)", f, v.Limits.MaxVolume)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Sprintf("volume %q is not an integer", raw)
	}
	return int64(f), ""
}
