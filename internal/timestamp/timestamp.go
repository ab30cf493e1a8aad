// Package timestamp resolves the raw date-time strings carried by events.
package timestamp

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid indicates a timestamp that could not be parsed.
var ErrInvalid = errors.New("invalid timestamp format")

// Common timestamp layouts ordered by likelihood
var commonLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"02/01/2006 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// epochMillisDigits is the minimum length of an all-digit string that is
// read as Unix milliseconds instead of an Excel serial day.
const epochMillisDigits = 11

// Parse resolves s into a time.Time. Zone-less values are read as UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalid
	}

	// Fast path: ISO 8601 (most common in XES and CSV exports)
	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		if t, err := parseISO8601(s); err == nil {
			return t, nil
		}
	}

	if isNumeric(s) {
		return parseNumeric(s)
	}

	for _, layout := range commonLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalid
}

// Resolve is Parse without the error: ok is false for unusable input.
func Resolve(s string) (time.Time, bool) {
	t, err := Parse(s)
	return t, err == nil
}

// parseISO8601 parses YYYY-MM-DD[(T| )hh:mm:ss[.frac][Z|±hh[:]mm]] by hand.
func parseISO8601(s string) (time.Time, error) {
	year, ok1 := digits(s[0:4])
	month, ok2 := digits(s[5:7])
	day, ok3 := digits(s[8:10])
	if !ok1 || !ok2 || !ok3 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, ErrInvalid
	}

	var hour, minute, second, nsec int
	loc := time.UTC
	rest := s[10:]

	if rest != "" {
		if rest[0] != 'T' && rest[0] != ' ' || len(rest) < 9 || rest[3] != ':' || rest[6] != ':' {
			return time.Time{}, ErrInvalid
		}
		var okH, okM, okS bool
		hour, okH = digits(rest[1:3])
		minute, okM = digits(rest[4:6])
		second, okS = digits(rest[7:9])
		if !okH || !okM || !okS || hour > 23 || minute > 59 || second > 60 {
			return time.Time{}, ErrInvalid
		}
		rest = rest[9:]

		if rest != "" && rest[0] == '.' {
			end := 1
			for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
				end++
			}
			nsec = parseFraction(rest[1:end])
			rest = rest[end:]
		}

		switch {
		case rest == "" || rest == "Z":
		case rest[0] == '+' || rest[0] == '-':
			zone := strings.ReplaceAll(rest[1:], ":", "")
			if len(zone) != 4 {
				return time.Time{}, ErrInvalid
			}
			oh, okOH := digits(zone[0:2])
			om, okOM := digits(zone[2:4])
			if !okOH || !okOM {
				return time.Time{}, ErrInvalid
			}
			offset := oh*3600 + om*60
			if rest[0] == '-' {
				offset = -offset
			}
			loc = time.FixedZone("", offset)
		default:
			return time.Time{}, ErrInvalid
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc), nil
}

// parseNumeric reads long digit strings as Unix milliseconds and short
// ones as Excel serial days (days since 1899-12-30).
func parseNumeric(s string) (time.Time, error) {
	if !strings.ContainsAny(s, ".-") && len(s) >= epochMillisDigits {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, ErrInvalid
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, ErrInvalid
	}
	excelEpoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	days := int64(val)
	t := excelEpoch.AddDate(0, 0, int(days))
	if fraction := val - float64(days); fraction > 0 {
		t = t.Add(time.Duration(fraction * 24 * float64(time.Hour)))
	}
	return t, nil
}

func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// parseFraction parses fractional seconds to nanoseconds.
func parseFraction(s string) int {
	var result int
	multiplier := 100000000
	for i := 0; i < len(s) && i < 9; i++ {
		result += int(s[i]-'0') * multiplier
		multiplier /= 10
	}
	return result
}

func isNumeric(s string) bool {
	dotCount := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c == '.' && dotCount == 0:
			dotCount++
		case c == '-' && i == 0:
		default:
			return false
		}
	}
	return true
}
