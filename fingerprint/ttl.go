package fingerprint

import (
	"strings"
	"time"
)

const (
	// MinTTLSeconds is the floor applied to every derived TTL.
	MinTTLSeconds = 300
	// DefaultTTLSeconds is used when no expiration date is available.
	DefaultTTLSeconds = 3600
)

// TTLFromExpiration derives a store TTL in seconds from an entry's
// expiration date. Supported formats: RFC3339, DD/MM/YYYY, YYYY-MM-DD.
// Unparseable or empty dates fall back to the default; expired dates are
// clamped to the minimum.
func TTLFromExpiration(expirationDate string, now time.Time) int {
	if expirationDate == "" {
		return DefaultTTLSeconds
	}

	exp, err := parseExpiration(expirationDate)
	if err != nil {
		return DefaultTTLSeconds
	}

	ttl := int(exp.Sub(now).Seconds())
	if ttl < MinTTLSeconds {
		return MinTTLSeconds
	}
	return ttl
}

func parseExpiration(date string) (time.Time, error) {
	switch {
	case strings.ContainsAny(date, "TZ+") && len(date) > 10:
		return time.Parse(time.RFC3339, date)
	case strings.Contains(date, "/"):
		return time.Parse("02/01/2006", date)
	default:
		return time.Parse("2006-01-02", date)
	}
}
