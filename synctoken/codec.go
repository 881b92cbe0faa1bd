// Package synctoken implements the textual change-token format shared
// by collections, events and resources.
//
// A token is "TIMESTAMP-HEXSEQ": a fixed-width UTC timestamp, the
// separator '-' at a fixed offset, then a hex-encoded non-negative
// sequence number of at least four digits. Because both parts are
// fixed width (the sequence grows only past 0xffff), tokens compare
// correctly as raw strings. That fixed-width layout is a contract:
// tokens from existing deployments must keep comparing correctly, so
// comparisons stay plain string comparisons and must never be
// "improved" to numeric ones.
package synctoken

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimestampFormat is the fixed-width UTC layout of the token prefix.
const TimestampFormat = "20060102T150405Z"

// timestampLen is also the offset of the '-' separator.
const timestampLen = len(TimestampFormat)

// ErrMalformedToken is returned when a token cannot be decoded.
var ErrMalformedToken = errors.New("synctoken: malformed token")

// Encode builds a token from a point in time and a sequence number.
func Encode(ts time.Time, seq int) string {
	return Join(ts.UTC().Format(TimestampFormat), seq)
}

// Join builds a token from an already-formatted timestamp string and a
// sequence number.
func Join(timestamp string, seq int) string {
	return fmt.Sprintf("%s-%04x", timestamp, seq)
}

// Decode splits a token into its timestamp and sequence parts. It
// fails with ErrMalformedToken when the separator is absent at the
// fixed offset or the hex suffix does not parse.
func Decode(token string) (time.Time, int, error) {
	if len(token) < timestampLen+2 || token[timestampLen] != '-' {
		return time.Time{}, 0, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}
	ts, err := time.Parse(TimestampFormat, token[:timestampLen])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %q: %v", ErrMalformedToken, token, err)
	}
	seq, err := strconv.ParseUint(token[timestampLen+1:], 16, 63)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %q: bad sequence", ErrMalformedToken, token)
	}
	return ts, int(seq), nil
}

// IsValid reports whether a token's timestamp is recent enough. Only
// the timestamp portion is inspected: an unparsable timestamp makes
// the token invalid, and a maxAge <= 0 disables the age check
// entirely.
func IsValid(token string, maxAge time.Duration, clock clockwork.Clock) bool {
	if len(token) < timestampLen {
		return false
	}
	ts, err := time.Parse(TimestampFormat, token[:timestampLen])
	if err != nil {
		return false
	}
	if maxAge <= 0 {
		return true
	}
	return clock.Now().Sub(ts) <= maxAge
}

// Max returns the larger of two tokens under the raw string ordering.
func Max(a, b string) string {
	if a > b {
		return a
	}
	return b
}
