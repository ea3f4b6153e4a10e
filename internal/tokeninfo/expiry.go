// Package tokeninfo reads claims out of bearer tokens without verifying them.
package tokeninfo

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var parser = jwt.NewParser(jwt.WithPaddingAllowed())

// ExpiryOf returns the token's "exp" claim (epoch seconds, fractions kept to the
// millisecond). Only the middle segment is read; the header and signature are
// never looked at.
//
// ok is false when the token does not have exactly three segments, the claims
// segment does not decode to a JSON object, or "exp" is absent or not a number.
// Callers treat that as "no known expiry".
func ExpiryOf(token string) (exp time.Time, ok bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if nd, err := claims.GetExpirationTime(); err != nil || nd == nil {
		return time.Time{}, false
	}
	// NumericDate rounds to jwt.TimePrecision, so the milliseconds come from the raw claim.
	secs, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(secs * 1000)).UTC(), true
}

// decodeSegment accepts the URL-safe alphabet first and falls back to the
// standard one, padded or not.
func decodeSegment(seg string) ([]byte, error) {
	if b, err := parser.DecodeSegment(seg); err == nil {
		return b, nil
	}
	std := strings.NewReplacer("-", "+", "_", "/").Replace(strings.TrimRight(seg, "="))
	return base64.RawStdEncoding.DecodeString(std)
}
