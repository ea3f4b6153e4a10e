package tokeninfo

import (
	"encoding/base64"
	"testing"
)

func seg(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

func makeToken(payload string) string {
	return seg(`{"alg":"HS256","typ":"JWT"}`) + "." + seg(payload) + ".c2ln"
}

func TestExpiryOf(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		wantMS int64
	}{
		{"plain", makeToken(`{"sub":"u1","exp":1767225600}`), 1767225600000},
		{"fractional exp", makeToken(`{"exp":1700000000.75}`), 1700000000750},
		{"header not base64", "xx." + seg(`{"exp":1700000000}`) + ".sig", 1700000000000},
		{"header not json", seg("not json") + "." + seg(`{"exp":1700000000}`) + ".sig", 1700000000000},
		{"empty header", "." + seg(`{"exp":1700000000}`) + ".", 1700000000000},
		{"std alphabet padded", "h.eyJleHAiOjE3MDAwMDAwMDAsIm4iOiI/Pz8+Pj4ifQ==.s", 1700000000000},
		{"std alphabet unpadded", "h.eyJleHAiOjE3MDAwMDAwMDAsIm4iOiI/Pz8+Pj4ifQ.s", 1700000000000},
		{"url alphabet padded", "h." + base64.URLEncoding.EncodeToString([]byte(`{"exp":1700000000}`)) + ".s", 1700000000000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exp, ok := ExpiryOf(tc.token)
			if !ok {
				t.Fatalf("expected expiry for %q", tc.token)
			}
			if exp.UnixMilli() != tc.wantMS {
				t.Fatalf("expiry ms = %d, want %d", exp.UnixMilli(), tc.wantMS)
			}
		})
	}
}

func TestExpiryOfUnknown(t *testing.T) {
	cases := map[string]string{
		"two segments":   seg(`{"alg":"HS256"}`) + "." + seg(`{"exp":1}`),
		"four segments":  makeToken(`{"exp":1}`) + ".extra",
		"bad base64":     seg(`{"alg":"HS256"}`) + ".!!!not-base64!!!.sig",
		"no exp":         makeToken(`{"sub":"x"}`),
		"payload not js": seg(`{"alg":"HS256"}`) + "." + seg("hello") + ".sig",
		"payload array":  makeToken(`[1,2]`),
		"payload null":   makeToken(`null`),
		"empty":          "",
		"exp wrong type": makeToken(`{"exp":"tomorrow"}`),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if exp, ok := ExpiryOf(tok); ok {
				t.Fatalf("expected unknown expiry, got %v", exp)
			}
		})
	}
}
