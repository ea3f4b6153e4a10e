package apiclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	logx "voyagebot/pkg/logx"
)

// newHTTPClient builds the per-account HTTP client.
//
// http/https proxy URLs go through CONNECT, socks/socks5/socks5h through a SOCKS5 dialer.
// An empty, malformed or unsupported proxy falls back to a direct connection.
// The returned route is safe to log (no credentials).
func newHTTPClient(rawProxy string, timeout time.Duration, log logx.Logger) (*http.Client, string) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil // never pick up HTTP(S)_PROXY from the environment

	route := "direct"
	if raw := strings.TrimSpace(rawProxy); raw != "" {
		r, err := applyProxy(tr, raw)
		if err != nil {
			log.Warn("proxy ignored; using direct connection", logx.Err(err))
		} else {
			route = r
		}
	}
	return &http.Client{Transport: tr, Timeout: timeout}, route
}

func applyProxy(tr *http.Transport, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid proxy url: missing host")
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
		return scheme + "://" + u.Host, nil
	case "socks", "socks5", "socks5h":
		if scheme == "socks" {
			cp := *u
			cp.Scheme = "socks5"
			u = &cp
		}
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return "", fmt.Errorf("socks proxy: %w", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		} else {
			tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
		return u.Scheme + "://" + u.Host, nil
	default:
		return "", fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
}
