// Package diag serves an optional local diagnostics endpoint: liveness,
// the current schedule as JSON, and the Go profiler.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"voyagebot/internal/scheduler"
	logx "voyagebot/pkg/logx"
)

const (
	DefaultAddr = "127.0.0.1:6060"

	pprofPrefix     = "/debug/pprof/"
	shutdownTimeout = 2 * time.Second
)

// Config controls the server.
//
// A non-loopback Addr requires Token or AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
}

// CheckBind reports an error when cfg would expose the endpoint without auth.
func CheckBind(cfg Config) error {
	addr := addrOrDefault(cfg.Addr)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("diagnostics.addr: %w", err)
	}
	if !cfg.AllowInsecure && strings.TrimSpace(cfg.Token) == "" && !isLoopbackAddr(addr) {
		return fmt.Errorf("diagnostics.addr %q is not loopback: set diagnostics.token or diagnostics.allow_insecure", addr)
	}
	return nil
}

// SnapshotFunc returns the current schedule.
type SnapshotFunc func() scheduler.Snapshot

type Server struct {
	cfg      Config
	snapshot SnapshotFunc
	log      logx.Logger
	ready    chan string
}

func New(cfg Config, snapshot SnapshotFunc, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:      cfg,
		snapshot: snapshot,
		log:      log.With(logx.String("comp", "diag")),
		ready:    make(chan string, 1),
	}
}

// Ready receives the bound address once the server listens.
func (s *Server) Ready() <-chan string { return s.ready }

// Run listens and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := CheckBind(s.cfg); err != nil {
		return err
	}
	addr := addrOrDefault(s.cfg.Addr)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(cctx)
	}()

	bound := ln.Addr().String()
	s.log.Info("diagnostics listening", logx.String("addr", bound), logx.Bool("token_set", s.cfg.Token != ""))
	select {
	case s.ready <- bound:
	default:
	}

	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

// Handler returns the routes, wrapped with token auth when configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(s.cfg.Token, h) }

	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/status", wrap(s.status))

	mux.HandleFunc(pprofPrefix, wrap(hpprof.Index))
	mux.HandleFunc(pprofPrefix+"cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc(pprofPrefix+"profile", wrap(hpprof.Profile))
	mux.HandleFunc(pprofPrefix+"symbol", wrap(hpprof.Symbol))
	mux.HandleFunc(pprofPrefix+"trace", wrap(hpprof.Trace))
	return mux
}

type accountView struct {
	Index     int        `json:"index"`
	Username  string     `json:"username,omitempty"`
	Status    string     `json:"status"`
	Points    int64      `json:"points"`
	Streak    int        `json:"streak"`
	Note      string     `json:"note,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

type statusView struct {
	At       time.Time      `json:"at"`
	Booting  bool           `json:"booting"`
	Counts   map[string]int `json:"counts"`
	Accounts []accountView  `json:"accounts"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	var snap scheduler.Snapshot
	if s.snapshot != nil {
		snap = s.snapshot()
	}
	view := statusView{
		At:       snap.At.UTC(),
		Booting:  snap.Booting,
		Counts:   map[string]int{},
		Accounts: make([]accountView, 0, len(snap.Accounts)),
	}
	for st, n := range snap.Counts() {
		view.Counts[string(st)] = n
	}
	for _, a := range snap.Accounts {
		view.Accounts = append(view.Accounts, accountView{
			Index:     a.Index,
			Username:  a.Username,
			Status:    string(a.Status),
			Points:    a.Points,
			Streak:    a.Streak,
			Note:      a.Note,
			LastRunAt: optTime(a.LastRunAt),
			NextRunAt: optTime(a.NextRunAt),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		s.log.Debug("status encode failed", logx.Err(err))
	}
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Bearer header or ?token=
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func addrOrDefault(addr string) string {
	if a := strings.TrimSpace(addr); a != "" {
		return a
	}
	return DefaultAddr
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
