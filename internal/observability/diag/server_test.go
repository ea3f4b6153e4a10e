package diag

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voyagebot/internal/scheduler"
	logx "voyagebot/pkg/logx"
)

func TestCheckBind(t *testing.T) {
	cases := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{}, false},
		{Config{Addr: "127.0.0.1:7070"}, false},
		{Config{Addr: "localhost:7070"}, false},
		{Config{Addr: "[::1]:7070"}, false},
		{Config{Addr: ":7070"}, true},
		{Config{Addr: "0.0.0.0:7070"}, true},
		{Config{Addr: "0.0.0.0:7070", Token: "s3cret"}, false},
		{Config{Addr: "0.0.0.0:7070", AllowInsecure: true}, false},
		{Config{Addr: "no-port"}, true},
	}
	for _, tc := range cases {
		err := CheckBind(tc.cfg)
		if (err != nil) != tc.wantErr {
			t.Fatalf("CheckBind(%+v) err = %v, wantErr %v", tc.cfg, err, tc.wantErr)
		}
	}
}

func sampleSnapshot() scheduler.Snapshot {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	return scheduler.Snapshot{
		At: now,
		Accounts: []scheduler.Account{
			{Index: 1, Username: "neo", Status: scheduler.StatusSuccess, Points: 300, Streak: 2, LastRunAt: now, NextRunAt: now.Add(15 * time.Hour), Note: "Claimed +10 pts"},
			{Index: 2, Status: scheduler.StatusProcessing},
		},
	}
}

func TestStatusReportsSchedule(t *testing.T) {
	s := New(Config{}, sampleSnapshot, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var got statusView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, rec.Body.String())
	}
	if len(got.Accounts) != 2 || got.Counts["SUCCESS"] != 1 || got.Counts["PROCESSING"] != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if a := got.Accounts[0]; a.Points != 300 || a.Username != "neo" || a.NextRunAt == nil || a.Note != "Claimed +10 pts" {
		t.Fatalf("unexpected account: %+v", a)
	}
	if !strings.Contains(rec.Body.String(), `"username": "neo"`) || strings.Count(rec.Body.String(), `"username"`) != 1 {
		t.Fatalf("username should be present only when known:\n%s", rec.Body.String())
	}
	if got.Accounts[1].NextRunAt != nil || got.Accounts[1].LastRunAt != nil {
		t.Fatalf("zero times should be omitted: %+v", got.Accounts[1])
	}
}

func TestTokenAuth(t *testing.T) {
	h := New(Config{Token: "s3cret"}, sampleSnapshot, logx.Nop()).Handler()

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/healthz", "", http.StatusUnauthorized},
		{"wrong query", "/healthz?token=nope", "", http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", "", http.StatusOK},
		{"bearer", "/healthz", "Bearer s3cret", http.StatusOK},
		{"wrong bearer", "/status", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: code = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestRunServesUntilCanceled(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, sampleSnapshot, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var addr string
	select {
	case addr = <-s.Ready():
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server never became ready")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestRunRefusesPublicBindWithoutToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, sampleSnapshot, logx.Nop())
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected refusal")
	}
}
