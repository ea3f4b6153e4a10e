package notifier

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"voyagebot/internal/eventbus"
	"voyagebot/internal/scheduler"
	"voyagebot/internal/workflow"
	logx "voyagebot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	ch   chan string
}

func newFakeSender() *fakeSender { return &fakeSender{ch: make(chan string, 16)} }

func (f *fakeSender) Send(_ context.Context, chatID int64, _ int, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	f.ch <- text
	return nil
}

func testConfig() Config {
	return Config{
		Enabled:     true,
		Token:       "123:abc",
		ChatID:      -100,
		Outcomes:    []string{"EXPIRED", "FAILED"},
		DedupWindow: time.Hour,
		RatePerSec:  1000,
		QueueSize:   8,
	}
}

func newTestService(snd Sender) *Service {
	return New(testConfig(), func(string) (Sender, error) { return snd, nil }, logx.Nop())
}

func expired(index int) scheduler.CycleEvent {
	return scheduler.CycleEvent{Index: index, Outcome: workflow.OutcomeExpired, Note: workflow.NoteTokenExpired,
		NextRunAt: time.Date(2026, 4, 1, 13, 5, 0, 0, time.UTC)}
}

func TestFormatAlert(t *testing.T) {
	named := expired(2)
	named.Username = "neo"
	cases := []struct {
		ev   scheduler.CycleEvent
		want string
	}{
		{expired(1), "🔑 Account 1: EXPIRED\nToken has expired!\nNext run: 2026-04-01 13:05 UTC"},
		{named, "🔑 Account 2 (neo): EXPIRED\nToken has expired!\nNext run: 2026-04-01 13:05 UTC"},
		{scheduler.CycleEvent{Index: 3, Outcome: workflow.OutcomeFailed}, "⚠️ Account 3: FAILED"},
	}
	for _, tc := range cases {
		if got := FormatAlert(tc.ev); got != tc.want {
			t.Fatalf("FormatAlert = %q, want %q", got, tc.want)
		}
	}
}

func TestHandleFiltersAndDeduplicates(t *testing.T) {
	s := newTestService(newFakeSender())

	if err := s.Handle(expired(1)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := s.Handle(expired(1)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := s.Handle(expired(2)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := s.Handle(scheduler.CycleEvent{Index: 3, Outcome: workflow.OutcomeSuccess}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n := len(s.queue); n != 2 {
		t.Fatalf("queued = %d, want 2", n)
	}
}

func TestSuccessClearsSuppression(t *testing.T) {
	s := newTestService(newFakeSender())
	_ = s.Handle(expired(1))
	_ = s.Handle(scheduler.CycleEvent{Index: 1, Outcome: workflow.OutcomeSuccess})
	_ = s.Handle(expired(1))
	if n := len(s.queue); n != 2 {
		t.Fatalf("queued = %d, want 2", n)
	}
}

func TestDedupWindowExpires(t *testing.T) {
	s := newTestService(newFakeSender())
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_ = s.Handle(expired(1))
	now = now.Add(time.Hour)
	_ = s.Handle(expired(1))
	if n := len(s.queue); n != 2 {
		t.Fatalf("queued = %d, want 2", n)
	}
}

func TestDisabledWithoutToken(t *testing.T) {
	cfg := testConfig()
	cfg.Token = ""
	s := New(cfg, func(string) (Sender, error) { t.Fatalf("sender built without token"); return nil, nil }, logx.Nop())
	if s.Enabled() {
		t.Fatalf("enabled without token")
	}
	if err := s.Handle(expired(1)); err != ErrDisabled {
		t.Fatalf("Handle = %v, want ErrDisabled", err)
	}
}

func TestRunDeliversFromBus(t *testing.T) {
	snd := newFakeSender()
	s := newTestService(snd)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, scheduler.EventCycle)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, events) }()

	bus.Publish(eventbus.Event{Type: scheduler.EventCycle, Data: expired(4)})

	select {
	case text := <-snd.ch:
		if !strings.Contains(text, "Account 4: EXPIRED") || !strings.Contains(text, "Next run: 2026-04-01 13:05 UTC") {
			t.Fatalf("text = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("alert not sent")
	}
	cancel()
	<-done
}

func TestApplyTogglesAndRebuildsSender(t *testing.T) {
	built := 0
	s := New(Config{}, func(string) (Sender, error) { built++; return newFakeSender(), nil }, logx.Nop())
	if s.Enabled() || built != 0 {
		t.Fatalf("disabled config built a sender")
	}
	cfg := testConfig()
	s.Apply(cfg)
	s.Apply(cfg)
	if !s.Enabled() || built != 1 {
		t.Fatalf("enabled=%v built=%d", s.Enabled(), built)
	}
	cfg.Token = "456:def"
	s.Apply(cfg)
	if built != 2 {
		t.Fatalf("token change did not rebuild sender (built=%d)", built)
	}
}
