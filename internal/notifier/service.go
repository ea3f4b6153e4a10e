package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"voyagebot/internal/eventbus"
	"voyagebot/internal/scheduler"
	"voyagebot/internal/workflow"
	logx "voyagebot/pkg/logx"
)

const sendTimeout = 10 * time.Second

// Service turns scheduler cycle events into alerts. It is safe for concurrent use.
type Service struct {
	newSender SenderFactory
	log       logx.Logger
	now       func() time.Time

	mu       sync.Mutex
	cfg      Config
	outcomes map[string]bool
	sender   Sender
	token    string
	limiter  *rate.Limiter

	queue chan Alert

	dmu   sync.Mutex
	dedup map[string]time.Time // key -> suppressed until
}

func New(cfg Config, newSender SenderFactory, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if newSender == nil {
		newSender = NewTelegramSender
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	s := &Service{
		newSender: newSender,
		log:       log.With(logx.String("comp", "notifier")),
		now:       time.Now,
		queue:     make(chan Alert, size),
		dedup:     map[string]time.Time{},
	}
	s.Apply(cfg)
	return s
}

// Apply swaps the configuration. A new token rebuilds the sender.
// The queue size is fixed at construction.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	outcomes := make(map[string]bool, len(cfg.Outcomes))
	for _, o := range cfg.Outcomes {
		outcomes[strings.ToUpper(strings.TrimSpace(o))] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.outcomes = outcomes
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)

	token := strings.TrimSpace(cfg.Token)
	if !cfg.Enabled || token == "" {
		return
	}
	if s.sender != nil && token == s.token {
		return
	}
	snd, err := s.newSender(token)
	if err != nil {
		s.log.Warn("telegram sender init failed; alerts disabled", logx.Err(err))
		s.sender, s.token = nil, ""
		return
	}
	s.sender, s.token = snd, token
	s.log.Info("alerts enabled", logx.Int64("chat_id", cfg.ChatID), logx.Int("outcomes", len(outcomes)))
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Run consumes cycle events and delivers alerts until ctx ends or events closes.
func (s *Service) Run(ctx context.Context, events <-chan eventbus.Event) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sendLoop(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			ev, ok := e.Data.(scheduler.CycleEvent)
			if !ok {
				continue
			}
			if err := s.Handle(ev); err != nil && !errors.Is(err, ErrDisabled) {
				s.log.Warn("alert not queued", logx.Account(ev.Index), logx.Err(err))
			}
		}
	}
}

// Handle queues an alert for ev when its outcome is selected and not deduplicated.
// A SUCCESS clears the account's suppression so the next problem alerts at once.
func (s *Service) Handle(ev scheduler.CycleEvent) error {
	outcome := ev.Outcome.String()
	if ev.Outcome == workflow.OutcomeSuccess {
		s.clearAccount(ev.Index)
	}

	s.mu.Lock()
	enabled := s.cfg.Enabled && s.sender != nil
	wanted := s.outcomes[outcome]
	window := s.cfg.DedupWindow
	s.mu.Unlock()

	if !enabled {
		return ErrDisabled
	}
	if !wanted {
		return nil
	}

	a := Alert{Account: ev.Index, Outcome: outcome, Text: FormatAlert(ev)}
	if !s.allow(a.key(), window) {
		s.log.Debug("alert deduplicated", logx.Account(ev.Index), logx.String("outcome", outcome))
		return nil
	}
	select {
	case s.queue <- a:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-s.queue:
			s.send(ctx, a)
		}
	}
}

func (s *Service) send(ctx context.Context, a Alert) {
	s.mu.Lock()
	snd := s.sender
	lim := s.limiter
	chatID, threadID := s.cfg.ChatID, s.cfg.ThreadID
	s.mu.Unlock()
	if snd == nil {
		return
	}
	if err := lim.Wait(ctx); err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := snd.Send(cctx, chatID, threadID, a.Text); err != nil {
		s.log.Warn("alert send failed", logx.Account(a.Account), logx.Err(err))
		return
	}
	s.log.Debug("alert sent", logx.Account(a.Account), logx.String("outcome", a.Outcome))
}

func (s *Service) allow(key string, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	now := s.now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}

func (s *Service) clearAccount(index int) {
	prefix := strconv.Itoa(index) + "|"
	s.dmu.Lock()
	for k := range s.dedup {
		if strings.HasPrefix(k, prefix) {
			delete(s.dedup, k)
		}
	}
	s.dmu.Unlock()
}

func dedupKey(account int, outcome string) string {
	return strconv.Itoa(account) + "|" + outcome
}

// FormatAlert renders the message for one cycle event.
func FormatAlert(ev scheduler.CycleEvent) string {
	var b strings.Builder
	switch ev.Outcome {
	case workflow.OutcomeExpired:
		b.WriteString("🔑 ")
	case workflow.OutcomeFailed:
		b.WriteString("⚠️ ")
	default:
		b.WriteString("✅ ")
	}
	fmt.Fprintf(&b, "Account %d", ev.Index)
	if ev.Username != "" {
		fmt.Fprintf(&b, " (%s)", ev.Username)
	}
	fmt.Fprintf(&b, ": %s", ev.Outcome)
	if ev.Note != "" {
		b.WriteString("\n")
		b.WriteString(ev.Note)
	}
	if !ev.NextRunAt.IsZero() {
		fmt.Fprintf(&b, "\nNext run: %s UTC", ev.NextRunAt.UTC().Format("2006-01-02 15:04"))
	}
	return b.String()
}
