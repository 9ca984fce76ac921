package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	robcron "github.com/robfig/cron/v3"
)

const (
	// DefaultSweepSchedule runs the janitor at the top of every hour.
	DefaultSweepSchedule = "0 * * * *"

	defaultMaxPendingAge      = 24 * time.Hour
	defaultMaxConversationAge = 30 * 24 * time.Hour
	defaultSweepTimeout       = 30 * time.Second
)

// Sweeper is a cron-driven janitor that purges expired pending-input records
// and stale conversations. Suspended runs never time out in process, so
// abandoned correlation rows accumulate until a sweep removes them.
type Sweeper struct {
	mu                 sync.Mutex
	cron               *robcron.Cron
	store              Store
	schedule           string
	maxPendingAge      time.Duration
	maxConversationAge time.Duration
	started            bool
}

type SweeperOption func(*Sweeper)

func WithSweepSchedule(expr string) SweeperOption {
	return func(s *Sweeper) {
		if expr != "" {
			s.schedule = expr
		}
	}
}

// WithMaxPendingAge bounds how long an unanswered pending-input record
// survives before a sweep removes it.
func WithMaxPendingAge(age time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if age > 0 {
			s.maxPendingAge = age
		}
	}
}

// WithMaxConversationAge bounds conversation retention. Zero disables
// conversation sweeping entirely.
func WithMaxConversationAge(age time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if age >= 0 {
			s.maxConversationAge = age
		}
	}
}

func NewSweeper(store Store, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		cron:               robcron.New(),
		store:              store,
		schedule:           DefaultSweepSchedule,
		maxPendingAge:      defaultMaxPendingAge,
		maxConversationAge: defaultMaxConversationAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the schedule and begins the cron loop. Non-blocking.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.started = true
	log.Printf("[sweeper] started, schedule %q", s.schedule)
	return nil
}

// Stop gracefully stops the cron loop.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.cron.Stop()
		s.started = false
	}
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSweepTimeout)
	defer cancel()
	if err := s.Sweep(ctx, time.Now().UTC()); err != nil {
		log.Printf("[sweeper] sweep failed: %v", err)
	}
}

// Sweep performs one pass against the given reference time.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) error {
	pendingRemoved, err := s.store.DeletePendingInputsBefore(ctx, now.Add(-s.maxPendingAge))
	if err != nil {
		return fmt.Errorf("sweep pending inputs: %w", err)
	}

	conversationsRemoved := 0
	if s.maxConversationAge > 0 {
		conversationsRemoved, err = s.store.DeleteConversationsBefore(ctx, now.Add(-s.maxConversationAge))
		if err != nil {
			return fmt.Errorf("sweep conversations: %w", err)
		}
	}

	if pendingRemoved > 0 || conversationsRemoved > 0 {
		log.Printf("[sweeper] removed %d pending inputs, %d conversations", pendingRemoved, conversationsRemoved)
	}
	return nil
}
