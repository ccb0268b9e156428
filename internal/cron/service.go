package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrRunning = errors.New("checkpoint scheduler already running")

const stopTimeout = 5 * time.Second

// Service fires OnCheckpoint on a cron schedule ("@every 5m",
// "*/10 * * * *") while a capture runs.
type Service struct {
	OnCheckpoint func() error

	log    zerolog.Logger
	mu     sync.Mutex
	cron   *rcron.Cron
	entry  rcron.EntryID
	stopCh chan struct{}
	fired  int
}

func NewService(logger zerolog.Logger) *Service {
	return &Service{log: logger.With().Str("component", "cron").Logger()}
}

// Validate reports whether spec is a schedule Start would accept.
func Validate(spec string) error {
	if _, err := rcron.ParseStandard(spec); err != nil {
		return fmt.Errorf("parse checkpoint schedule %q: %w", spec, err)
	}
	return nil
}

// Start schedules checkpoints until Stop is called or ctx is done.
func (s *Service) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrRunning
	}

	c := rcron.New()
	id, err := c.AddFunc(spec, s.executeCheckpoint)
	if err != nil {
		return fmt.Errorf("parse checkpoint schedule %q: %w", spec, err)
	}
	stopCh := make(chan struct{})
	s.cron, s.entry, s.stopCh = c, id, stopCh
	c.Start()
	s.log.Info().Str("schedule", spec).Msg("checkpoints started")

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

func (s *Service) executeCheckpoint() {
	if s.OnCheckpoint == nil {
		s.log.Warn().Msg("no OnCheckpoint handler set")
		return
	}
	if err := s.OnCheckpoint(); err != nil {
		s.log.Warn().Err(err).Msg("checkpoint failed")
		return
	}
	s.mu.Lock()
	s.fired++
	s.mu.Unlock()
	s.log.Debug().Msg("checkpoint saved")
}

// Next is the time of the next scheduled checkpoint, zero when stopped.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Fired counts successful checkpoints since the service was created.
func (s *Service) Fired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Stop waits for a running checkpoint to finish. Safe to call twice.
func (s *Service) Stop() {
	s.mu.Lock()
	c, stopCh := s.cron, s.stopCh
	s.cron, s.stopCh = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	close(stopCh)

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(stopTimeout):
		s.log.Warn().Msg("stop timeout waiting for running checkpoint")
	}
	s.log.Info().Msg("checkpoints stopped")
}
