// Package capture runs one decoder at a time and folds its output into
// the live table, the raw log and, on commit, the session store.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MaDonald/imsimap/internal/bus"
	"github.com/MaDonald/imsimap/internal/config"
	"github.com/MaDonald/imsimap/internal/cron"
	"github.com/MaDonald/imsimap/internal/export"
	"github.com/MaDonald/imsimap/internal/record"
	"github.com/MaDonald/imsimap/internal/session"
	"github.com/MaDonald/imsimap/internal/supervisor"
	"github.com/MaDonald/imsimap/internal/table"
)

const bannerFormat = "Starting IMSI MAP version 1.0 scan at %s"

var ErrNoRun = errors.New("no capture has been started")

type Options struct {
	Argv        []string
	Dir         string
	StopTimeout time.Duration
	Location    *time.Location
	// Checkpoint is a cron schedule for periodic commits while a run is
	// active. Empty disables checkpoints.
	Checkpoint string
	Params     session.Params
	// Bus receives line and record events when set. The owner must run
	// its Dispatch loop.
	Bus *bus.MessageBus
	Now func() time.Time
}

type Service struct {
	argv       []string
	loc        *time.Location
	now        func() time.Time
	checkpoint string

	log         zerolog.Logger
	sup         *supervisor.Supervisor
	table       *table.LiveTable
	writer      *session.Writer
	bus         *bus.MessageBus
	checkpoints *cron.Service

	runMu sync.Mutex // serializes Start and Stop

	mu        sync.Mutex
	params    session.Params
	runParams session.Params
	key       string
	runID     string
	raw       strings.Builder
	done      chan struct{}
	cancel    context.CancelFunc
}

func New(writer *session.Writer, opts Options, logger zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		argv:       append([]string(nil), opts.Argv...),
		loc:        opts.Location,
		now:        opts.Now,
		checkpoint: opts.Checkpoint,
		log:        logger.With().Str("component", "capture").Logger(),
		sup: supervisor.New(supervisor.Options{
			Dir:         opts.Dir,
			StopTimeout: opts.StopTimeout,
		}, logger),
		table:       table.New(),
		writer:      writer,
		bus:         opts.Bus,
		checkpoints: cron.NewService(logger),
		params:      opts.Params,
	}
	s.checkpoints.OnCheckpoint = func() error {
		_, err := s.Commit(context.Background())
		return err
	}
	return s
}

// Start stops any active run, resets the live table and raw log and
// launches the decoder with p. It returns the new session key.
func (s *Service) Start(ctx context.Context, p session.Params) (string, error) {
	if err := config.ValidateFrequency(p.Frequency); err != nil {
		return "", err
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.stopLocked(); err != nil {
		s.log.Warn().Err(err).Msg("stop previous run")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	key := session.Key(s.now(), s.loc)
	runID := uuid.NewString()

	s.mu.Lock()
	s.params = p
	s.runParams = p
	s.key = key
	s.runID = runID
	s.raw.Reset()
	s.table.Clear()
	s.appendLogLocked(fmt.Sprintf(bannerFormat, key))
	s.done = done
	s.cancel = cancel
	s.mu.Unlock()

	proc := s.sup.Start(s.argv)
	s.log.Info().
		Str("key", key).
		Str("run", runID).
		Float64("frequency", p.Frequency).
		Float64("gain", p.Gain).
		Float64("ppm", p.PPM).
		Msg("capture started")
	s.publish(runCtx, bus.Event{Kind: bus.EventStarted, RunID: runID, Key: key})

	if s.checkpoint != "" {
		if err := s.checkpoints.Start(runCtx, s.checkpoint); err != nil {
			s.log.Warn().Err(err).Msg("checkpoints disabled")
		}
	}

	go s.consume(runCtx, proc, runID, key, done)
	return key, nil
}

// consume is the only writer of the live table and raw log during a run,
// so records keep decoder order.
func (s *Service) consume(ctx context.Context, proc *supervisor.Process, runID, key string, done chan struct{}) {
	defer close(done)

	for line := range proc.Lines() {
		if line == "" || strings.Contains(line, record.HeaderMarker) {
			continue
		}
		s.mu.Lock()
		s.appendLogLocked(line)
		s.mu.Unlock()
		s.publish(ctx, bus.Event{Kind: bus.EventLine, RunID: runID, Key: key, Line: line})

		rec, ok := record.Parse(line)
		if !ok {
			continue
		}
		row := s.table.Append(rec)
		s.log.Debug().Str("imsi", rec.IMSI).Int("row", row).Msg("record")
		s.publish(ctx, bus.Event{Kind: bus.EventRecord, RunID: runID, Key: key, Record: rec, Row: row})
	}

	// A finished run has nothing new to checkpoint.
	s.checkpoints.Stop()
	s.log.Info().Str("run", runID).Int("records", s.table.Len()).AnErr("exit", proc.Err()).Msg("capture ended")
	s.publish(ctx, bus.Event{Kind: bus.EventStopped, RunID: runID, Key: key})
}

func (s *Service) publish(ctx context.Context, ev bus.Event) {
	if s.bus == nil {
		return
	}
	ev.Timestamp = s.now()
	s.bus.Publish(ctx, ev)
}

func (s *Service) appendLogLocked(line string) {
	if s.raw.Len() > 0 {
		s.raw.WriteByte('\n')
	}
	s.raw.WriteString(line)
}

// Stop terminates the decoder and waits until every line it produced has
// been applied. The live table and raw log stay available for commit and
// export.
func (s *Service) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.stopLocked()
}

func (s *Service) stopLocked() error {
	s.mu.Lock()
	done, cancel := s.done, s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	s.checkpoints.Stop()
	err := s.sup.Stop()
	// Unblocks a consumer waiting on a bus nobody dispatches.
	cancel()
	<-done
	s.log.Info().Str("key", s.Key()).Msg("capture stopped")
	return err
}

// Done is closed when the current run's decoder has exited and all of its
// output has been applied. With no run it is already closed.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

func (s *Service) Running() bool { return s.sup.Running() }

// Commit stores the current run under its key, replacing an earlier
// commit of the same run.
func (s *Service) Commit(ctx context.Context) (string, error) {
	key, sess, err := s.current()
	if err != nil {
		return "", err
	}
	if err := s.writer.Put(ctx, key, sess); err != nil {
		return "", fmt.Errorf("commit session %s: %w", key, err)
	}
	s.log.Info().Str("key", key).Msg("session committed")
	return key, nil
}

func (s *Service) current() (string, session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == "" {
		return "", session.Session{}, ErrNoRun
	}
	return s.key, session.New(s.runParams, s.raw.String()), nil
}

// Replay starts a new run with the parameters stored under key. The
// stored session is only read. A session whose parameters do not convert
// aborts the replay before anything changes.
func (s *Service) Replay(ctx context.Context, key string) (string, error) {
	sess, err := s.writer.Store().Get(key)
	if err != nil {
		return "", err
	}
	p, err := session.ReplayParams(key, sess)
	if err != nil {
		return "", err
	}
	s.log.Info().Str("from", key).Msg("replaying session")
	return s.Start(ctx, p)
}

// Export writes the live table to path, inferring the format from its
// extension.
func (s *Service) Export(path string) error {
	rows := s.table.Rows()
	if err := export.ExportFile(rows, path); err != nil {
		return err
	}
	s.log.Info().Str("path", path).Int("rows", len(rows)).Msg("table exported")
	return nil
}

// DumpFile writes the flat-text dump of the current run into dir.
func (s *Service) DumpFile(dir string) (string, error) {
	key, sess, err := s.current()
	if err != nil {
		return "", err
	}
	return session.DumpFile(dir, key, sess, s.table.Rows())
}

func (s *Service) Table() *table.LiveTable { return s.table }

func (s *Service) RawLog() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw.String()
}

func (s *Service) Params() session.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParams changes the parameters reported by Params. Commits keep
// recording the values the active run was started with.
func (s *Service) SetParams(p session.Params) error {
	if err := config.ValidateFrequency(p.Frequency); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	return nil
}

func (s *Service) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func (s *Service) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

func (s *Service) Argv() []string { return append([]string(nil), s.argv...) }
