package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var ErrWriterClosed = errors.New("session writer closed")

// Writer owns every load-modify-save cycle of a Store. All Put calls are
// applied one at a time by a single goroutine, so concurrent callers in
// this process never lose each other's updates.
type Writer struct {
	store *Store
	log   zerolog.Logger

	reqs      chan putRequest
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type putRequest struct {
	key    string
	sess   Session
	result chan error
}

func NewWriter(store *Store, logger zerolog.Logger) *Writer {
	w := &Writer{
		store: store,
		log:   logger.With().Str("component", "session-writer").Logger(),
		reqs:  make(chan putRequest),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) Store() *Store { return w.store }

// Put stores sess under key, replacing any session with the same key and
// leaving the others untouched.
func (w *Writer) Put(ctx context.Context, key string, sess Session) error {
	req := putRequest{key: key, sess: sess, result: make(chan error, 1)}
	select {
	case w.reqs <- req:
	case <-w.quit:
		return ErrWriterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.result
}

// Close stops the writer after any in-flight Put has completed.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.quit) })
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)
	for {
		select {
		case req := <-w.reqs:
			req.result <- w.apply(req)
		case <-w.quit:
			return
		}
	}
}

func (w *Writer) apply(req putRequest) error {
	doc, err := w.store.Load()
	if err != nil {
		w.log.Error().Err(err).Str("key", req.key).Msg("load before save")
		return err
	}
	doc[req.key] = req.sess
	if err := w.store.Save(doc); err != nil {
		w.log.Error().Err(err).Str("key", req.key).Msg("save session")
		return err
	}
	w.log.Info().Str("key", req.key).Int("sessions", len(doc)).Msg("session saved")
	return nil
}
