package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrBufferFull is returned by ChannelSink when the worker is not keeping up.
	ErrBufferFull = errors.New("audit buffer full")
	// ErrSinkClosed is returned by ChannelSink after Close.
	ErrSinkClosed = errors.New("audit sink closed")
)

// ChannelSink hands events to a Worker without blocking the caller. It owns
// the channel: Close ends the worker's input, and Append after Close is
// rejected rather than sent.
type ChannelSink struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

func NewChannelSink(ch chan Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Append(_ context.Context, event Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close closes the channel once. Safe to call more than once.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Worker consumes audit events from a channel and forwards them to a sink.
// Sink failures are logged and do not stop the worker.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until ctx is cancelled or the inbox is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "audit sink append failed",
					"action", event.Action,
					"license_id", event.LicenseID,
					"error", err,
				)
			}
		}
	}
}
