package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"
	"sendctl/pkg/errors"
	"sendctl/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionOptions struct {
	TextureBounds TextureBounds
	Metrics       ports.MetricsCollector
}

// Session owns the senders of one media connection and disposes them
// deterministically on Close.
type Session struct {
	id      domain.SessionID
	engine  ports.SenderEngine
	options SessionOptions
	logger  *zap.SugaredLogger

	mu      sync.RWMutex
	senders map[domain.SenderID]*Sender
	order   []domain.SenderID
	closed  bool
}

// NewSession fails with a not-initialized error until the engine has been
// initialized.
func NewSession(engine ports.SenderEngine, options SessionOptions, logger *zap.SugaredLogger) (*Session, error) {
	if !engine.Initialized() {
		return nil, errors.NewNotInitializedError()
	}
	if options.TextureBounds.Min <= 0 || options.TextureBounds.Max < options.TextureBounds.Min {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid texture bounds [%d, %d]",
			options.TextureBounds.Min, options.TextureBounds.Max))
	}

	id := domain.SessionID(uuid.NewString())
	logger.Infow("Session created", "session_id", id)

	return &Session{
		id:      id,
		engine:  engine,
		options: options,
		logger:  logger.With("session_id", id),
		senders: make(map[domain.SenderID]*Sender),
	}, nil
}

func (s *Session) ID() domain.SessionID {
	return s.id
}

// Attach wraps an engine sender handle in a Sender owned by the session.
func (s *Session) Attach(id domain.SenderID, handle domain.SenderHandle, kind domain.MediaKind) (*Sender, error) {
	if id == "" {
		return nil, errors.NewValidationError("sender id must not be empty")
	}
	if handle == 0 {
		return nil, errors.NewValidationError("sender handle must not be zero")
	}
	if !kind.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown media kind %d", uint32(kind)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.WrapError(domain.ErrSessionClosed, errors.ErrCodeInvalidHandle,
			fmt.Sprintf("session %s is closed", s.id), http.StatusGone)
	}
	if _, exists := s.senders[id]; exists {
		return nil, errors.WrapError(domain.ErrSenderExists, errors.ErrCodeValidation,
			fmt.Sprintf("sender %s already attached", id), http.StatusConflict)
	}

	sender := newSender(id, handle, kind, s.engine, s.options.TextureBounds, s.options.Metrics, s.logger)
	s.senders[id] = sender
	s.order = append(s.order, id)

	if s.options.Metrics != nil {
		s.options.Metrics.RecordSenderAttached(kind)
	}
	s.logger.Infow("Sender attached",
		"sender_id", id,
		"sender_handle", uint64(handle),
		"kind", kind.String(),
	)
	return sender, nil
}

func (s *Session) Sender(id domain.SenderID) (*Sender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sender, ok := s.senders[id]
	if !ok {
		return nil, errors.WrapError(domain.ErrSenderNotFound, errors.ErrCodeNotFound,
			fmt.Sprintf("sender %s not found", id), http.StatusNotFound)
	}
	return sender, nil
}

// Senders returns the senders in attach order.
func (s *Session) Senders() []*Sender {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Sender, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.senders[id])
	}
	return out
}

// Lookup returns the engine handle of an active sender.
func (s *Session) Lookup(id domain.SenderID) (domain.SenderHandle, bool) {
	s.mu.RLock()
	sender, ok := s.senders[id]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return sender.Handle()
}

// Remove disposes the sender and forgets it.
func (s *Session) Remove(ctx context.Context, id domain.SenderID) error {
	s.mu.Lock()
	sender, ok := s.senders[id]
	if ok {
		delete(s.senders, id)
		for i, existing := range s.order {
			if existing == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		return errors.WrapError(domain.ErrSenderNotFound, errors.ErrCodeNotFound,
			fmt.Sprintf("sender %s not found", id), http.StatusNotFound)
	}
	ctx = logger.WithSenderID(logger.WithSessionID(ctx, string(s.id)), string(id))
	return sender.Dispose(ctx)
}

// Close disposes every sender. Further calls are no-ops.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	senders := make([]*Sender, 0, len(s.order))
	for _, id := range s.order {
		senders = append(senders, s.senders[id])
	}
	s.mu.Unlock()

	ctx = logger.WithSessionID(ctx, string(s.id))
	var errs []error
	for _, sender := range senders {
		if err := sender.Dispose(logger.WithSenderID(ctx, string(sender.ID()))); err != nil {
			errs = append(errs, fmt.Errorf("dispose %s: %w", sender.ID(), err))
		}
	}

	s.logger.Infow("Session closed", "senders", len(senders), "errors", len(errs))
	return stderrors.Join(errs...)
}
