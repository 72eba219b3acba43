// Package issuance issues new identities and serves lookups on top of an
// identity.Store.
//
// It owns the caller-side policy the store deliberately omits: when an insert
// fails on the access_key unique constraint, a fresh key is generated and the
// insert retried, up to MaxAttempts. Every other failure is returned as is.
package issuance

import (
	"context"
	"errors"
	"log/slog"

	"identd/cmd/identity"
	"identd/cmd/security/accesskey"
)

// DefaultMaxAttempts bounds collision retries when Config.MaxAttempts is unset.
const DefaultMaxAttempts = 3

// ErrNilStore is returned by NewService when no store is supplied.
var ErrNilStore = errors.New("issuance: nil store")

// Config tunes the service.
type Config struct {
	// MaxAttempts is the total number of inserts tried per Issue call.
	MaxAttempts int
}

// Service issues and looks up identities.
type Service struct {
	store   identity.Store
	gen     identity.KeyGenerator
	log     *slog.Logger
	metrics *Metrics
	max     int
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator overrides the access key generator.
func WithGenerator(gen identity.KeyGenerator) Option {
	return func(s *Service) {
		if gen != nil {
			s.gen = gen
		}
	}
}

// WithLogger sets the logger used for collision and failure events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs a Service.
func NewService(store identity.Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	s := &Service{
		store: store,
		gen:   accesskey.NewGenerator(nil),
		log:   slog.Default(),
		max:   cfg.MaxAttempts,
	}
	if s.max <= 0 {
		s.max = DefaultMaxAttempts
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Issue creates a new identity with a freshly generated access key.
func (s *Service) Issue(ctx context.Context) (identity.Identity, error) {
	var lastErr error

	for attempt := 1; attempt <= s.max; attempt++ {
		out, err := s.store.Create(ctx, identity.DefaultNewIdentity(s.gen))
		if err == nil {
			s.metrics.issued()
			return out, nil
		}
		if !identity.IsConflict(err) {
			s.metrics.issueFailed()
			return identity.Identity{}, err
		}

		s.metrics.collision()
		s.log.Warn("identity.issue.collision", "attempt", attempt, "max_attempts", s.max)
		lastErr = err
	}

	s.metrics.issueFailed()
	s.log.Error("identity.issue.exhausted", "max_attempts", s.max)
	return identity.Identity{}, lastErr
}

// Lookup returns the identity owning key. The key is matched exactly.
func (s *Service) Lookup(ctx context.Context, key string) (identity.Identity, error) {
	out, err := s.store.FindByAccessKey(ctx, key)
	s.metrics.lookup("access_key", err)
	return out, err
}

// Get returns the identity with the given ID.
func (s *Service) Get(ctx context.Context, id int64) (identity.Identity, error) {
	out, err := s.store.FindOne(ctx, id)
	s.metrics.lookup("id", err)
	return out, err
}

// Ready reports whether the underlying store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
