package identity

import (
	"context"
	"time"

	"identd/cmd/security/accesskey"
)

// Identity is one persisted user record.
type Identity struct {
	ID        int64     `db:"id"`
	AccessKey string    `db:"access_key"`
	CreatedAt time.Time `db:"created_at"`
}

// NewIdentity carries the fields a caller may set when creating an identity.
type NewIdentity struct {
	AccessKey string
}

// KeyGenerator produces access keys. *accesskey.Generator satisfies it.
type KeyGenerator interface {
	Generate() string
}

// DefaultNewIdentity returns a creation request with a freshly generated key.
// A nil gen uses the process-wide accesskey generator.
func DefaultNewIdentity(gen KeyGenerator) NewIdentity {
	if gen == nil {
		return NewIdentity{AccessKey: accesskey.Generate()}
	}
	return NewIdentity{AccessKey: gen.Generate()}
}

// Store is the identity persistence boundary.
//
// Every call uses its own connection for its whole duration; implementations
// never multiplex one connection across concurrent calls. No method retries.
type Store interface {
	// Create inserts a new identity and returns it with its store-assigned ID.
	// A duplicate access key surfaces as a StoreError matching ErrConflict.
	Create(ctx context.Context, in NewIdentity) (Identity, error)

	// FindByAccessKey returns the identity whose key equals key exactly
	// (case-sensitive, no trimming).
	FindByAccessKey(ctx context.Context, key string) (Identity, error)

	// FindOne returns the identity with the given ID.
	FindOne(ctx context.Context, id int64) (Identity, error)

	// Ping checks that a connection can be acquired.
	Ping(ctx context.Context) error

	Close() error
}
