// internal/pkg/session/revocation.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations is a Redis denylist of access token ids. Tokens are minted
// elsewhere, so logging out means refusing the jti until it expires.
type Revocations struct {
	client redis.UniversalClient
	prefix string
}

func NewRevocations(client redis.UniversalClient, prefix string) *Revocations {
	return &Revocations{
		client: client,
		prefix: prefix,
	}
}

// IsRevoked checks if a token id is on the denylist
func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return exists > 0, nil
}

// Revoke denies jti for ttl, which should cover the token's remaining
// lifetime.
func (r *Revocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return fmt.Errorf("token has no id")
	}
	if ttl <= 0 {
		// already expired; nothing to deny
		return nil
	}
	if err := r.client.Set(ctx, r.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (r *Revocations) key(jti string) string {
	return r.prefix + "revoked:" + jti
}
