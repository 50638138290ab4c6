package signing

import (
	"context"
	"sync"
)

// SecretSource fetches the signing secret from the external secret
// store. Implementations must be safe for concurrent use.
type SecretSource interface {
	FetchSigningSecret(ctx context.Context) ([]byte, error)
}

// SecretCache memoizes the signing secret for the lifetime of the worker
// process. The first successful fetch wins; a failed fetch is not cached,
// so callers can retry on the next message. There is no invalidation:
// rotating the secret means restarting the workers.
type SecretCache struct {
	source SecretSource

	mu     sync.Mutex
	secret []byte
}

func NewSecretCache(source SecretSource) *SecretCache {
	return &SecretCache{source: source}
}

// Get returns the cached signing secret, fetching it on first use.
// Errors propagate to the caller as retryable infrastructure failures:
// no signing can happen without the secret.
func (c *SecretCache) Get(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.secret != nil {
		return c.secret, nil
	}

	secret, err := c.source.FetchSigningSecret(ctx)
	if err != nil {
		return nil, err
	}
	c.secret = secret
	return c.secret, nil
}
