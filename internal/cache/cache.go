package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Key namespaces.
const (
	NamespaceSchema   = "schema"
	NamespacePopulate = "populate"
)

// Store is the persistent key-value backend.
type Store interface {
	GetCacheEntry(key string) (string, bool, error)
	PutCacheEntry(key, value string) error
}

// Generator produces the value for a missing key.
type Generator func(ctx context.Context) ([]string, error)

// ArtifactCache memoizes generated statement lists. Store failures degrade
// to direct generation and are only logged.
type ArtifactCache struct {
	store       Store
	versionKeys bool
	logger      *slog.Logger
}

// New returns a cache over st. A nil store disables caching.
func New(st Store, versionKeys bool, logger *slog.Logger) *ArtifactCache {
	return &ArtifactCache{store: st, versionKeys: versionKeys, logger: logger}
}

// Key builds "<namespace>:<dbID>". With version keys enabled a non-empty
// fingerprint is appended, so a changed schema misses instead of reading a
// stale entry.
func (c *ArtifactCache) Key(namespace, dbID, fingerprint string) string {
	key := namespace + ":" + dbID
	if c.versionKeys && fingerprint != "" {
		key += ":" + fingerprint
	}
	return key
}

// Fingerprint hashes a rendered schema with murmur3-128.
func Fingerprint(text string) string {
	h := murmur3.New128()
	h.Write([]byte(text))
	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}

func namespaceOf(key string) string {
	ns, _, _ := strings.Cut(key, ":")
	return ns
}

// separator keeps multi-line DDL intact by splitting schema entries on blank
// lines only.
func separator(key string) string {
	if namespaceOf(key) == NamespaceSchema {
		return "\n\n"
	}
	return "\n"
}

func serialize(key string, values []string) string {
	return strings.Join(values, separator(key))
}

func deserialize(key, value string) []string {
	var out []string
	for _, part := range strings.Split(value, separator(key)) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// GetOrGenerate returns the cached value for key, or calls gen and stores its
// result. With bypass set the store is neither read nor written.
func (c *ArtifactCache) GetOrGenerate(ctx context.Context, key string, gen Generator, bypass bool) ([]string, error) {
	if bypass || c.store == nil {
		return gen(ctx)
	}

	raw, ok, err := c.store.GetCacheEntry(key)
	switch {
	case err != nil:
		c.logger.Warn("cache degraded: read failed", "key", key, "error", err)
	case ok:
		c.logger.Debug("cache hit", "key", key)
		return deserialize(key, raw), nil
	}

	values, err := gen(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.store.PutCacheEntry(key, serialize(key, values)); err != nil {
		c.logger.Warn("cache degraded: write failed", "key", key, "error", err)
	} else {
		c.logger.Debug("cache stored", "key", key, "statements", len(values))
	}
	return values, nil
}
