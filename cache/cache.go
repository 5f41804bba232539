/*
Package cache holds short-lived string values keyed by string.

PURPOSE:
  Loan quotes are pure functions of their inputs, so the service caches the
  serialized result. Memory is used in tests and single-process runs; Redis
  is used when REDIS_ADDR is configured.

SEE ALSO:
  - cooperative/service.go: QuoteLoan
*/
package cache

import (
	"context"
	"time"
)

// Cache is the key/value contract shared by all implementations.
// A miss is ("", false, nil), never an error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
