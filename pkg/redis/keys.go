package redis

import "strings"

// Keyspace prefixes every key so CastMaster can share a Redis with other
// services.
type Keyspace string

const DefaultKeyspace Keyspace = "cm"

// IdempotencyKey names the claim for one-shot work such as a job's
// completion email or a Stripe event.
func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.join("idempotency", scope, id)
}

func (k Keyspace) RateLimitKey(scope, subject string) string {
	return k.join("rate_limit", scope, subject)
}

func (k Keyspace) LockKey(name string) string {
	return k.join("lock", name)
}

func (k Keyspace) join(parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
