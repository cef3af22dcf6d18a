package credential

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// ErrNoCredentials is returned when an operation needs an API key but the
// pool was configured without any.
var ErrNoCredentials = errors.New("no API keys configured")

// Credential wraps a single Gemini API key. The raw secret must never appear
// in logs; use Last4 for diagnostics.
type Credential struct {
	secret string
}

// Secret returns the raw API key for use in outbound requests.
func (c Credential) Secret() string { return c.secret }

// Last4 returns a log-safe identifier for the credential.
func (c Credential) Last4() string {
	if len(c.secret) <= 4 {
		return c.secret
	}
	return c.secret[len(c.secret)-4:]
}

// Pool is an ordered list of credentials. Position in the pool is the
// fallback priority: the gateway tries index 0 first. A Pool is immutable
// after construction and safe for concurrent use.
type Pool struct {
	creds []Credential
}

// NewPool builds a pool from raw key strings, preserving order and dropping
// blank entries. An empty result is a valid (degraded) pool.
func NewPool(keys []string) Pool {
	creds := make([]Credential, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		creds = append(creds, Credential{secret: k})
	}
	return Pool{creds: creds}
}

// Load scans the environment for GEMINI_API_KEY_1, GEMINI_API_KEY_2, ...
// stopping at the first unset index, and returns the resulting pool.
// lookup is typically os.Getenv.
func Load(lookup func(string) string) Pool {
	var keys []string
	for i := 1; ; i++ {
		v := lookup(fmt.Sprintf("GEMINI_API_KEY_%d", i))
		if strings.TrimSpace(v) == "" {
			break
		}
		keys = append(keys, v)
	}
	return NewPool(keys)
}

// Len reports the number of credentials in the pool.
func (p Pool) Len() int { return len(p.creds) }

// All returns the credentials in fallback priority order.
func (p Pool) All() []Credential {
	out := make([]Credential, len(p.creds))
	copy(out, p.creds)
	return out
}

// PickRandom returns a uniformly random credential, used to hand a key to a
// secondary channel (the browser voice session) for load distribution.
func (p Pool) PickRandom() (Credential, error) {
	if len(p.creds) == 0 {
		return Credential{}, ErrNoCredentials
	}
	return p.creds[rand.Intn(len(p.creds))], nil
}
