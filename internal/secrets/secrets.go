package secrets

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kraken/pkg/core"
)

// Credentials is an API key and its base64 encoded secret.
type Credentials struct {
	Key    string
	Secret string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Key:%s}", maskKey(c.Key))
}

// Provider supplies the credentials for the next signed request.
type Provider interface {
	Credentials() (Credentials, error)
}

// ErrorObserver is implemented by providers that react to request failures,
// e.g. by rotating to another key.
type ErrorObserver interface {
	OnError(err error)
}

// Static always returns the same credentials.
type Static struct {
	creds Credentials
}

func NewStatic(key, secret string) *Static {
	return &Static{creds: Credentials{Key: key, Secret: secret}}
}

func (s *Static) Credentials() (Credentials, error) {
	if s.creds.Key == "" || s.creds.Secret == "" {
		return Credentials{}, core.ErrNoCredentials
	}
	return s.creds, nil
}

func (s *Static) String() string {
	return s.creds.String()
}

// FromEnv reads the key and secret from the named environment variables.
func FromEnv(keyVar, secretVar string) (*Static, error) {
	key := os.Getenv(keyVar)
	if key == "" {
		return nil, fmt.Errorf("read %s: %w", keyVar, core.ErrNoCredentials)
	}
	secret := os.Getenv(secretVar)
	if secret == "" {
		return nil, fmt.Errorf("read %s: %w", secretVar, core.ErrNoCredentials)
	}
	return NewStatic(key, secret), nil
}

// KeyRing rotates through several API keys. Each key needs its own nonce
// window on Kraken; a shared increasing nonce provider satisfies all of them.
type KeyRing struct {
	mu       sync.RWMutex
	keys     []*APIKey
	current  int
	strategy RotationStrategy
	logger   zerolog.Logger
}

type APIKey struct {
	ID         string
	Key        string
	Secret     string
	Disabled   bool
	LastUsed   time.Time
	ErrorCount int
}

type RotationStrategy int

const (
	// RotationRoundRobin moves to the next key after every use.
	RotationRoundRobin RotationStrategy = iota
	// RotationOnError moves to the next key after any reported error.
	RotationOnError
	// RotationOnRateLimit moves to the next key after a rate-limit error.
	RotationOnRateLimit
)

func NewKeyRing(keys []*APIKey, strategy RotationStrategy) *KeyRing {
	keysCopy := make([]*APIKey, len(keys))
	for i, k := range keys {
		keysCopy[i] = &APIKey{
			ID:         k.ID,
			Key:        k.Key,
			Secret:     k.Secret,
			Disabled:   k.Disabled,
			LastUsed:   k.LastUsed,
			ErrorCount: k.ErrorCount,
		}
	}

	return &KeyRing{
		keys:     keysCopy,
		strategy: strategy,
		logger:   zerolog.Nop(),
	}
}

func (k *KeyRing) SetLogger(logger zerolog.Logger) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.logger = logger
}

// Credentials returns the current enabled key and marks it used.
func (k *KeyRing) Credentials() (Credentials, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	idx, ok := k.enabledFrom(k.current)
	if !ok {
		return Credentials{}, core.ErrNoCredentials
	}
	k.current = idx
	key := k.keys[idx]
	key.LastUsed = time.Now()
	creds := Credentials{Key: key.Key, Secret: key.Secret}

	if k.strategy == RotationRoundRobin {
		k.rotate()
	}
	return creds, nil
}

// Current returns a copy of the key that the next call will use.
func (k *KeyRing) Current() (APIKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	idx, ok := k.enabledFrom(k.current)
	if !ok {
		return APIKey{}, false
	}
	return *k.keys[idx], true
}

func (k *KeyRing) Rotate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rotate()
}

// OnError counts err against the current key and rotates as the strategy says.
func (k *KeyRing) OnError(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.keys) == 0 {
		return
	}

	key := k.keys[k.current]
	key.ErrorCount++

	switch {
	case k.strategy == RotationOnError,
		k.strategy == RotationOnRateLimit && core.IsRateLimitError(err):
		k.rotate()
		k.logger.Warn().
			Str("from", key.ID).
			Str("to", k.keys[k.current].ID).
			Err(err).
			Msg("api key rotated")
	}
}

func (k *KeyRing) Disable(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, key := range k.keys {
		if key.ID == id {
			key.Disabled = true
			return
		}
	}
}

func (k *KeyRing) Enable(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, key := range k.keys {
		if key.ID == id {
			key.Disabled = false
			key.ErrorCount = 0
			return
		}
	}
}

func (k *KeyRing) Add(key *APIKey) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, existing := range k.keys {
		if existing.ID == key.ID {
			return
		}
	}

	k.keys = append(k.keys, &APIKey{
		ID:     key.ID,
		Key:    key.Key,
		Secret: key.Secret,
	})
}

func (k *KeyRing) Remove(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, key := range k.keys {
		if key.ID == id {
			k.keys = append(k.keys[:i], k.keys[i+1:]...)
			if i < k.current {
				k.current--
			}
			if k.current >= len(k.keys) {
				k.current = 0
			}
			return
		}
	}
}

// rotate advances to the next enabled key. Must hold k.mu.
func (k *KeyRing) rotate() {
	if len(k.keys) == 0 {
		return
	}
	if idx, ok := k.enabledFrom(k.current + 1); ok {
		k.current = idx
	}
}

// enabledFrom returns the first enabled key at or after start, wrapping.
func (k *KeyRing) enabledFrom(start int) (int, bool) {
	for i := 0; i < len(k.keys); i++ {
		idx := (start + i) % len(k.keys)
		if !k.keys[idx].Disabled {
			return idx, true
		}
	}
	return 0, false
}

func (k *APIKey) String() string {
	return fmt.Sprintf("APIKey{ID:%s, Key:%s}", k.ID, maskKey(k.Key))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
