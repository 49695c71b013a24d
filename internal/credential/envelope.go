// Package credential holds provider credentials in a process-local,
// TTL-bound, encrypted envelope keyed by task_id. Credentials never
// reach disk, the task snapshot, or the queue message.
package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/llmrank/internal/domain/plan"
)

// ErrExpired is returned when a caller asks for an envelope whose TTL
// has elapsed or that was never registered.
var ErrExpired = errors.New("credential envelope expired or absent")

// Handle is a per-model credential resolved for a single evaluation
// call. Its String method never prints the secret, only its kind, so
// an accidental %v/%s in a log line cannot leak it.
type Handle struct {
	ModelName string
	Kind      string
	secret    []byte
}

// String implements fmt.Stringer without leaking the secret.
func (h Handle) String() string {
	return fmt.Sprintf("credential{model=%s kind=%s}", h.ModelName, h.Kind)
}

// Reveal returns the plaintext secret. Callers must not log or persist
// the result; it exists only to be handed to the Evaluator collaborator.
func (h Handle) Reveal() string {
	return string(h.secret)
}

type entry struct {
	sealed    map[string]sealedHandle // by model name
	expiresAt time.Time
}

// Store is the in-memory credential envelope keyed by task_id.
type Store struct {
	mu      sync.RWMutex
	byTask  map[string]entry
	ttl     time.Duration
	gcm     cipher.AEAD
	stopped chan struct{}
	once    sync.Once
}

// NewStore builds a Store with the given TTL, using a fresh process-
// local AES-256-GCM key. The key never leaves the process and is
// never persisted, so a restart invalidates every outstanding
// envelope; the worker then fails that task with credentials_missing.
func NewStore(ttl time.Duration) (*Store, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("credential: generate process key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential: init gcm: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{
		byTask:  make(map[string]entry),
		ttl:     ttl,
		gcm:     gcm,
		stopped: make(chan struct{}),
	}, nil
}

// seal encrypts a plaintext secret at rest inside the process.
// Keeping secrets encrypted even in memory bounds the blast radius of
// a heap dump or debugger attach.
func (s *Store) seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("credential: nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (s *Store) open(ciphertext []byte) (string, error) {
	n := s.gcm.NonceSize()
	if len(ciphertext) < n {
		return "", errors.New("credential: ciphertext too short")
	}
	nonce, ct := ciphertext[:n], ciphertext[n:]
	pt, err := s.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("credential: open: %w", err)
	}
	return string(pt), nil
}

// sealedHandle mirrors Handle but stores ciphertext, used only inside
// the map so Reveal-time decryption stays localized to Get.
type sealedHandle struct {
	modelName string
	kind      string
	cipher    []byte
}

// Put registers one envelope for taskID, one credential per model.
// Models with no credential handle (public endpoints) are skipped.
func (s *Store) Put(ctx context.Context, taskID string, models []plan.ModelConfig) error {
	sealed := make(map[string]sealedHandle, len(models))
	for _, m := range models {
		if m.CredentialHandle == "" {
			continue
		}
		ct, err := s.seal(m.CredentialHandle)
		if err != nil {
			return err
		}
		sealed[m.Name] = sealedHandle{modelName: m.Name, kind: m.ProviderKind, cipher: ct}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTask[taskID] = entry{
		sealed:    sealed,
		expiresAt: timeNow().Add(s.ttl),
	}
	return nil
}

// Get decrypts and returns the envelope for taskID, or ErrExpired if it
// has expired or was never registered. Handles are decrypted only for
// the duration of this call's return value; the store itself never
// holds plaintext secrets between Put and Get.
func (s *Store) Get(ctx context.Context, taskID string) (map[string]Handle, error) {
	s.mu.RLock()
	e, ok := s.byTask[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrExpired
	}
	if timeNow().After(e.expiresAt) {
		s.Purge(ctx, taskID)
		return nil, ErrExpired
	}
	out := make(map[string]Handle, len(e.sealed))
	for name, sh := range e.sealed {
		pt, err := s.open(sh.cipher)
		if err != nil {
			continue
		}
		out[name] = Handle{ModelName: sh.modelName, Kind: sh.kind, secret: []byte(pt)}
	}
	return out, nil
}

// Purge removes taskID's envelope immediately. Called when a task
// enters a terminal state, and also by the background sweeper for
// envelopes whose TTL elapsed without ever being consumed.
func (s *Store) Purge(ctx context.Context, taskID string) {
	s.mu.Lock()
	delete(s.byTask, taskID)
	s.mu.Unlock()
}

// StartSweeper launches a background goroutine that purges expired
// envelopes on an interval, so an abandoned task's secrets don't linger
// past their TTL even if nobody calls Purge explicitly.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopped:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	now := timeNow()
	s.mu.Lock()
	for id, e := range s.byTask {
		if now.After(e.expiresAt) {
			delete(s.byTask, id)
		}
	}
	s.mu.Unlock()
}

// Stop halts the background sweeper.
func (s *Store) Stop() {
	s.once.Do(func() { close(s.stopped) })
}

// timeNow is indirected so tests can shift the clock without sleeping.
var timeNow = time.Now
