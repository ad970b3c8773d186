package keycloak

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// saltBytes is the entropy per salt generation. 32 bytes keeps the hash
// input well above the 128-bit minimum for collision resistance.
const saltBytes = 32

// SaltManager generates and rotates the cryptographic salt used to
// namespace cache keys derived from raw tokens. Rotation limits the
// window in which a leaked salt enables cache-key correlation or
// poisoning. One previous generation is retained so cache lookups keep
// hitting across a rotation boundary.
//
// Salts are namespaced as <environment>:<instanceID>:<hex>, so two
// deployments (or two processes) never hash tokens identically.
//
// A SaltManager is safe for concurrent use. Callers that construct one
// must call [SaltManager.Shutdown] to stop the rotation timer.
type SaltManager struct {
	environment string
	instanceID  string
	interval    time.Duration

	mu           sync.RWMutex
	current      string
	previous     string
	hasPrevious  bool
	lastRotation time.Time
	rotations    uint64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// SaltStats is an observability snapshot of the salt lifecycle. It never
// exposes raw salt material.
type SaltStats struct {
	// LastRotation is when the current salt was generated.
	LastRotation time.Time `json:"last_rotation"`

	// NextRotation is when the next scheduled rotation fires.
	NextRotation time.Time `json:"next_rotation"`

	// Rotations counts rotations since construction (the initial
	// generation is not counted).
	Rotations uint64 `json:"rotations"`

	// HasPrevious reports whether a previous-generation salt is
	// currently retained.
	HasPrevious bool `json:"has_previous"`
}

// NewSaltManager creates a SaltManager with a fresh random salt and
// starts the background rotation timer. The environment string namespaces
// salts across deployments; the instance ID is generated per process.
func NewSaltManager(environment string, interval time.Duration) *SaltManager {
	if interval <= 0 {
		interval = DefaultSaltRotationInterval
	}
	m := &SaltManager{
		environment:  environment,
		instanceID:   uuid.NewString(),
		interval:     interval,
		current:      randomSaltHex(),
		lastRotation: time.Now(),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go m.rotationLoop()
	return m
}

// Current returns the namespaced current salt.
func (m *SaltManager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namespaced(m.current)
}

// Previous returns the namespaced previous-generation salt, if one is
// retained. The previous salt exists only between a rotation and the
// rotation after it.
func (m *SaltManager) Previous() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasPrevious {
		return "", false
	}
	return m.namespaced(m.previous), true
}

// Rotate moves the current salt to previous, generates a fresh current
// salt, and records the rotation time. Only one previous generation is
// retained. Rotate may be called on demand (for example after a suspected
// salt leak) in addition to the scheduled rotations.
func (m *SaltManager) Rotate() {
	fresh := randomSaltHex()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.previous = m.current
	m.hasPrevious = true
	m.current = fresh
	m.lastRotation = time.Now()
	m.rotations++
}

// Stats returns an observability snapshot. The raw salt value is never
// included.
func (m *SaltManager) Stats() SaltStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SaltStats{
		LastRotation: m.lastRotation,
		NextRotation: m.lastRotation.Add(m.interval),
		Rotations:    m.rotations,
		HasPrevious:  m.hasPrevious,
	}
}

// Shutdown stops the rotation timer and waits for the rotation goroutine
// to exit. Idempotent; safe to call multiple times.
func (m *SaltManager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

// rotationLoop fires Rotate on the configured interval until Shutdown.
func (m *SaltManager) rotationLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Rotate()
		case <-m.stop:
			return
		}
	}
}

// namespaced builds the full salt string. Callers hold m.mu.
func (m *SaltManager) namespaced(salt string) string {
	return m.environment + ":" + m.instanceID + ":" + salt
}

// randomSaltHex returns hex-encoded cryptographically secure random
// bytes. crypto/rand.Read never fails on supported platforms; a failure
// here means the process cannot do anything security-relevant, so panic.
func randomSaltHex() string {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("keycloak: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
