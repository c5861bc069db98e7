// Package facts keeps opportunistically extracted user attributes.
//
// Facts are scoped per session rather than held in a single process-wide
// slot, so concurrent sessions cannot leak attributes into each other.
// Requests without a session id share a fixed default session, which
// preserves the single-client behavior of one memory across uploads.
//
// Extraction is best-effort pattern matching behind the Extractor interface;
// a model-based extractor can replace RegexExtractor without touching the
// agent or the HTTP layer.
package facts

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultSessionID is the session used when a request carries no session id.
var DefaultSessionID = uuid.Nil

// Facts is the attribute snapshot for one session. Zero values mean the
// attribute has not been observed yet.
type Facts struct {
	Name       string
	Age        int
	Birthplace string
}

// Update carries newly extracted attributes. Nil fields leave the stored
// value unchanged; non-nil fields overwrite it.
type Update struct {
	Name       *string
	Age        *int
	Birthplace *string
}

// Empty reports whether the update carries no attributes.
func (u Update) Empty() bool {
	return u.Name == nil && u.Age == nil && u.Birthplace == nil
}

// Extractor extracts user attributes from a free-text message.
type Extractor interface {
	Extract(message string) Update
}

// Store holds per-session facts. Safe for concurrent use.
type Store struct {
	extractor Extractor

	mu       sync.RWMutex
	sessions map[uuid.UUID]Facts
}

// NewStore creates a Store using the given extractor.
// A nil extractor defaults to RegexExtractor.
func NewStore(extractor Extractor) *Store {
	if extractor == nil {
		extractor = NewRegexExtractor()
	}
	return &Store{
		extractor: extractor,
		sessions:  make(map[uuid.UUID]Facts),
	}
}

// Observe runs extraction on message and applies any matches to the
// session's facts. Absence of a match leaves each field unchanged.
func (s *Store) Observe(sessionID uuid.UUID, message string) {
	s.Apply(sessionID, s.extractor.Extract(message))
}

// Apply merges an update into the session's facts.
func (s *Store) Apply(sessionID uuid.UUID, u Update) {
	if u.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.sessions[sessionID]
	if u.Name != nil {
		f.Name = *u.Name
	}
	if u.Age != nil {
		f.Age = *u.Age
	}
	if u.Birthplace != nil {
		f.Birthplace = *u.Birthplace
	}
	s.sessions[sessionID] = f
}

// Facts returns a copy of the session's current snapshot.
func (s *Store) Facts(sessionID uuid.UUID) Facts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

// Answer composes the direct reply to an identity meta-question from the
// known facts. Unknown fields are omitted; with nothing known, the reply is
// a fixed "don't know yet" message.
func (f Facts) Answer() string {
	var parts []string
	if f.Name != "" {
		parts = append(parts, "Your name is "+f.Name)
	}
	if f.Age != 0 {
		parts = append(parts, "your age is "+itoa(f.Age))
	}
	if f.Birthplace != "" {
		parts = append(parts, "and you were born in "+f.Birthplace)
	}
	if len(parts) == 0 {
		return "I don't have that information yet."
	}
	return strings.Join(parts, ", ") + "."
}

// itoa avoids importing strconv for a single small positive int.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 && i > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
