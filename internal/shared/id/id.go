// Package id provides ULID-based identifier generation.
//
// Identifiers are prefixed by kind so they read well in logs and on the
// wire (sess_*, dlg_*, conn_*, req_*). Ids that the protocol defines as
// counters (targets, browser contexts, network requests) are not
// generated here.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a content session
type SessionID string

// DialogID identifies an open modal dialog
type DialogID string

// ConnectionID identifies a control connection
type ConnectionID string

// RequestID identifies a traced operation
type RequestID string

const (
	SessionPrefix    = "sess"
	DialogPrefix     = "dlg"
	ConnectionPrefix = "conn"
	RequestPrefix    = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewSessionID generates a content session id
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewDialogID generates a dialog id
func NewDialogID() DialogID {
	return DialogID(Default().GenerateWithPrefix(DialogPrefix))
}

// NewConnectionID generates a connection id
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().GenerateWithPrefix(ConnectionPrefix))
}

// NewRequestID generates a trace/span id
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id SessionID) String() string    { return string(id) }
func (id DialogID) String() string     { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id RequestID) String() string    { return string(id) }

// IsValid checks if a bare or prefixed id holds a valid ULID
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Parse parses a bare or prefixed ULID string
func Parse(id string) (ulid.ULID, error) {
	if _, rest, ok := strings.Cut(id, "_"); ok {
		id = rest
	}
	return ulid.Parse(id)
}

// Timestamp extracts the creation time of an id
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
