// Package id provides ID generation for locally minted identifiers.
//
// Sessions and jobs get their ids from remote storage and the job backend.
// Everything created on this side (transcript messages, API requests, trace
// spans) gets a prefixed ULID so ids sort by creation time and are easy to
// tell apart in logs.
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

// MessageID identifies a transcript message
type MessageID string

// RequestID identifies an API request
type RequestID string

// SpanID identifies a trace span
type SpanID string

const (
	MessagePrefix = "msg"
	RequestPrefix = "req"
	SpanPrefix    = "span"
)

// Generator generates monotonic ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
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

// NewGenerator creates a generator backed by crypto/rand.
// IDs minted within the same millisecond stay strictly increasing.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator over a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(entropy, 0)}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewMessageID generates a new message ID
func NewMessageID() MessageID {
	return MessageID(Default().GenerateWithPrefix(MessagePrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

func (id MessageID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id SpanID) String() string    { return string(id) }

// IsValid checks if an ID string is a valid ULID, with or without a prefix
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Parse parses a ULID string, stripping a known prefix if present
func Parse(id string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.ParseStrict(id)
}

// Timestamp extracts the creation time from an ID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
