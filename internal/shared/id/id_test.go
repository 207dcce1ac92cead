package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{MessagePrefix, RequestPrefix, SpanPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		if !strings.HasPrefix(id, prefix+"_") {
			t.Errorf("ID should start with '%s_', got: %s", prefix, id)
		}
		if !IsValid(id) {
			t.Errorf("Prefixed ID should parse: %s", id)
		}
	}
}

func TestTypedIDGeneration(t *testing.T) {
	if !strings.HasPrefix(string(NewMessageID()), "msg_") {
		t.Error("MessageID should start with 'msg_'")
	}
	if !strings.HasPrefix(string(NewRequestID()), "req_") {
		t.Error("RequestID should start with 'req_'")
	}
	if !strings.HasPrefix(string(NewSpanID()), "span_") {
		t.Error("SpanID should start with 'span_'")
	}
}

func TestIsValid(t *testing.T) {
	invalidIDs := []string{
		"",
		"invalid",
		"msg_1234567890",
		"zzzzzzzzzzzzzzzzzzzzzzzzzzz",
	}

	for _, id := range invalidIDs {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now()
	id := string(NewMessageID())
	after := time.Now()

	ts, err := Timestamp(id)
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	// millisecond precision
	if ts.UnixMilli() < before.UnixMilli() || ts.UnixMilli() > after.UnixMilli() {
		t.Errorf("Timestamp %d outside [%d, %d]", ts.UnixMilli(), before.UnixMilli(), after.UnixMilli())
	}
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	gen := NewGenerator()

	prev := gen.GenerateString()
	for i := 0; i < 1000; i++ {
		next := gen.GenerateString()
		if next <= prev {
			t.Fatalf("IDs should be strictly increasing: %s after %s", next, prev)
		}
		prev = next
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- gen.GenerateString()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for id := range idChan {
		if seen[id] {
			t.Errorf("Duplicate ID found in concurrent generation: %s", id)
		}
		seen[id] = true
	}

	if len(seen) != goroutines*idsPerGoroutine {
		t.Errorf("Expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}
