package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	assert.NotEqual(t, gen.GenerateString(), gen.GenerateString())
	assert.Len(t, gen.GenerateString(), 26)
}

func TestTypedIDs(t *testing.T) {
	ids := map[string]string{
		SessionPrefix:    NewSessionID().String(),
		DialogPrefix:     NewDialogID().String(),
		ConnectionPrefix: NewConnectionID().String(),
		RequestPrefix:    NewRequestID().String(),
	}

	for prefix, value := range ids {
		parts := strings.Split(value, "_")
		require.Len(t, parts, 2, value)
		assert.Equal(t, prefix, parts[0])
		assert.Len(t, parts[1], 26)
		assert.True(t, IsValid(value), "prefixed id should parse: %s", value)
	}
}

func TestIsValid(t *testing.T) {
	for _, bad := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz", "sess_nope"} {
		assert.False(t, IsValid(bad), bad)
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().UnixMilli()
	value := NewDialogID().String()
	after := time.Now().UnixMilli()

	ts, err := Timestamp(value)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts.UnixMilli(), before)
	assert.LessOrEqual(t, ts.UnixMilli(), after)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	out := make(chan string, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				out <- gen.GenerateString()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[string]bool, goroutines*perGoroutine)
	for value := range out {
		assert.False(t, seen[value], "duplicate id %s", value)
		seen[value] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	gen := NewGenerator()
	prev := gen.GenerateString()
	for i := 0; i < 100; i++ {
		next := gen.GenerateString()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(SessionPrefix)
	}
}
