package correlate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelator_DefaultMatcherResolvesById(t *testing.T) {
	c := New()
	id := c.NextID()

	result, err := c.Register(context.Background(), id, DefaultMatcher(id), time.Second)
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]any{"id": id, "result": "ok"})
	assert.True(t, c.Dispatch(raw))

	got := <-result
	assert.Equal(t, Match, got.Outcome)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_CustomMatcherSkipsUntilItsOwnReply(t *testing.T) {
	c := New()

	matcherA := func(raw []byte) MatchResult {
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		if m["channel"] == "a" {
			return MatchResult{Outcome: Match, Value: m}
		}
		return MatchResult{Outcome: Skip}
	}
	matcherB := func(raw []byte) MatchResult {
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		if m["channel"] == "b" {
			return MatchResult{Outcome: Match, Value: m}
		}
		return MatchResult{Outcome: Skip}
	}

	resultA, err := c.Register(context.Background(), "a", matcherA, time.Second)
	require.NoError(t, err)
	resultB, err := c.Register(context.Background(), "b", matcherB, time.Second)
	require.NoError(t, err)

	rawB, _ := json.Marshal(map[string]any{"channel": "b"})
	assert.True(t, c.Dispatch(rawB))

	select {
	case got := <-resultB:
		assert.Equal(t, Match, got.Outcome)
	case <-time.After(time.Second):
		t.Fatal("matcherB never resolved")
	}
	assert.Equal(t, 1, c.Pending())

	rawA, _ := json.Marshal(map[string]any{"channel": "a"})
	assert.True(t, c.Dispatch(rawA))
	got := <-resultA
	assert.Equal(t, Match, got.Outcome)
}

func TestCorrelator_TimeoutDeliversErrTimeout(t *testing.T) {
	c := New()
	result, err := c.Register(context.Background(), "never", func([]byte) MatchResult {
		return MatchResult{Outcome: Skip}
	}, 10*time.Millisecond)
	require.NoError(t, err)

	got := <-result
	assert.Equal(t, MatchError, got.Outcome)
	assert.ErrorIs(t, got.Err, ErrTimeout)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_RegisterRejectsNilMatcher(t *testing.T) {
	c := New()
	_, err := c.Register(context.Background(), "x", nil, time.Second)
	assert.ErrorIs(t, err, ErrNoMatcher)
}

func TestCorrelator_UnmatchedDispatchReturnsFalse(t *testing.T) {
	c := New()
	raw, _ := json.Marshal(map[string]any{"id": "nobody-waiting"})
	assert.False(t, c.Dispatch(raw))
}
