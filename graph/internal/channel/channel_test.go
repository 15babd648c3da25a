package channel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastValueChannel(t *testing.T) {
	ch := New("value", TypeLastValue)

	require.False(t, ch.IsAvailable())
	_, err := ch.Get()
	require.ErrorIs(t, err, ErrEmptyChannel)

	applied, err := ch.Update([]any{"first"})
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, ch.IsAvailable())
	require.EqualValues(t, 1, ch.Version())

	v, err := ch.Get()
	require.NoError(t, err)
	require.Equal(t, "first", v)

	applied, err = ch.Update(nil)
	require.NoError(t, err)
	require.False(t, applied)
	require.EqualValues(t, 1, ch.Version())

	_, err = ch.Update([]any{"a", "b"})
	require.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestBinaryOperatorChannel(t *testing.T) {
	appendReducer := func(current, value any) (any, error) {
		list, _ := current.([]any)
		return append(list, value), nil
	}
	ch := New("acc", TypeBinaryOperator,
		WithReducer(appendReducer, func() any { return []any{} }))

	applied, err := ch.Update([]any{"a", "b"})
	require.NoError(t, err)
	require.True(t, applied)

	v, err := ch.Get()
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b"}, v)

	// Values fold onto the existing state, in write order.
	_, err = ch.Update([]any{"c"})
	require.NoError(t, err)
	v, err = ch.Get()
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b", "c"}, v)
	require.EqualValues(t, 2, ch.Version())
}

func TestBinaryOperatorReducerError(t *testing.T) {
	boom := errors.New("bad value")
	ch := New("acc", TypeBinaryOperator,
		WithReducer(func(current, value any) (any, error) { return nil, boom }, nil))
	_, err := ch.Update([]any{1})
	require.ErrorIs(t, err, boom)
}

func TestTopicChannel(t *testing.T) {
	ch := New("events", TypeTopic)

	applied, err := ch.Update([]any{"x", "y"})
	require.NoError(t, err)
	require.True(t, applied)
	_, err = ch.Update([]any{"z"})
	require.NoError(t, err)

	v, err := ch.Get()
	require.NoError(t, err)
	require.Equal(t, []any{"x", "y", "z"}, v)

	// The batch expires once consumed at the step boundary.
	require.True(t, ch.Consume())
	require.False(t, ch.IsAvailable())
}

func TestTopicChannelDedup(t *testing.T) {
	ch := New("events", TypeTopic, WithDedup())

	_, err := ch.Update([]any{"x", "x", "y"})
	require.NoError(t, err)
	_, err = ch.Update([]any{"y", "z"})
	require.NoError(t, err)

	v, err := ch.Get()
	require.NoError(t, err)
	require.Equal(t, []any{"x", "y", "z"}, v)
}

func TestEphemeralChannel(t *testing.T) {
	ch := New("tmp", TypeEphemeral)

	_, err := ch.Update([]any{"v"})
	require.NoError(t, err)
	require.True(t, ch.IsAvailable())

	// First boundary after the write keeps the value.
	require.False(t, ch.Consume())
	require.True(t, ch.IsAvailable())

	// A boundary with no intervening write clears it.
	require.True(t, ch.Consume())
	require.False(t, ch.IsAvailable())
	_, err = ch.Get()
	require.ErrorIs(t, err, ErrEmptyChannel)
}

func TestBarrierChannel(t *testing.T) {
	ch := New("join", TypeBarrier, WithExpectedWriters("a", "b"))

	_, err := ch.Update([]any{WriterContribution{Writer: "a", Value: 1}})
	require.NoError(t, err)
	require.False(t, ch.IsAvailable(), "barrier must wait for all declared writers")

	_, err = ch.Update([]any{WriterContribution{Writer: "b", Value: 2}})
	require.NoError(t, err)
	require.True(t, ch.IsAvailable())

	v, err := ch.Get()
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1, "b": 2}, v)

	require.True(t, ch.Finish())
	require.False(t, ch.IsAvailable())
}

func TestBarrierChannelRejectsUndeclaredWriter(t *testing.T) {
	ch := New("join", TypeBarrier, WithExpectedWriters("a"))
	_, err := ch.Update([]any{WriterContribution{Writer: "intruder", Value: 1}})
	require.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestChannelCheckpointRoundTrip(t *testing.T) {
	appendReducer := func(current, value any) (any, error) {
		list, _ := current.([]any)
		return append(list, value), nil
	}
	channels := map[string]*Channel{
		"last":    New("last", TypeLastValue),
		"reduced": New("reduced", TypeBinaryOperator, WithReducer(appendReducer, func() any { return []any{} })),
		"topic":   New("topic", TypeTopic),
		"barrier": New("barrier", TypeBarrier, WithExpectedWriters("w")),
	}
	_, err := channels["last"].Update([]any{"v"})
	require.NoError(t, err)
	_, err = channels["reduced"].Update([]any{1, 2})
	require.NoError(t, err)
	_, err = channels["topic"].Update([]any{"a", "b"})
	require.NoError(t, err)
	_, err = channels["barrier"].Update([]any{WriterContribution{Writer: "w", Value: "done"}})
	require.NoError(t, err)

	for name, ch := range channels {
		restored := ch.FromCheckpoint(ch.Checkpoint())
		assert.Equal(t, ch.Version(), restored.Version(), name)
		assert.Equal(t, ch.IsAvailable(), restored.IsAvailable(), name)
		want, err1 := ch.Get()
		got, err2 := restored.Get()
		require.NoError(t, err1, name)
		require.NoError(t, err2, name)
		assert.Equal(t, want, got, name)
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"ints", int64(1), int64(2), -1},
		{"equal ints", int64(3), int64(3), 0},
		{"int and float", int64(2), float64(1), 1},
		{"nil below everything", nil, int64(0), -1},
		{"numeric prefix dominates", "10.a", "2.a", 1},
		{"lex tail breaks ties", "10.a", "10.b", -1},
		{"leading zeros", "01.a", "02.a", -1},
		{"segment count", "1.2", "1.2.3", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestVersionCompareTotalOrder(t *testing.T) {
	versions := []string{"01.a", "02.a", "10.a", "10.b", "2.c"}
	for i, a := range versions {
		for j, b := range versions {
			c := Compare(a, b)
			switch {
			case i == j:
				assert.Zero(t, c, fmt.Sprintf("%s vs %s", a, b))
			default:
				assert.Equal(t, -Compare(b, a), c, fmt.Sprintf("%s vs %s", a, b))
			}
		}
	}
}

func TestVersionMax(t *testing.T) {
	assert.Equal(t, "10.a", Max("01.a", "02.a", "10.a"))
	assert.Equal(t, int64(7), Max(int64(3), int64(7), int64(5)))
	assert.Nil(t, Max())
	assert.Equal(t, "2.a", Max(nil, "2.a"))
}
