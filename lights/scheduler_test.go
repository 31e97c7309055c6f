package lights

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(period time.Duration) *Scheduler {
	s := NewScheduler(period)
	s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return s
}

func TestScheduler_StartsRed(t *testing.T) {
	s := newScheduler(0)

	assert.Equal(t, DefaultCycle, s.Period)
	for id := Light1; id <= LightCount; id++ {
		assert.False(t, s.IsGreen(id), "light %d", id)
	}
}

func TestScheduler_AdvanceKeepsNodeSidesOpposed(t *testing.T) {
	s := newScheduler(time.Second)

	expected := []map[int]bool{
		{1: true, 2: true, 3: false, 4: true, 5: false, 6: true},
		{1: false, 2: false, 3: true, 4: false, 5: true, 6: false},
		{1: true, 2: true, 3: false, 4: true, 5: false, 6: true},
	}

	for i, phases := range expected {
		s.Advance()
		assert.Equal(t, phases, s.Phases(), "cycle %d", i+1)
		assert.NotEqual(t, s.IsGreen(Light2), s.IsGreen(Light3))
		assert.NotEqual(t, s.IsGreen(Light4), s.IsGreen(Light5))
	}
	assert.Equal(t, 3, s.Cycles())
}

func TestScheduler_EmergencyOverride(t *testing.T) {
	s := newScheduler(time.Second)
	s.Advance()

	require.NoError(t, s.SetEmergencyGreen(Light3, true))
	assert.True(t, s.IsGreen(Light3))
	assert.True(t, s.IsGreen(Light2), "override only touches the requested light")

	s.Advance()
	assert.NotEqual(t, s.IsGreen(Light2), s.IsGreen(Light3))
}

func TestScheduler_UnknownLight(t *testing.T) {
	s := newScheduler(time.Second)

	for _, id := range []int{0, 7, -1} {
		assert.ErrorIs(t, s.SetEmergencyGreen(id, true), ErrUnknownLight)
		assert.False(t, s.IsGreen(id))
	}
	assert.Len(t, s.Phases(), LightCount)
}

func TestScheduler_RunAdvancesUntilCancelled(t *testing.T) {
	s := newScheduler(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return s.Cycles() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_LogsPhasesAsGroup(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(time.Second)
	s.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.Advance()

	var record struct {
		Msg    string          `json:"msg"`
		Phases map[string]bool `json:"phases"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "traffic lights changed", record.Msg)
	assert.Len(t, record.Phases, LightCount)
	assert.True(t, record.Phases["1"])
	assert.False(t, record.Phases["3"])
}
