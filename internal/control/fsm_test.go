package control

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piptrade/botd/internal/apperr"
	"github.com/piptrade/botd/internal/model"
	"github.com/piptrade/botd/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestFSM(t *testing.T) (*FSM, *store.Store, *fakeClock) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "fsm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := &fakeClock{now: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}
	fsm := New(st, clock.Now)
	require.NoError(t, fsm.Init(context.Background()))
	return fsm, st, clock
}

func TestInitCreatesActiveRow(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	c, err := fsm.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, c.State)
	assert.Empty(t, c.PauseUntilUTC)
}

func TestPauseAndThaw(t *testing.T) {
	fsm, _, clock := newTestFSM(t)
	ctx := context.Background()

	c, err := fsm.Pause(ctx, 2, "x")
	require.NoError(t, err)
	assert.Equal(t, model.StatePaused, c.State)
	assert.Equal(t, "x", c.PauseReason)
	assert.Greater(t, c.PauseUntilEpoch, clock.Now().Unix())

	c, err = fsm.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatePaused, c.State, "deadline not yet elapsed")

	clock.Advance(3 * time.Second)
	c, err = fsm.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, c.State, "lazy thaw after deadline")
	assert.Empty(t, c.PauseReason)
	assert.Empty(t, c.PauseUntilUTC)
	assert.Zero(t, c.PauseUntilEpoch)
}

func TestThawPersistsOnce(t *testing.T) {
	fsm, st, clock := newTestFSM(t)
	ctx := context.Background()

	_, err := fsm.Pause(ctx, 1, "x")
	require.NoError(t, err)
	clock.Advance(2 * time.Second)

	_, err = fsm.Current(ctx)
	require.NoError(t, err)
	_, err = fsm.Current(ctx)
	require.NoError(t, err)

	// One pause warning plus exactly one thaw event.
	events, err := st.TailEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventWarning, events[0].Type)
	assert.Equal(t, model.EventInfo, events[1].Type)
}

func TestPauseRenewalKeepsLaterDeadline(t *testing.T) {
	fsm, _, clock := newTestFSM(t)
	ctx := context.Background()

	first, err := fsm.Pause(ctx, 600, "long")
	require.NoError(t, err)

	clock.Advance(time.Second)
	second, err := fsm.Pause(ctx, 10, "short")
	require.NoError(t, err)
	assert.Equal(t, first.PauseUntilEpoch, second.PauseUntilEpoch,
		"shorter renewal must not shrink the deadline")
	assert.Greater(t, second.UpdatedAtUS, first.UpdatedAtUS)

	clock.Advance(time.Second)
	third, err := fsm.Pause(ctx, 3600, "extend")
	require.NoError(t, err)
	assert.Greater(t, third.PauseUntilEpoch, second.PauseUntilEpoch)
}

func TestCryoIndependentOfPause(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	ctx := context.Background()

	_, err := fsm.Pause(ctx, 600, "p")
	require.NoError(t, err)
	c, err := fsm.Cryo(ctx, 600, "deep freeze")
	require.NoError(t, err)
	assert.Equal(t, model.StateCryo, c.State)
	assert.Equal(t, "deep freeze", c.CryoReason)
	assert.Empty(t, c.PauseReason, "pause fields clear on state change")
	assert.Zero(t, c.PauseUntilEpoch)
}

func TestReviveClearsAndResetsPet(t *testing.T) {
	fsm, st, _ := newTestFSM(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertPet(ctx, model.Pet{
		TimeUTC: "t", AtEpoch: 1, Stage: "adult", Mood: "tired",
		Health: 10, Hunger: 90, Growth: 77, Sex: "girl", SurvivalMode: "PANIC",
	}))
	_, err := fsm.Cryo(ctx, 600, "freeze")
	require.NoError(t, err)

	c, err := fsm.Revive(ctx, "manual revive")
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, c.State)
	assert.Empty(t, c.CryoReason)
	assert.Empty(t, c.CryoUntilUTC)

	pet, err := st.LatestPet(ctx)
	require.NoError(t, err)
	require.NotNil(t, pet)
	assert.Equal(t, "egg", pet.Stage)
	assert.Equal(t, "focused", pet.Mood)
	assert.Equal(t, 100.0, pet.Health)
	assert.Equal(t, 50.0, pet.Hunger)
	assert.Equal(t, 0.0, pet.Growth)
	assert.Empty(t, pet.FaintedUntil)
	assert.Equal(t, "NORMAL", pet.SurvivalMode)
}

func TestUpdatedAtStrictlyIncreases(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	ctx := context.Background()

	// Frozen clock: every transition still has to move updated_at forward.
	prev, err := fsm.Current(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		c, err := fsm.Pause(ctx, 600, "r")
		require.NoError(t, err)
		assert.Greater(t, c.UpdatedAtUS, prev.UpdatedAtUS)
		prev = c
	}
}

func TestPauseRejectsNonPositiveSeconds(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	_, err := fsm.Pause(context.Background(), 0, "r")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))

	_, err = fsm.Cryo(context.Background(), -5, "r")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestTransitionEvents(t *testing.T) {
	fsm, st, _ := newTestFSM(t)
	ctx := context.Background()

	_, err := fsm.Pause(ctx, 600, "manual")
	require.NoError(t, err)
	_, err = fsm.Revive(ctx, "back")
	require.NoError(t, err)

	events, err := st.TailEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventWarning, events[0].Type)
	assert.Contains(t, events[0].Message, "manual")
	assert.Equal(t, model.EventInfo, events[1].Type)
	assert.Contains(t, events[1].Message, "back")
}
