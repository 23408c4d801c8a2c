package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlink-go/simlink/pkg/registry"
)

func TestIncrementActivatesOnlyFirstReference(t *testing.T) {
	reg := registry.New(registry.Config{})
	reg.GetOrCreate("sim/alt", registry.KindFloat)

	activated, err := reg.IncrementSubscription("sim/alt")
	require.NoError(t, err)
	assert.True(t, activated)

	activated, err = reg.IncrementSubscription("sim/alt")
	require.NoError(t, err)
	assert.False(t, activated)

	assert.Equal(t, 2, reg.Refcount("sim/alt"))
	assert.True(t, reg.IsMonitored("sim/alt"))
}

func TestDecrementReleasesOnlyLastReference(t *testing.T) {
	reg := registry.New(registry.Config{})
	reg.GetOrCreate("sim/alt", registry.KindFloat)

	_, err := reg.IncrementSubscription("sim/alt")
	require.NoError(t, err)
	_, err = reg.IncrementSubscription("sim/alt")
	require.NoError(t, err)

	deactivated, _, err := reg.DecrementSubscription("sim/alt")
	require.NoError(t, err)
	assert.False(t, deactivated)

	deactivated, idx, err := reg.DecrementSubscription("sim/alt")
	require.NoError(t, err)
	assert.True(t, deactivated)
	assert.Equal(t, uint32(0), idx)
	assert.False(t, reg.IsMonitored("sim/alt"))
}

func TestDecrementUntrackedPathFails(t *testing.T) {
	reg := registry.New(registry.Config{})

	_, _, err := reg.DecrementSubscription("sim/never")
	require.ErrorIs(t, err, registry.ErrUnknownDecrement)
}

func TestCapacityBoundLeavesTableUnchanged(t *testing.T) {
	reg := registry.New(registry.Config{MaxActive: 2})

	_, err := reg.IncrementSubscription("a")
	require.NoError(t, err)
	_, err = reg.IncrementSubscription("b")
	require.NoError(t, err)

	_, err = reg.IncrementSubscription("c")
	require.ErrorIs(t, err, registry.ErrCapacityExceeded)

	assert.Equal(t, 0, reg.Refcount("c"))
	_, ok := reg.IndexOf("c")
	assert.False(t, ok)
	assert.Len(t, reg.ActiveSubscriptions(), 2)

	// Existing subscriptions still work after the rejection.
	_, err = reg.IncrementSubscription("a")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Refcount("a"))
}

func TestInternalPathsNeverActivate(t *testing.T) {
	reg := registry.New(registry.Config{MaxActive: 1})

	activated, err := reg.IncrementSubscription(registry.Internal("_connection_status"))
	require.NoError(t, err)
	assert.False(t, activated)

	_, ok := reg.IndexOf(registry.Internal("_connection_status"))
	assert.False(t, ok)

	// An internal path does not consume wire capacity.
	activated, err = reg.IncrementSubscription("sim/alt")
	require.NoError(t, err)
	assert.True(t, activated)
}

func TestReactivateAssignsFreshSortedIndices(t *testing.T) {
	reg := registry.New(registry.Config{})

	_, err := reg.IncrementSubscription("z/last")
	require.NoError(t, err)
	_, err = reg.IncrementSubscription("a/first")
	require.NoError(t, err)
	_, err = reg.IncrementSubscription("m/middle")
	require.NoError(t, err)

	reg.ResetIndexes()
	_, ok := reg.IndexOf("z/last")
	assert.False(t, ok)

	subs := reg.Reactivate()
	require.Len(t, subs, 3)
	assert.Equal(t, "a/first", subs[0].Path)
	assert.Equal(t, uint32(0), subs[0].Index)
	assert.Equal(t, "m/middle", subs[1].Path)
	assert.Equal(t, uint32(1), subs[1].Index)
	assert.Equal(t, "z/last", subs[2].Path)
	assert.Equal(t, uint32(2), subs[2].Index)

	path, ok := reg.PathAt(1)
	require.True(t, ok)
	assert.Equal(t, "m/middle", path)
}

func TestReactivateDiscardsStaleIndices(t *testing.T) {
	reg := registry.New(registry.Config{})

	// Indices assigned before reactivation, in subscription order.
	_, err := reg.IncrementSubscription("b/second")
	require.NoError(t, err)
	_, err = reg.IncrementSubscription("a/first")
	require.NoError(t, err)

	// No explicit reset: reactivation must not layer fresh indices
	// on top of the old assignment.
	subs := reg.Reactivate()
	require.Len(t, subs, 2)
	assert.Equal(t, uint32(0), subs[0].Index)
	assert.Equal(t, "a/first", subs[0].Path)
	assert.Equal(t, uint32(1), subs[1].Index)
	assert.Equal(t, "b/second", subs[1].Path)

	for _, sub := range subs {
		path, ok := reg.PathAt(sub.Index)
		require.True(t, ok)
		assert.Equal(t, sub.Path, path)
	}
	_, ok := reg.PathAt(2)
	assert.False(t, ok)
}

func TestApplyValueChangeDetection(t *testing.T) {
	reg := registry.New(registry.Config{})
	reg.GetOrCreate("sim/alt", registry.KindFloat)

	assert.True(t, reg.ApplyValue("sim/alt", 3500.0))
	assert.False(t, reg.ApplyValue("sim/alt", 3500.0))
	assert.True(t, reg.ApplyValue("sim/alt", 3600.0))

	p, ok := reg.Get("sim/alt")
	require.True(t, ok)
	assert.Equal(t, int64(3), p.UpdateCount())
	assert.Equal(t, int64(2), p.ChangeCount())
	assert.Equal(t, 3600.0, p.CurrentValue())
	assert.Equal(t, 3500.0, p.PreviousValue())
}

func TestApplyValueCreatesUnknownPoints(t *testing.T) {
	reg := registry.New(registry.Config{})

	assert.True(t, reg.ApplyValue("fma/line1", "CLB"))

	p, ok := reg.Get("fma/line1")
	require.True(t, ok)
	assert.Equal(t, registry.KindString, p.Kind())
}

func TestRoundingQuantizesBeforeChangeDetection(t *testing.T) {
	reg := registry.New(registry.Config{
		Roundings: map[string]int{"sim/hdg": 1},
	})
	reg.GetOrCreate("sim/hdg", registry.KindFloat)

	assert.True(t, reg.ApplyValue("sim/hdg", 179.96))
	// 179.96 and 180.02 both round to 180.0.
	assert.False(t, reg.ApplyValue("sim/hdg", 180.02))

	v, ok := reg.Value("sim/hdg")
	require.True(t, ok)
	assert.Equal(t, 180.0, v)
}

func TestRoundingArrayWildcard(t *testing.T) {
	reg := registry.New(registry.Config{
		Roundings: map[string]int{"sim/engines/n1[*]": 0},
	})

	reg.GetOrCreate("sim/engines/n1[3]", registry.KindFloat)
	reg.ApplyValue("sim/engines/n1[3]", 84.4)

	v, ok := reg.Value("sim/engines/n1[3]")
	require.True(t, ok)
	assert.Equal(t, 84.0, v)
}

func TestFrequencyOverrides(t *testing.T) {
	reg := registry.New(registry.Config{
		Frequencies: map[string]float64{"sim/fast": 10},
	})
	reg.GetOrCreate("sim/fast", registry.KindFloat)
	reg.GetOrCreate("sim/slow", registry.KindFloat)

	assert.Equal(t, 10, reg.FrequencyHz("sim/fast"))
	assert.Equal(t, 1, reg.FrequencyHz("sim/slow"))
}

func TestListeners(t *testing.T) {
	reg := registry.New(registry.Config{})
	reg.GetOrCreate("sim/alt", registry.KindFloat)

	seen := 0
	id, err := reg.AddListener("sim/alt", func(path string, value any) {
		seen++
	})
	require.NoError(t, err)

	for _, fn := range reg.Listeners("sim/alt") {
		fn("sim/alt", 1.0)
	}
	assert.Equal(t, 1, seen)

	reg.RemoveListener("sim/alt", id)
	assert.Empty(t, reg.Listeners("sim/alt"))
}

func TestAddListenerUnknownPath(t *testing.T) {
	reg := registry.New(registry.Config{})
	_, err := reg.AddListener("sim/none", func(string, any) {})
	require.ErrorIs(t, err, registry.ErrUnknownPath)
}

func TestAddAccumulates(t *testing.T) {
	reg := registry.New(registry.Config{})

	v, changed := reg.Add("data:_reads", 1)
	assert.Equal(t, 1.0, v)
	assert.True(t, changed)

	v, changed = reg.Add("data:_reads", 1)
	assert.Equal(t, 2.0, v)
	assert.True(t, changed)

	v, changed = reg.Add("data:_reads", 0)
	assert.Equal(t, 2.0, v)
	assert.False(t, changed)
}

func TestValuesSnapshot(t *testing.T) {
	reg := registry.New(registry.Config{})
	reg.GetOrCreate("sim/alt", registry.KindFloat)
	reg.GetOrCreate("sim/never", registry.KindFloat)
	reg.ApplyValue("sim/alt", 3500.0)

	values := reg.Values()
	assert.Equal(t, map[string]any{"sim/alt": 3500.0}, values)
}

func TestSplitArrayPath(t *testing.T) {
	reg := registry.New(registry.Config{})

	p := reg.GetOrCreate("sim/engines/n1[2]", registry.KindFloat)
	assert.True(t, p.IsArrayElement())
	assert.Equal(t, "sim/engines/n1", p.BasePath())
	assert.Equal(t, 2, p.Element())

	p = reg.GetOrCreate("sim/alt", registry.KindFloat)
	assert.False(t, p.IsArrayElement())
	assert.Equal(t, "sim/alt", p.BasePath())
}
