package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlink-go/simlink/pkg/snapshot"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "values.cbor")
	store := snapshot.NewStore(path)

	err := store.Save(map[string]any{
		"sim/alt":   3500.0,
		"fma/line1": "CLB",
	})
	require.NoError(t, err)

	values, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 3500.0, values["sim/alt"])
	assert.Equal(t, "CLB", values["fma/line1"])
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store := snapshot.NewStore(filepath.Join(t.TempDir(), "absent.cbor"))

	values, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, values)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cbor")
	require.NoError(t, os.WriteFile(path, []byte("not cbor at all"), 0o644))

	_, err := snapshot.NewStore(path).Load()
	require.Error(t, err)
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.cbor")
	store := snapshot.NewStore(path)

	require.NoError(t, store.Save(map[string]any{"a": 1.0}))
	require.NoError(t, store.Save(map[string]any{"b": 2.0}))

	values, err := store.Load()
	require.NoError(t, err)
	assert.NotContains(t, values, "a")
	assert.Equal(t, 2.0, values["b"])
}
