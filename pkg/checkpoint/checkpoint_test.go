package checkpoint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/flock/pkg/checkpoint"
	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := checkpoint.NewStore(filepath.Join(dir, "rounds"), filepath.Join(dir, "models"))
	require.NoError(t, err)

	return store
}

func TestSaveAndLoadParameters(t *testing.T) {
	store := newTestStore(t)

	params := wire.Parameters{
		Tensors:    [][]byte{{1, 2, 3}, {4, 5}},
		TensorType: codec.TypeDense,
	}

	require.NoError(t, store.SaveParameters(1, params))
	require.NoError(t, store.SaveParameters(7, params))

	got, err := store.LoadParameters(7)
	require.NoError(t, err)
	assert.Equal(t, params.TensorType, got.TensorType)
	require.Len(t, got.Tensors, 2)
	assert.Equal(t, params.Tensors[0], got.Tensors[0])

	version, found, err := store.LatestVersion()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(7), version)
}

func TestLatestVersionEmpty(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.LatestVersion()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadMissingVersion(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadParameters(3)
	assert.Error(t, err)
}

func TestSaveRound(t *testing.T) {
	dir := t.TempDir()
	roundsDir := filepath.Join(dir, "rounds")
	store, err := checkpoint.NewStore(roundsDir, filepath.Join(dir, "models"))
	require.NoError(t, err)

	record := map[string]any{"round": 1, "aggregated": true}
	require.NoError(t, store.SaveRound("run-1", 1, record))

	entries, err := os.ReadDir(roundsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1_round_1.json", entries[0].Name())
}

func TestSaveRoundSanitizesRunID(t *testing.T) {
	dir := t.TempDir()
	roundsDir := filepath.Join(dir, "rounds")
	store, err := checkpoint.NewStore(roundsDir, filepath.Join(dir, "models"))
	require.NoError(t, err)

	require.NoError(t, store.SaveRound("../../etc/run", 2, map[string]any{}))

	entries, err := os.ReadDir(roundsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "etcrun_round_2.json", entries[0].Name())

	err = store.SaveRound("../..", 3, map[string]any{})
	assert.Error(t, err)
}
