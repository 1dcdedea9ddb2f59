package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/traychat/internal/model"
	"github.com/capitalize-ai/traychat/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return NewStore(filepath.Join(t.TempDir(), "nested", "settings.json"), log)
}

func readFile(t *testing.T, path string) model.Settings {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s model.Settings
	require.NoError(t, json.Unmarshal(data, &s))
	return s
}

func TestLoad_CreatesFileWithDefaults(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Load("base-model", true)
	require.NoError(t, err)
	assert.Equal(t, model.Settings{Model: "base-model", PreventExit: true}, got)
	assert.Equal(t, got, readFile(t, store.Path()))
	assert.True(t, store.PreventExit())

	// A second load with different defaults returns the persisted values.
	got, err = store.Load("other", false)
	require.NoError(t, err)
	assert.Equal(t, model.Settings{Model: "base-model", PreventExit: true}, got)
	assert.True(t, store.PreventExit())
}

func TestSaveThenLoad_RoundTrip(t *testing.T) {
	tests := []model.Settings{
		{Model: "sonar", PreventExit: true},
		{Model: "sonar-pro", PreventExit: false},
		{Model: "", PreventExit: false},
	}

	for _, want := range tests {
		t.Run(want.Model, func(t *testing.T) {
			store := newTestStore(t)
			require.NoError(t, store.Save(want.Model, want.PreventExit))

			got, err := store.Load("ignored", !want.PreventExit)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSave_OverwritesAndLeavesCacheAlone(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("m1", false)
	require.NoError(t, err)
	assert.False(t, store.PreventExit())

	require.NoError(t, store.Save("m2", true))
	assert.False(t, store.PreventExit(), "save must not refresh the cached flag")
	assert.Equal(t, model.Settings{Model: "m2", PreventExit: true}, readFile(t, store.Path()))

	// Load refreshes it.
	_, err = store.Load("x", false)
	require.NoError(t, err)
	assert.True(t, store.PreventExit())
}

func TestSetExitPrevention_Inverts(t *testing.T) {
	store := newTestStore(t)

	store.SetExitPrevention(true)
	assert.False(t, store.PreventExit())

	store.SetExitPrevention(false)
	assert.True(t, store.PreventExit())
}

func TestSetExitPrevention_DoesNotWriteFile(t *testing.T) {
	store := newTestStore(t)
	store.SetExitPrevention(false)

	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestLoad_MalformedFile(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{not json"},
		{"null", "null"},
		{"empty object", "{}"},
		{"unrelated fields", `{"unrelated":1}`},
		{"missing prevent_exit", `{"model":"m"}`},
		{"missing model", `{"prevent_exit":true}`},
		{"wrong type", `{"model":1,"prevent_exit":true}`},
		{"array", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
			require.NoError(t, os.WriteFile(store.Path(), []byte(tt.body), 0o600))
			store.SetExitPrevention(false)

			_, err := store.Load("base-model", false)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPersistence)

			// The cached flag keeps its value and the file is left as is.
			assert.True(t, store.PreventExit())
			data, readErr := os.ReadFile(store.Path())
			require.NoError(t, readErr)
			assert.Equal(t, tt.body, string(data))
		})
	}
}

func TestLoad_IgnoresExtraFields(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"model":"sonar","prevent_exit":false,"theme":"dark"}`), 0o600))

	got, err := store.Load("other", true)
	require.NoError(t, err)
	assert.Equal(t, model.Settings{Model: "sonar", PreventExit: false}, got)
}

func TestLoad_UnreadablePath(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be makes the read fail with something other than not-exist.
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.Mkdir(path, 0o700))

	store := NewStore(path, nil)
	_, err := store.Load("m", true)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestSave_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	store := NewStore(filepath.Join(blocker, "settings.json"), nil)
	err := store.Save("m", true)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("m", true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Save("m", i%2 == 0))
		}(i)
		go func() {
			defer wg.Done()
			_, err := store.Load("d", false)
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			store.SetExitPrevention(i%2 == 0)
			_ = store.PreventExit()
		}(i)
	}
	wg.Wait()

	// Whatever interleaving happened, the file still parses.
	_ = readFile(t, store.Path())
}
