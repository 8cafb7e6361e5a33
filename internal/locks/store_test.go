package locks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())

	assert.False(t, store.Exists(17730))

	require.NoError(t, store.Write(17730, 4242))
	assert.True(t, store.Exists(17730))

	pid, err := store.Read(17730)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	require.NoError(t, store.Delete(17730))
	assert.False(t, store.Exists(17730))
}

func TestFileStorePathIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	assert.Equal(t, filepath.Join(dir, "rtcbridge-gateway-17750.pid"), store.Path(17750))
	assert.Equal(t, store.Path(17750), NewFileStore(dir).Path(17750))
}

func TestFileStoreContentIsBareDecimalPid(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.Write(17730, 31337))

	data, err := os.ReadFile(store.Path(17730))
	require.NoError(t, err)
	assert.Equal(t, "31337", string(data))
}

func TestFileStoreReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "non-integer pid", content: "not-a-pid"},
		{name: "empty file", content: ""},
		{name: "trailing garbage", content: "123abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFileStore(t.TempDir())
			require.NoError(t, os.WriteFile(store.Path(17730), []byte(tt.content), 0o644))

			_, err := store.Read(17730)
			assert.Error(t, err)
		})
	}
}

func TestFileStoreReadToleratesWhitespace(t *testing.T) {
	store := NewFileStore(t.TempDir())
	require.NoError(t, os.WriteFile(store.Path(17730), []byte("4242\n"), 0o644))

	pid, err := store.Read(17730)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestFileStoreDeleteAbsentIsNoError(t *testing.T) {
	store := NewFileStore(t.TempDir())
	assert.NoError(t, store.Delete(17730))
}

func TestFileStoreReadAbsent(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.Read(17730)
	assert.Error(t, err)
}

func TestUnixLiveness(t *testing.T) {
	liveness := NewUnixLiveness()

	assert.True(t, liveness.Alive(os.Getpid()), "own pid must be alive")
	assert.False(t, liveness.Alive(0))
	assert.False(t, liveness.Alive(-1))
	// Pid far beyond pid_max on any reasonable test machine.
	assert.False(t, liveness.Alive(99999999))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	assert.False(t, store.Exists(17730))
	require.NoError(t, store.Write(17730, 7))
	pid, err := store.Read(17730)
	require.NoError(t, err)
	assert.Equal(t, 7, pid)

	store.SetCorrupt(17750)
	assert.True(t, store.Exists(17750))
	_, err = store.Read(17750)
	assert.Error(t, err)

	require.NoError(t, store.Delete(17730))
	assert.False(t, store.Exists(17730))
}
