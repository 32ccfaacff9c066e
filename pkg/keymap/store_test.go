package keymap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.pk")
	s, err := OpenStore(path, nil)
	require.NoError(t, err)
	assert.Zero(t, s.Len())

	require.NoError(t, s.Put("carol", 2))
	require.NoError(t, s.Put("alice", 0))
	require.NoError(t, s.Put("bob", 1))
	assert.ErrorIs(t, s.Put("alice", 9), ErrKeyExists)
	assert.ErrorIs(t, s.Put("dave", 1), ErrSlotMapped)
	require.NoError(t, s.Close())

	reloaded, err := OpenStore(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, reloaded.Keys())

	slot, ok := reloaded.Slot("bob")
	assert.True(t, ok)
	assert.Equal(t, uint32(1), slot)
	key, ok := reloaded.Key(2)
	assert.True(t, ok)
	assert.Equal(t, "carol", key)

	assert.True(t, reloaded.Remove("bob"))
	assert.False(t, reloaded.Remove("bob"))
	_, ok = reloaded.Key(1)
	assert.False(t, ok)
}

func TestStore_Ascend(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "keys.pk"), nil)
	require.NoError(t, err)
	for i, k := range []string{"d", "a", "c", "b", "e"} {
		require.NoError(t, s.Put(k, uint32(i)))
	}

	var got []string
	s.Ascend("b", "e", func(k string, _ uint32) bool {
		got = append(got, k)
		return true
	})
	assert.Equal(t, []string{"b", "c", "d"}, got)

	got = nil
	s.Ascend("", "", func(k string, _ uint32) bool {
		got = append(got, k)
		return len(got) < 2
	})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestStore_CleanSyncDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.pk")
	s, err := OpenStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Sync())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStore_RejectsCorruptTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.pk")
	s, err := OpenStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(strings.Repeat("k", 40), 7))
	require.NoError(t, s.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xff; return b }},
		{"flipped block byte", func(b []byte) []byte { b[tableHeaderSize] ^= 0xff; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-2] }},
		{"too short", func(b []byte) []byte { return b[:5] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := filepath.Join(t.TempDir(), "broken.pk")
			require.NoError(t, os.WriteFile(broken, tt.mutate(append([]byte(nil), data...)), 0o644))
			_, err := OpenStore(broken, nil)
			assert.ErrorIs(t, err, ErrCorruptTable)
		})
	}
}
