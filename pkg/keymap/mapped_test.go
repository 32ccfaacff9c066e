package keymap

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dd0wney/cluso-bfi/pkg/bfi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() bfi.Options {
	opts := bfi.DefaultOptions()
	opts.SlotSize = 128
	opts.SlotsPerPage = 8
	opts.SignatureBits = 256
	return opts
}

func TestMapped_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.bfi")
	m, err := OpenMapped(path, testOptions())
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		pk := fmt.Sprintf("user-%02d", i)
		require.NoError(t, m.Insert(pk, []string{"user", fmt.Sprintf("group-%d", i%3)}))
	}
	assert.ErrorIs(t, m.Insert("user-05", []string{"x"}), bfi.ErrDuplicateKey)

	got, err := m.Lookup([]string{"group-1"})
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, "user-01", got[0])
	assert.Equal(t, "user-28", got[9])

	require.NoError(t, m.Write("user-04", []string{"admin"}))
	assert.ErrorIs(t, m.Write("nobody", []string{"x"}), bfi.ErrKeyNotFound)

	n, err := m.Sync()
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	require.NoError(t, m.Close())

	reopened, err := OpenMapped(path, testOptions())
	require.NoError(t, err)
	defer reopened.Close()

	got, err = reopened.Lookup([]string{"admin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-04"}, got)

	values, err := reopened.Get("user-07")
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "group-1"}, values)

	st, err := reopened.Stat()
	require.NoError(t, err)
	assert.Equal(t, uint64(30), st.Records)
	assert.Equal(t, 30, reopened.Keys().Len())
}

func TestMapped_RejectsKeyAddressedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyed.bfi")
	opts := testOptions()
	opts.Addressing = bfi.KeyAddressed
	idx, err := bfi.Open(path, opts)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = OpenMapped(path, testOptions())
	assert.ErrorIs(t, err, bfi.ErrWrongAddressing)
}
