package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	s := testSim(t)
	st, err := s.Snapshot()
	require.NoError(t, err)

	blob, err := Encode(st)
	require.NoError(t, err)
	back, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, st, back)

	_, err = Decode([]byte("not zstd"))
	assert.True(t, hasCode(err, CodeCorrupt))
}

func TestSnapshotFile(t *testing.T) {
	s := testSim(t)
	_, err := s.AdvanceTo(3)
	require.NoError(t, err)
	st, err := s.Snapshot()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saves", "day1.snap.zst")
	require.NoError(t, WriteFile(path, Header{SaveID: "s1", Clock: 3, Seed: 3, Actors: 2}, st))

	h, back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Header{Version: SnapshotVersion, SaveID: "s1", Clock: 3, Seed: 3, Actors: 2}, h)
	assert.Equal(t, st, back)
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := ReadFile(filepath.Join(dir, "missing"))
	assert.True(t, hasCode(err, CodeNoState))

	junk := filepath.Join(dir, "junk")
	require.NoError(t, os.WriteFile(junk, []byte("plain text\n"), 0o644))
	_, _, err = ReadFile(junk)
	assert.True(t, hasCode(err, CodeCorrupt))
}
