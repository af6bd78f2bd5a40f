package rawlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-tracker/internal/domain/battle"
)

const testBattleID = "0123456789abcdef0123456789abcdef"

func TestStore_AppendAndRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "logs"))

	first := []battle.RawSubmission{{Lines: []string{"Initializing Arena (Round 1 / 5) ..."}, Time: 100}}
	second := []battle.RawSubmission{
		{Lines: []string{"You gain 10 Credits!"}, Time: 101},
		{Lines: []string{"garbage", "You gain 5 EXP!"}, Time: 102},
	}

	require.NoError(t, s.Append(testBattleID, &Header{PK: testBattleID, Time: 100}, first))
	require.NoError(t, s.Append(testBattleID, nil, second))

	files, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{s.Path(testBattleID)}, files)

	header, subs, err := ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, Header{PK: testBattleID, Time: 100}, header)
	assert.Equal(t, append(first, second...), subs)

	require.NoError(t, s.Remove(testBattleID))
	require.NoError(t, s.Remove(testBattleID))
	files, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStore_Disabled(t *testing.T) {
	s := NewStore("")
	assert.False(t, s.Enabled())
	require.NoError(t, s.Append(testBattleID, nil, []battle.RawSubmission{{Lines: []string{"x"}}}))

	files, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReadFile_MissingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.hv")
	require.NoError(t, os.WriteFile(path, []byte(`{"lines":["a"],"time":1}`+"\n"), 0o644))

	_, _, err := ReadFile(path)
	require.ErrorIs(t, err, ErrMissingHeader)

	empty := filepath.Join(t.TempDir(), "empty.hv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, _, err = ReadFile(empty)
	require.ErrorIs(t, err, ErrMissingHeader)
}
