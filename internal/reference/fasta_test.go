package reference

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTiny(t *testing.T) *FASTA {
	t.Helper()
	f := NewFASTA(filepath.Join("testdata", "tiny.fa"))
	require.NoError(t, f.Load())
	return f
}

func TestFASTA_Load(t *testing.T) {
	f := loadTiny(t)

	assert.Equal(t, 2, f.ContigCount())
	// ">chr20" indexes under the canonical name
	assert.True(t, f.HasContig("20"))
	assert.True(t, f.HasContig("chr20"))
	assert.True(t, f.HasContig("21"))
	assert.False(t, f.HasContig("22"))
}

func TestFASTA_FetchJoinsLinesAndUppercases(t *testing.T) {
	f := loadTiny(t)

	// Sequence spans two lines, second line lowercase in the file.
	seq, err := f.Fetch("20", 8, 12)
	require.NoError(t, err)
	assert.Equal(t, "ACTT", seq)

	seq, err = f.Fetch("chr20", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "GTCCA", seq)
}

func TestFASTA_FetchOutOfBounds(t *testing.T) {
	f := loadTiny(t)

	_, err := f.Fetch("21", 0, 100)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = f.Fetch("99", 0, 1)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = f.Fetch("21", -1, 2)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestMemory_Fetch(t *testing.T) {
	m := NewMemory(map[string]string{"1": "ACGT"})

	seq, err := m.Fetch("1", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "CG", seq)

	_, err = m.Fetch("2", 0, 1)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestBase(t *testing.T) {
	m := NewMemory(map[string]string{"1": "ACGT"})

	b, err := Base(m, "1", 2)
	require.NoError(t, err)
	assert.Equal(t, byte('G'), b)

	_, err = Base(m, "1", 10)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
