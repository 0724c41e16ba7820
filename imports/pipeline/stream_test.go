package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCountRows(t *testing.T) {
	path := writeCSV(t, "a,b\n1,2\n3,4\n5,6\n")

	headers, count, err := CountRows(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, headers)
	assert.Equal(t, 3, count)
}

func TestCountRowsEmptyFile(t *testing.T) {
	path := writeCSV(t, "")

	headers, count, err := CountRows(path)
	require.NoError(t, err)
	assert.Nil(t, headers)
	assert.Equal(t, 0, count)
}

func TestCountRowsHeaderOnly(t *testing.T) {
	path := writeCSV(t, "a,b\n")

	headers, count, err := CountRows(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, headers)
	assert.Equal(t, 0, count)
}

func TestStreamRowsKeysByHeader(t *testing.T) {
	path := writeCSV(t, "a,b,c\n1,2,3\n4,5\n6,7,8,9\n")
	headers, _, err := CountRows(path)
	require.NoError(t, err)

	var rows []RawRow
	var numbers []int
	err = StreamRows(path, headers, func(n int, row RawRow) error {
		numbers = append(numbers, n)
		rows = append(rows, row)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, numbers)
	assert.Equal(t, RawRow{"a": "1", "b": "2", "c": "3"}, rows[0])
	// short rows read as empty fields, extra fields are dropped
	assert.Equal(t, RawRow{"a": "4", "b": "5", "c": ""}, rows[1])
	assert.Equal(t, RawRow{"a": "6", "b": "7", "c": "8"}, rows[2])
}

func TestStreamRowsPropagatesCallbackError(t *testing.T) {
	path := writeCSV(t, "a\n1\n2\n")
	headers, _, err := CountRows(path)
	require.NoError(t, err)

	seen := 0
	err = StreamRows(path, headers, func(int, RawRow) error {
		seen++
		return os.ErrClosed
	})
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.Equal(t, 1, seen)
}

func TestCountRowsMissingFile(t *testing.T) {
	_, _, err := CountRows(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, os.IsNotExist(err))
}
