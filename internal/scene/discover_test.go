package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateFromName(t *testing.T) {
	d, ok := DateFromName("/data/worcs_S2_2019-07-14.tif")
	require.True(t, ok)
	assert.Equal(t, "2019-07-14", d.Format("2006-01-02"))

	d, ok = DateFromName("LE07_L2SP_203024_20050612_02_T1.tif")
	require.True(t, ok)
	assert.Equal(t, 2005, d.Year())

	_, ok = DateFromName("boundary.tif")
	assert.False(t, ok)
}

func TestDiscoverGroupsByYear(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"s2_2020-03-01.tif",
		"s2_2020-01-05.tif",
		"nested/s2_2021-05-09.TIF",
		"notes_2020-01-01.txt",
		"undated.tif",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}

	byYear, undated, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "s2_2020-01-05.tif"),
		filepath.Join(dir, "s2_2020-03-01.tif"),
	}, byYear[2020])
	assert.Len(t, byYear[2021], 1)
	assert.Equal(t, []string{filepath.Join(dir, "undated.tif")}, undated)
}
