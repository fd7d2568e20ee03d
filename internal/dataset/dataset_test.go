package dataset

import (
	"bytes"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func pcdFile(t *testing.T, pts ...r3.Vec) *fstest.MapFile {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WritePCD(&buf, cloud.New(pts), true))
	return &fstest.MapFile{Data: buf.Bytes()}
}

func TestDirectory(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"robot0/lidar/data/300.pcd":   pcdFile(t, r3.Vec{X: 3}),
		"robot0/lidar/data/100.pcd":   pcdFile(t, r3.Vec{X: 1}, r3.Vec{Y: 1}),
		"robot0/lidar/data/200.pcd":   pcdFile(t, r3.Vec{X: 2}),
		"robot0/lidar/data/notes.txt": {Data: []byte("ignored")},
		"robot0/lidar/data/abc.pcd":   {Data: []byte("ignored")},
	}
	d := Directory{FS: fsys}

	ts, err := d.Timestamps()
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200, 300}, ts)

	c, err := d.LoadScan(100)
	require.NoError(t, err)
	assert.Equal(t, []r3.Vec{{X: 1}, {Y: 1}}, c.Points)

	_, err = d.LoadScan(999)
	assert.True(t, errors.Is(err, ErrScanNotFound))
}

func TestDirectory_CorruptScan(t *testing.T) {
	t.Parallel()
	d := Directory{FS: fstest.MapFS{
		"robot0/lidar/data/1.pcd": {Data: []byte("VERSION 0.7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nPOINTS 1\nDATA binary_compressed\n")},
	}}
	_, err := d.LoadScan(1)
	assert.True(t, errors.Is(err, ErrUnsupportedPCD))
}

func TestDirectory_MissingScanDir(t *testing.T) {
	t.Parallel()
	_, err := Directory{FS: fstest.MapFS{}}.Timestamps()
	assert.Error(t, err)
}

func TestScanPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "robot0/lidar/data/1700000000123456789.pcd", ScanPath(1700000000123456789))
}
