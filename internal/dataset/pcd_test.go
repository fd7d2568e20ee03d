package dataset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const asciiPCD = `# .PCD v0.7 - Point Cloud Data file format
VERSION 0.7
FIELDS x y z intensity
SIZE 4 4 4 4
TYPE F F F F
COUNT 1 1 1 1
WIDTH 3
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 3
DATA ascii
1.5 -2 0.25 10
nan nan nan 0
3 4 5 7
`

func TestReadPCD_ASCII(t *testing.T) {
	t.Parallel()
	c, err := ReadPCD(strings.NewReader(asciiPCD))
	require.NoError(t, err)
	assert.Equal(t, []r3.Vec{{X: 1.5, Y: -2, Z: 0.25}, {X: 3, Y: 4, Z: 5}}, c.Points)
	assert.False(t, c.HasNormals())
}

func TestReadPCD_BinaryF8WithLeadingField(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	buf.WriteString("VERSION 0.7\nFIELDS ring x y z\nSIZE 2 8 8 8\nTYPE U F F F\nCOUNT 1 1 1 1\nWIDTH 2\nHEIGHT 1\nPOINTS 2\nDATA binary\n")
	for _, p := range []r3.Vec{{X: 1, Y: 2, Z: 3}, {X: -0.125, Y: 1e-3, Z: 42}} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(7)))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, [3]float64{p.X, p.Y, p.Z}))
	}

	c, err := ReadPCD(&buf)
	require.NoError(t, err)
	assert.Equal(t, []r3.Vec{{X: 1, Y: 2, Z: 3}, {X: -0.125, Y: 1e-3, Z: 42}}, c.Points)
}

func TestWritePCD_ReadBack(t *testing.T) {
	t.Parallel()
	in := cloud.New([]r3.Vec{{X: 0.5, Y: -1.25, Z: 2}, {X: 10, Y: 20, Z: -30}, {Z: 0.75}})
	for _, bin := range []bool{true, false} {
		var buf bytes.Buffer
		require.NoError(t, WritePCD(&buf, in, bin))
		out, err := ReadPCD(&buf)
		require.NoError(t, err)
		assert.Equal(t, in.Points, out.Points, "binary=%v", bin)
	}
}

func TestReadPCD_Float32Precision(t *testing.T) {
	t.Parallel()
	in := cloud.New([]r3.Vec{{X: 0.1, Y: 0.2, Z: 0.3}})
	var buf bytes.Buffer
	require.NoError(t, WritePCD(&buf, in, true))
	out, err := ReadPCD(&buf)
	require.NoError(t, err)
	assert.Equal(t, float64(float32(0.1)), out.Points[0].X)
	assert.InDelta(t, 0.3, out.Points[0].Z, 1e-7)
}

func TestReadPCD_Errors(t *testing.T) {
	t.Parallel()
	header := func(fields, sizes, types, data string, points int) string {
		n := strconv.Itoa(points)
		return "VERSION 0.7\nFIELDS " + fields + "\nSIZE " + sizes + "\nTYPE " + types +
			"\nWIDTH " + n + "\nHEIGHT 1\nPOINTS " + n + "\nDATA " + data + "\n"
	}
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"compressed", header("x y z", "4 4 4", "F F F", "binary_compressed", 1), ErrUnsupportedPCD},
		{"missing z", header("x y", "4 4", "F F", "ascii", 1) + "1 2\n", ErrUnsupportedPCD},
		{"integer coordinates", header("x y z", "4 4 4", "I I I", "ascii", 1) + "1 2 3\n", ErrUnsupportedPCD},
		{"size mismatch", header("x y z", "4 4", "F F F", "ascii", 1), ErrUnsupportedPCD},
		{"truncated binary", header("x y z", "4 4 4", "F F F", "binary", 2) + "\x00\x00\x00\x00", io.ErrUnexpectedEOF},
		{"short ascii", header("x y z", "4 4 4", "F F F", "ascii", 3) + "1 2 3\n", io.ErrUnexpectedEOF},
		{"no data line", "VERSION 0.7\nFIELDS x y z\n", io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPCD(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	_, err := ReadPCD(strings.NewReader(header("x y z", "4 4 4", "F F F", "ascii", 1) + "1 two 3\n"))
	assert.Error(t, err)
}

func TestReadPCD_RejectsImplausibleCounts(t *testing.T) {
	t.Parallel()
	const fields = "VERSION 0.7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\n"
	tests := []struct {
		name  string
		input string
	}{
		{"points disagree with width", fields + "WIDTH 2\nHEIGHT 1\nPOINTS 3\nDATA ascii\n1 2 3\n"},
		{"width times height overflows", fields + "WIDTH 9000000000000000000\nHEIGHT 4\nDATA ascii\n1 2 3\n"},
		{"huge points with matching width", fields + "WIDTH 9000000000000000\nHEIGHT 1\nPOINTS 9000000000000000\nDATA ascii\n1 2 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = ReadPCD(strings.NewReader(tt.input)) })
			require.Error(t, err)
		})
	}

	_, err := ReadPCD(strings.NewReader(fields + "WIDTH 2\nHEIGHT 1\nPOINTS 3\nDATA ascii\n"))
	assert.ErrorIs(t, err, ErrUnsupportedPCD)
	_, err = ReadPCD(strings.NewReader(fields + "WIDTH 9000000000000000000\nHEIGHT 4\nDATA ascii\n"))
	assert.ErrorIs(t, err, ErrUnsupportedPCD)
}

func TestReadPCD_HugePointCountWithoutData(t *testing.T) {
	t.Parallel()
	input := "VERSION 0.7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nPOINTS 9000000000000000\nDATA ascii\n1 2 3\n"

	var err error
	require.NotPanics(t, func() { _, err = ReadPCD(strings.NewReader(input)) })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFinitePoint(t *testing.T) {
	t.Parallel()
	_, ok := finitePoint([3]float64{1, math.Inf(1), 0})
	assert.False(t, ok)
	p, ok := finitePoint([3]float64{1, 2, 3})
	assert.True(t, ok)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, p)
}
