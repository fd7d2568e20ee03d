package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnsupportedPCD is returned for PCD files this reader cannot decode,
// such as DATA binary_compressed.
var ErrUnsupportedPCD = errors.New("unsupported pcd file")

// pcdHeader is the subset of the PCD v0.7 header used for decoding.
type pcdHeader struct {
	fields []string
	sizes  []int
	types  []string
	counts []int
	points int
	data   string
}

// maxPreallocPoints bounds the capacity reserved from the header's point
// count; larger clouds grow as they are read.
const maxPreallocPoints = 1 << 20

// field locates one scalar field within a binary record.
type field struct {
	offset int
	size   int
}

// ReadPCD decodes a PCD v0.7 point cloud with DATA ascii or DATA binary.
// Only the x, y and z fields are kept (F4 or F8); points with a NaN
// coordinate are dropped.
func ReadPCD(r io.Reader) (*cloud.Cloud, error) {
	br := bufio.NewReader(r)
	h, err := readPCDHeader(br)
	if err != nil {
		return nil, err
	}
	xyz, recordSize, err := h.locateXYZ()
	if err != nil {
		return nil, err
	}

	pts := make([]r3.Vec, 0, min(h.points, maxPreallocPoints))
	switch h.data {
	case "ascii":
		pts, err = readASCIIPoints(br, h, xyz, pts)
	case "binary":
		pts, err = readBinaryPoints(br, h, xyz, recordSize, pts)
	default:
		return nil, fmt.Errorf("DATA %s: %w", h.data, ErrUnsupportedPCD)
	}
	if err != nil {
		return nil, err
	}
	return cloud.New(pts), nil
}

func readPCDHeader(br *bufio.Reader) (pcdHeader, error) {
	var h pcdHeader
	width, height := -1, 1
	pointsSet := false
	for {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return h, fmt.Errorf("pcd header: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tok := strings.Fields(line)
		key, vals := strings.ToUpper(tok[0]), tok[1:]
		switch key {
		case "VERSION", "VIEWPOINT":
		case "FIELDS":
			h.fields = vals
		case "SIZE":
			if h.sizes, err = atois(vals); err != nil {
				return h, fmt.Errorf("pcd SIZE: %w", err)
			}
		case "TYPE":
			h.types = vals
		case "COUNT":
			if h.counts, err = atois(vals); err != nil {
				return h, fmt.Errorf("pcd COUNT: %w", err)
			}
		case "WIDTH", "HEIGHT", "POINTS":
			if len(vals) != 1 {
				return h, fmt.Errorf("pcd %s: want one value, got %d", key, len(vals))
			}
			n, err := strconv.Atoi(vals[0])
			if err != nil || n < 0 {
				return h, fmt.Errorf("pcd %s %q: invalid count", key, vals[0])
			}
			switch key {
			case "WIDTH":
				width = n
			case "HEIGHT":
				height = n
			default:
				h.points, pointsSet = n, true
			}
		case "DATA":
			if len(vals) != 1 {
				return h, fmt.Errorf("pcd DATA: want one value, got %d", len(vals))
			}
			h.data = strings.ToLower(vals[0])
			if width >= 0 {
				if height > 0 && width > math.MaxInt/height {
					return h, fmt.Errorf("pcd WIDTH %d x HEIGHT %d overflows: %w", width, height, ErrUnsupportedPCD)
				}
				wh := width * height
				if pointsSet && h.points != wh {
					return h, fmt.Errorf("pcd POINTS %d, WIDTH x HEIGHT %d: %w", h.points, wh, ErrUnsupportedPCD)
				}
				h.points = wh
			}
			return h, h.validate()
		default:
			return h, fmt.Errorf("pcd header: unexpected line %q: %w", line, ErrUnsupportedPCD)
		}
	}
}

func (h pcdHeader) validate() error {
	n := len(h.fields)
	if n == 0 {
		return fmt.Errorf("pcd header: no FIELDS: %w", ErrUnsupportedPCD)
	}
	if len(h.sizes) != n || len(h.types) != n {
		return fmt.Errorf("pcd header: %d fields, %d sizes, %d types: %w", n, len(h.sizes), len(h.types), ErrUnsupportedPCD)
	}
	if h.counts != nil && len(h.counts) != n {
		return fmt.Errorf("pcd header: %d fields, %d counts: %w", n, len(h.counts), ErrUnsupportedPCD)
	}
	return nil
}

func (h pcdHeader) count(i int) int {
	if h.counts == nil {
		return 1
	}
	return h.counts[i]
}

// locateXYZ returns the x, y and z fields and the binary record size.
// Offsets are in bytes for binary data and in columns for ascii data
// (size 1 per scalar).
func (h pcdHeader) locateXYZ() ([3]field, int, error) {
	var xyz [3]field
	found := [3]bool{}
	offset, column := 0, 0
	for i, name := range h.fields {
		axis := strings.Index("xyz", strings.ToLower(name))
		if len(name) == 1 && axis >= 0 {
			if h.types[i] != "F" || (h.sizes[i] != 4 && h.sizes[i] != 8) {
				return xyz, 0, fmt.Errorf("pcd field %s is %s%d, want F4 or F8: %w", name, h.types[i], h.sizes[i], ErrUnsupportedPCD)
			}
			if h.data == "ascii" {
				xyz[axis] = field{offset: column, size: 1}
			} else {
				xyz[axis] = field{offset: offset, size: h.sizes[i]}
			}
			found[axis] = true
		}
		offset += h.sizes[i] * h.count(i)
		column += h.count(i)
	}
	for axis, ok := range found {
		if !ok {
			return xyz, 0, fmt.Errorf("pcd has no %c field: %w", "xyz"[axis], ErrUnsupportedPCD)
		}
	}
	if h.data == "ascii" {
		return xyz, column, nil
	}
	return xyz, offset, nil
}

func readASCIIPoints(br *bufio.Reader, h pcdHeader, xyz [3]field, pts []r3.Vec) ([]r3.Vec, error) {
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	read := 0
	for sc.Scan() && read < h.points {
		tok := strings.Fields(sc.Text())
		if len(tok) == 0 {
			continue
		}
		read++
		var v [3]float64
		for axis, f := range xyz {
			if f.offset >= len(tok) {
				return nil, fmt.Errorf("pcd point %d: %d columns, need %d", read, len(tok), f.offset+1)
			}
			x, err := strconv.ParseFloat(tok[f.offset], 64)
			if err != nil {
				return nil, fmt.Errorf("pcd point %d: %w", read, err)
			}
			v[axis] = x
		}
		if p, ok := finitePoint(v); ok {
			pts = append(pts, p)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("pcd ascii data: %w", err)
	}
	if read < h.points {
		return nil, fmt.Errorf("pcd ascii data: %d of %d points: %w", read, h.points, io.ErrUnexpectedEOF)
	}
	return pts, nil
}

func readBinaryPoints(br *bufio.Reader, h pcdHeader, xyz [3]field, recordSize int, pts []r3.Vec) ([]r3.Vec, error) {
	rec := make([]byte, recordSize)
	for i := 0; i < h.points; i++ {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, fmt.Errorf("pcd binary point %d of %d: %w", i, h.points, err)
		}
		var v [3]float64
		for axis, f := range xyz {
			b := rec[f.offset : f.offset+f.size]
			if f.size == 4 {
				v[axis] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
			} else {
				v[axis] = math.Float64frombits(binary.LittleEndian.Uint64(b))
			}
		}
		if p, ok := finitePoint(v); ok {
			pts = append(pts, p)
		}
	}
	return pts, nil
}

func finitePoint(v [3]float64) (r3.Vec, bool) {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return r3.Vec{}, false
		}
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, true
}

func atois(vals []string) ([]int, error) {
	out := make([]int, len(vals))
	for i, s := range vals {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, fmt.Errorf("non-positive value %d", n)
		}
		out[i] = n
	}
	return out, nil
}

// WritePCD encodes c as a PCD v0.7 file with x y z F4 fields, in binary
// or ascii layout.
func WritePCD(w io.Writer, c *cloud.Cloud, binaryData bool) error {
	data := "ascii"
	if binaryData {
		data = "binary"
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# .PCD v0.7 - Point Cloud Data file format\nVERSION 0.7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\n")
	fmt.Fprintf(bw, "WIDTH %d\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS %d\nDATA %s\n", c.Len(), c.Len(), data)

	var rec [12]byte
	for _, p := range c.Points {
		if !binaryData {
			fmt.Fprintf(bw, "%g %g %g\n", float32(p.X), float32(p.Y), float32(p.Z))
			continue
		}
		binary.LittleEndian.PutUint32(rec[0:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(rec[4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(rec[8:], math.Float32bits(float32(p.Z)))
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
