package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/scanmatch/internal/lidar/pose"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// TrajectoryHeader is the column layout of trajectory CSV files.
var TrajectoryHeader = []string{"#timestamp [ns]", "x", "y", "z", "qx", "qy", "qz", "qw"}

// ErrEmptyTrajectory is returned when a trajectory file holds no poses.
var ErrEmptyTrajectory = errors.New("trajectory has no poses")

// Stamped is a pose with its timestamp in nanoseconds.
type Stamped struct {
	Timestamp int64
	Transform pose.Transform
}

// ReadTrajectory parses a trajectory CSV with a header naming the
// timestamp, x, y, z, qx, qy, qz and qw columns in any order; other columns
// are ignored. Poses are returned sorted by timestamp.
func ReadTrajectory(r io.Reader) ([]Stamped, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyTrajectory
		}
		return nil, fmt.Errorf("trajectory header: %w", err)
	}
	cols, err := trajectoryColumns(header)
	if err != nil {
		return nil, err
	}

	var out []Stamped
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("trajectory line %d: %w", line, err)
		}
		s, err := parseStamped(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("trajectory line %d: %w", line, err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ErrEmptyTrajectory
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// trajectoryColumns maps each TrajectoryHeader entry to its column index.
func trajectoryColumns(header []string) ([8]int, error) {
	var cols [8]int
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normaliseColumn(h)] = i
	}
	for i, want := range TrajectoryHeader {
		c, ok := index[normaliseColumn(want)]
		if !ok {
			return cols, fmt.Errorf("trajectory header %q: missing column %q", strings.Join(header, ","), want)
		}
		cols[i] = c
	}
	return cols, nil
}

// normaliseColumn folds "#timestamp [ns]", "timestamp" and case variants
// onto one key.
func normaliseColumn(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "#")))
	if strings.HasPrefix(h, "timestamp") {
		return "timestamp"
	}
	return h
}

func parseStamped(rec []string, cols [8]int) (Stamped, error) {
	get := func(i int) (string, error) {
		if cols[i] >= len(rec) {
			return "", fmt.Errorf("%d columns, missing %q", len(rec), TrajectoryHeader[i])
		}
		return strings.TrimSpace(rec[cols[i]]), nil
	}

	ts, err := get(0)
	if err != nil {
		return Stamped{}, err
	}
	stamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		// Some exporters write timestamps in float notation.
		f, ferr := strconv.ParseFloat(ts, 64)
		if ferr != nil {
			return Stamped{}, fmt.Errorf("timestamp %q: %w", ts, err)
		}
		stamp = int64(f)
	}

	var v [7]float64
	for i := range v {
		s, err := get(i + 1)
		if err != nil {
			return Stamped{}, err
		}
		if v[i], err = strconv.ParseFloat(s, 64); err != nil {
			return Stamped{}, fmt.Errorf("%s %q: %w", TrajectoryHeader[i+1], s, err)
		}
	}
	q := quat.Number{Real: v[6], Imag: v[3], Jmag: v[4], Kmag: v[5]}
	if quat.Abs(q) == 0 {
		return Stamped{}, fmt.Errorf("timestamp %d: zero quaternion", stamp)
	}
	return Stamped{
		Timestamp: stamp,
		Transform: pose.FromQuaternion(q, r3.Vec{X: v[0], Y: v[1], Z: v[2]}),
	}, nil
}

// WriteTrajectory writes poses in the TrajectoryHeader layout.
func WriteTrajectory(w io.Writer, poses []Stamped) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TrajectoryHeader); err != nil {
		return err
	}
	f := func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
	for _, s := range poses {
		t := s.Transform.Translation()
		q := s.Transform.Quaternion()
		rec := []string{
			strconv.FormatInt(s.Timestamp, 10),
			f(t.X), f(t.Y), f(t.Z),
			f(q.Imag), f(q.Jmag), f(q.Kmag), f(q.Real),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Transforms returns the transforms of poses in order.
func Transforms(poses []Stamped) []pose.Transform {
	out := make([]pose.Transform, len(poses))
	for i, s := range poses {
		out[i] = s.Transform
	}
	return out
}

// RelativeTransforms returns inv(T_i)·T_{i+1} for consecutive poses; these
// are the initial guesses for registering each keyframe onto its
// predecessor.
func RelativeTransforms(poses []Stamped) []pose.Transform {
	return pose.Relative(Transforms(poses))
}

// Nearest returns the pose whose timestamp is closest to ts. poses must be
// sorted by timestamp and non-empty.
func Nearest(poses []Stamped, ts int64) Stamped {
	i := sort.Search(len(poses), func(i int) bool { return poses[i].Timestamp >= ts })
	switch {
	case i == 0:
		return poses[0]
	case i == len(poses):
		return poses[len(poses)-1]
	case ts-poses[i-1].Timestamp <= poses[i].Timestamp-ts:
		return poses[i-1]
	default:
		return poses[i]
	}
}
