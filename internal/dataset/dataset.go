// Package dataset reads LIDAR scans and trajectories from a recorded
// dataset laid out as <root>/robot0/lidar/data/<timestamp>.pcd.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
)

// ScanDir is the scan directory relative to the dataset root.
const ScanDir = "robot0/lidar/data"

// ErrScanNotFound is returned when no scan exists for a timestamp.
var ErrScanNotFound = errors.New("scan not found")

// ScanSource loads the scan recorded at a timestamp.
type ScanSource interface {
	LoadScan(timestamp int64) (*cloud.Cloud, error)
}

// Directory is a ScanSource over a dataset file system, typically
// os.DirFS of the dataset root.
type Directory struct {
	FS fs.FS
}

// Directory satisfies ScanSource.
var _ ScanSource = Directory{}

// ScanPath returns the path of the scan for timestamp within the dataset.
func ScanPath(timestamp int64) string {
	return path.Join(ScanDir, strconv.FormatInt(timestamp, 10)+".pcd")
}

// LoadScan reads and decodes the scan recorded at timestamp.
func (d Directory) LoadScan(timestamp int64) (*cloud.Cloud, error) {
	f, err := d.FS.Open(ScanPath(timestamp))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("scan %d: %w", timestamp, ErrScanNotFound)
		}
		return nil, fmt.Errorf("scan %d: %w", timestamp, err)
	}
	defer f.Close()

	c, err := ReadPCD(f)
	if err != nil {
		return nil, fmt.Errorf("scan %d: %w", timestamp, err)
	}
	return c, nil
}

// Timestamps lists the timestamps of every scan in the dataset in
// ascending order. Files whose name is not <integer>.pcd are ignored.
func (d Directory) Timestamps() ([]int64, error) {
	entries, err := fs.ReadDir(d.FS, ScanDir)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	var out []int64
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".pcd")
		if e.IsDir() || !ok {
			continue
		}
		ts, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
