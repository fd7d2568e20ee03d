package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/dataset"
	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
	"github.com/banshee-data/scanmatch/internal/storage/sqlite"
	"github.com/banshee-data/scanmatch/internal/testutil"
	"github.com/banshee-data/scanmatch/internal/timeutil"
)

var motion = pose.FromPose6(pose.Pose6{TX: 0.05, TY: 0.02, TZ: 0.01, Gamma: testutil.Deg(1)})

func writeScan(t *testing.T, root string, ts int64, c *cloud.Cloud) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(dataset.ScanPath(ts)))
	require.NoError(t, writeFile(path, func(w io.Writer) error {
		return dataset.WritePCD(w, c, true)
	}))
}

func TestRun_EndToEnd(t *testing.T) {
	root := t.TempDir()
	writeScan(t, root, 1000, testutil.Room())
	writeScan(t, root, 2000, testutil.RoomSeenFrom(motion))

	out := t.TempDir()
	cfg := Config{
		Dataset:    root,
		Method:     config.MethodTwoPlane,
		Output:     filepath.Join(out, "scanmatcher_global.csv"),
		DBPath:     filepath.Join(out, "runs.db"),
		PlotPath:   filepath.Join(out, "trajectory.png"),
		ReportPath: filepath.Join(out, "report.html"),
	}
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, run(context.Background(), cfg, clock))

	f, err := os.Open(cfg.Output)
	require.NoError(t, err)
	defer f.Close()
	traj, err := dataset.ReadTrajectory(f)
	require.NoError(t, err)
	require.Len(t, traj, 2)
	assert.Equal(t, int64(1000), traj[0].Timestamp)
	testutil.AssertTransformNear(t, motion, traj[1].Transform, 0.01, testutil.Deg(0.3))

	store, err := sqlite.Open(cfg.DBPath, clock)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, config.MethodTwoPlane, runs[0].Method)
	assert.Equal(t, 2, runs[0].Keyframes)
	pairs, err := store.ListPairs(runs[0].RunID)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Empty(t, pairs[0].Error)

	for _, p := range []string{cfg.PlotPath, cfg.ReportPath} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Greater(t, info.Size(), int64(0), p)
	}
}

func TestRun_NoScans(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(dataset.ScanDir)), 0755))

	err := run(context.Background(), Config{Dataset: root, Output: filepath.Join(root, "out.csv")}, timeutil.RealClock{})
	assert.ErrorContains(t, err, "no scans found")
}

func TestLoadTuning_FlagOverrides(t *testing.T) {
	tuning, err := loadTuning(Config{Method: config.MethodSimple, Sampling: 3, Workers: 2})
	require.NoError(t, err)

	sm := tuning.ScanMatch()
	assert.Equal(t, config.MethodSimple, sm.Method)
	assert.Equal(t, 3, sm.KeyframeSampling)
	assert.Equal(t, 2, sm.Workers)

	_, err = loadTuning(Config{Method: "icp"})
	assert.ErrorIs(t, err, lidar.ErrInvalidConfig)
}

func TestLoadTuning_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("voxel_size: 0.25\nregistration_method: simple\n"), 0644))

	tuning, err := loadTuning(Config{TuningFile: path, Sampling: 2})
	require.NoError(t, err)
	assert.Equal(t, 0.25, tuning.GetVoxelSize())
	assert.Equal(t, config.MethodSimple, tuning.GetRegistrationMethod())
	assert.Equal(t, 2, tuning.GetKeyframeSampling())
}
