package scanmatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/dataset"
	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/cloud"
	"github.com/banshee-data/scanmatch/internal/lidar/plane"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
	"github.com/banshee-data/scanmatch/internal/lidar/registration"
	"github.com/banshee-data/scanmatch/internal/testutil"
	"github.com/banshee-data/scanmatch/internal/timeutil"
)

// memSource serves scans from memory.
type memSource map[int64]*cloud.Cloud

func (s memSource) LoadScan(ts int64) (*cloud.Cloud, error) {
	c, ok := s[ts]
	if !ok {
		return nil, fmt.Errorf("scan %d: %w", ts, dataset.ErrScanNotFound)
	}
	return c, nil
}

// route is the sensor pose at each scan of the test sequence.
var route = []pose.Transform{
	pose.Identity(),
	pose.FromPose6(pose.Pose6{TX: 0.1, TY: 0.05, TZ: 0.03, Gamma: testutil.Deg(2)}),
	pose.FromPose6(pose.Pose6{TX: 0.2, TY: 0.05, TZ: 0.02, Gamma: testutil.Deg(1)}),
	pose.FromPose6(pose.Pose6{TX: 0.25, TY: 0.1, TZ: 0.02, Gamma: testutil.Deg(2.5)}),
}

func sequence() ([]int64, memSource) {
	src := memSource{}
	ts := make([]int64, len(route))
	for i, p := range route {
		ts[i] = int64(i+1) * 100_000_000
		src[ts[i]] = testutil.RoomSeenFrom(p)
	}
	return ts, src
}

func testMatcher(src dataset.ScanSource, method string) *Matcher {
	tc := config.DefaultTuningConfig()
	pre := tc.Preprocess()
	pre.Ground.RANSAC.Iterations = 200
	reg := tc.Registration()
	reg.ICP.DistanceThreshold = 0.5
	reg.ICP.MaxIterations = 50
	sm := tc.ScanMatch()
	sm.Method = method
	return &Matcher{
		Source:     src,
		Registrar:  registration.NewRegistrar(reg),
		Preprocess: pre,
		Config:     sm,
		Clock:      timeutil.NewMockClock(time.Unix(0, 0)),
	}
}

func TestRun_TwoPlaneRecoversRoute(t *testing.T) {
	t.Parallel()
	ts, src := sequence()

	out, err := testMatcher(src, config.MethodTwoPlane).Run(context.Background(), ts, nil)
	require.NoError(t, err)

	assert.Equal(t, registration.MethodTwoPhase, out.Method)
	assert.Equal(t, ts, out.Keyframes)
	require.Len(t, out.Pairs, 3)
	require.Len(t, out.Trajectory, 4)
	assert.Zero(t, out.Failures())

	for i, p := range out.Pairs {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, ts[i], p.Target)
		assert.Equal(t, ts[i+1], p.Source)
		assert.Equal(t, pose.Identity(), p.Initial)
		assert.NoError(t, p.Err)
	}
	for i, s := range out.Trajectory {
		assert.Equal(t, ts[i], s.Timestamp)
		testutil.AssertTransformNear(t, route[i], s.Transform, 0.01, testutil.Deg(0.3))
	}
}

func TestRun_SimpleWithInitialPoses(t *testing.T) {
	t.Parallel()
	ts, src := sequence()
	offset := pose.Translate(10, -2, 0)
	initial := make([]pose.Transform, len(route))
	for i, p := range route {
		initial[i] = offset.Compose(p)
	}

	out, err := testMatcher(src, config.MethodSimple).Run(context.Background(), ts, initial)
	require.NoError(t, err)

	require.Len(t, out.Trajectory, 4)
	assert.Equal(t, initial[0], out.Trajectory[0].Transform)
	for i, s := range out.Trajectory {
		testutil.AssertTransformNear(t, initial[i], s.Transform, 0.01, testutil.Deg(0.3))
	}
	for i, p := range out.Pairs {
		testutil.AssertTransformNear(t, route[i].Inverse().Compose(route[i+1]), p.Initial, 1e-9, 1e-9)
	}
}

func TestRun_Sampling(t *testing.T) {
	t.Parallel()
	ts, src := sequence()
	m := testMatcher(src, config.MethodTwoPlane)
	m.Config.KeyframeSampling = 2

	out, err := m.Run(context.Background(), ts, nil)
	require.NoError(t, err)

	assert.Equal(t, []int64{ts[0], ts[2]}, out.Keyframes)
	require.Len(t, out.Pairs, 1)
	testutil.AssertTransformNear(t, route[2], out.Trajectory[1].Transform, 0.01, testutil.Deg(0.3))
}

func TestRun_FailedPairFallsBackToGuess(t *testing.T) {
	t.Parallel()
	ts, src := sequence()
	// The last scan sees nothing inside the radius band.
	src[ts[3]] = testutil.RoomSeenFrom(pose.Translate(100, 0, 0))

	out, err := testMatcher(src, config.MethodTwoPlane).Run(context.Background(), ts, nil)
	require.NoError(t, err)

	require.Len(t, out.Pairs, 3)
	assert.Equal(t, 1, out.Failures())
	assert.False(t, out.Pairs[1].Failed())

	last := out.Pairs[2]
	assert.True(t, last.Failed())
	assert.Equal(t, pose.Identity(), last.Transform)
	assert.True(t, last.Result.LowConfidence)
	assert.Equal(t, out.Trajectory[2].Transform, out.Trajectory[3].Transform)
}

func TestRun_PreprocessingErrorReachesPair(t *testing.T) {
	t.Parallel()
	ts, src := sequence()
	// Nothing inside the radius band, so no ground plane can be fitted.
	src[ts[3]] = testutil.RoomSeenFrom(pose.Translate(100, 0, 0))
	m := testMatcher(src, config.MethodTwoPlane)
	m.Config.ReuseGroundPlane = false

	out, err := m.Run(context.Background(), ts, nil)
	require.NoError(t, err)

	require.Len(t, out.Pairs, 3)
	assert.Equal(t, 1, out.Failures())
	last := out.Pairs[2]
	assert.ErrorIs(t, last.Err, registration.ErrNotPreprocessed)
	assert.ErrorIs(t, last.Err, lidar.ErrDegenerateGeometry)
	assert.Contains(t, last.Err.Error(), fmt.Sprintf("keyframe %d", ts[3]))
	assert.Equal(t, pose.Identity(), last.Transform)

	stored := StoredPairs("run", out.Pairs)
	assert.Equal(t, "failed", stored[2].Status)
	assert.Contains(t, stored[2].Error, "ground fit")
}

func TestPreprocess_GroundPlaneRefit(t *testing.T) {
	t.Parallel()
	ts, src := sequence()

	planes := func(refit int) []plane.Model {
		m := testMatcher(src, config.MethodTwoPlane)
		m.Config.GroundPlaneRefit = refit
		kfs, err := m.loadKeyframes(context.Background(), ts)
		require.NoError(t, err)
		errs, err := m.preprocess(context.Background(), kfs, registration.MethodTwoPhase)
		require.NoError(t, err)
		out := make([]plane.Model, len(kfs))
		for i, k := range kfs {
			require.NoError(t, errs[i])
			model, ok := k.Plane()
			require.True(t, ok)
			out[i] = model
		}
		return out
	}

	t.Run("never", func(t *testing.T) {
		got := planes(0)
		for i := 1; i < len(got); i++ {
			assert.Equal(t, got[0], got[i], "keyframe %d", i)
		}
	})
	t.Run("every second keyframe", func(t *testing.T) {
		got := planes(2)
		assert.Equal(t, got[0], got[1])
		assert.NotEqual(t, got[1], got[2])
		assert.Equal(t, got[2], got[3])
	})
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()
	ts, src := sequence()

	_, err := testMatcher(src, config.MethodTwoPlane).Run(context.Background(), ts, []pose.Transform{pose.Identity()})
	assert.ErrorIs(t, err, ErrInitialLength)

	_, err = testMatcher(src, "icp").Run(context.Background(), ts, nil)
	assert.ErrorIs(t, err, lidar.ErrInvalidConfig)

	_, err = testMatcher(src, config.MethodSimple).Run(context.Background(), append(ts, 999), nil)
	assert.ErrorIs(t, err, dataset.ErrScanNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = testMatcher(src, config.MethodSimple).Run(ctx, ts, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_SingleScan(t *testing.T) {
	t.Parallel()
	ts, src := sequence()

	out, err := testMatcher(src, config.MethodSimple).Run(context.Background(), ts[:1], nil)
	require.NoError(t, err)
	assert.Empty(t, out.Pairs)
	require.Len(t, out.Trajectory, 1)
	assert.Equal(t, pose.Identity(), out.Trajectory[0].Transform)
}

func TestSampleIndices(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, sampleIndices(3, 1))
	assert.Equal(t, []int{0, 3, 6}, sampleIndices(7, 3))
	assert.Equal(t, []int{0, 1}, sampleIndices(2, 0))
	assert.Empty(t, sampleIndices(0, 2))
}
