package scanmatch

import (
	"github.com/banshee-data/scanmatch/internal/lidar/icp"
	"github.com/banshee-data/scanmatch/internal/lidar/registration"
	"github.com/banshee-data/scanmatch/internal/storage/sqlite"
)

// StoredPairs converts pair results to storage records of run runID.
// The stored pose is the relative transform used for chaining.
func StoredPairs(runID string, pairs []PairResult) []sqlite.Pair {
	out := make([]sqlite.Pair, len(pairs))
	for i, p := range pairs {
		pose := p.Transform.ToPose6()
		status, iterations := pairStatus(p.Result)
		rec := sqlite.Pair{
			RunID:           runID,
			Index:           p.Index,
			SourceTimestamp: p.Source,
			TargetTimestamp: p.Target,
			TX:              pose.TX,
			TY:              pose.TY,
			TZ:              pose.TZ,
			Alpha:           pose.Alpha,
			Beta:            pose.Beta,
			Gamma:           pose.Gamma,
			Fitness:         p.Result.Fitness,
			RMSE:            p.Result.RMSE,
			Iterations:      iterations,
			Status:          status.String(),
			LowConfidence:   p.Result.LowConfidence,
		}
		if p.Err != nil {
			rec.Status = icp.StatusFailed.String()
			rec.LowConfidence = true
			rec.Error = p.Err.Error()
		}
		out[i] = rec
	}
	return out
}

// pairStatus reports the least favourable ICP status of a registration and
// its total iteration count.
func pairStatus(r registration.Result) (icp.Status, int) {
	if r.Method == registration.MethodSinglePhase {
		return r.Single.Status, r.Single.Iterations
	}
	return max(r.Ground.Status, r.NonGround.Status), r.Ground.Iterations + r.NonGround.Iterations
}
