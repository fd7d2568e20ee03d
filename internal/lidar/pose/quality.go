package pose

// Quality represents the assessed quality of a registration from its
// inlier RMSE.
type Quality string

const (
	// QualityExcellent indicates RMSE < 0.05m
	QualityExcellent Quality = "excellent"
	// QualityGood indicates RMSE 0.05-0.15m
	QualityGood Quality = "good"
	// QualityFair indicates RMSE 0.15-0.30m
	QualityFair Quality = "fair"
	// QualityPoor indicates RMSE > 0.30m
	QualityPoor Quality = "poor"
	// QualityUnknown indicates RMSE not computed
	QualityUnknown Quality = "unknown"
)

// RMSE thresholds (meters)
const (
	RMSEThresholdExcellent = 0.05
	RMSEThresholdGood      = 0.15
	RMSEThresholdFair      = 0.30
)

// QualityFromRMSE maps an RMSE to its quality band. A negative RMSE means
// it was never computed.
func QualityFromRMSE(rmse float64) Quality {
	switch {
	case rmse < 0:
		return QualityUnknown
	case rmse < RMSEThresholdExcellent:
		return QualityExcellent
	case rmse < RMSEThresholdGood:
		return QualityGood
	case rmse < RMSEThresholdFair:
		return QualityFair
	default:
		return QualityPoor
	}
}

// String returns a human-readable description of the quality.
func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent (RMSE < 0.05m)"
	case QualityGood:
		return "good (RMSE 0.05-0.15m)"
	case QualityFair:
		return "fair (RMSE 0.15-0.30m)"
	case QualityPoor:
		return "poor (RMSE > 0.30m)"
	case QualityUnknown:
		return "unknown (RMSE not computed)"
	default:
		return string(q)
	}
}
