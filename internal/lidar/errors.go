package lidar

import "errors"

// Error kinds shared by the lidar sub-packages. Callers match them with
// errors.Is; sub-packages wrap them with their own context.
var (
	// ErrInvalidConfig is a configuration error: an invalid parameter such as
	// an inverted radius band or a non-positive threshold.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingNormals is a configuration error: point-to-plane work was
	// requested on a cloud without normals.
	ErrMissingNormals = errors.New("point cloud has no normals")

	// ErrInsufficientPoints is a configuration error: the cloud is too small
	// for the requested sampling.
	ErrInsufficientPoints = errors.New("too few points for operation")

	// ErrDegenerateGeometry reports geometry that cannot support the
	// estimate: a plane fitted on too few points, or too many undefined normals.
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrRegistrationFailed is the registration failure kind. It is
	// recoverable: a failed pair does not stop other pairs.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrNoCorrespondences is a registration failure where no correspondence
	// survived the distance threshold.
	ErrNoCorrespondences = errors.New("no correspondences within distance threshold")
)
