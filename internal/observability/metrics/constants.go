package metrics

// Migration phases, used as the "phase" label.
const (
	PhaseSchema       = "schema"
	PhaseValidate     = "validate"
	PhaseArchive      = "archive"
	PhasePhotos       = "photos"
	PhaseCanonicalize = "canonicalize"
	PhaseRemoteProbe  = "remote_probe"
)

// Phase outcomes, used as the "status" label.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusSkipped  = "skipped"
	StatusRejected = "rejected"
)

// Histogram bucket parameters.
const (
	// BucketStart10ms is the starting bucket for phase durations (10ms to ~90min with 20 buckets)
	BucketStart10ms = 0.01
	// BucketFactor2 is the common exponential growth factor
	BucketFactor2 = 2
	// BucketCount20 defines 20 exponential buckets
	BucketCount20 = 20
)
