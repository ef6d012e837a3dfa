package analysis

import "errors"

// Validation errors surfaced by the aggregation pipeline. All of them are
// raised before anything touches the database, so a failed build never leaves
// partial session state behind. HTTP handlers map them to 400 responses.
var (
	ErrEmptyInput        = errors.New("no analysis samples to aggregate")
	ErrMalformedSample   = errors.New("analysis sample is missing an emotion key")
	ErrInvalidOrder      = errors.New("question orders must be exactly 1, 2, 3")
	ErrInvalidScore      = errors.New("question score must be between 0 and 100")
	ErrMeanScoreMismatch = errors.New("submitted mean score does not match the computed mean")
	ErrSampleCount       = errors.New("unexpected number of analysis samples")
)
