package ranking

import "errors"

// Sentinel kinds for aggregation errors.
var (
	// ErrInconsistency signals drift between the ranking table and the
	// event store. Repair is a full rebuild, never a silent correction.
	ErrInconsistency = errors.New("ranking inconsistency detected")
)
