package version

import "errors"

var (
	// ErrVersionNotFound is returned when a requested version number does
	// not exist in the workflow's lineage.
	ErrVersionNotFound = errors.New("version not found")
	// ErrHeadMoved is returned when an expected-head check fails because
	// another writer appended to the lineage first.
	ErrHeadMoved = errors.New("lineage head moved")
	// ErrLastVersion guards deletion of the sole remaining version.
	ErrLastVersion = errors.New("cannot delete the only version")
)
