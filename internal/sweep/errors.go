package sweep

import (
	"errors"
	"fmt"
)

// ErrReferenceMissing is returned when the reference video is absent or
// not a regular file. No point is attempted.
var ErrReferenceMissing = errors.New("reference video missing")

// pointError names the point a fatal error happened at.
func pointError(p Point, err error) error {
	return fmt.Errorf("point %d (%s): %w", p.Index, p, err)
}
