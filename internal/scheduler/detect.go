package scheduler

import "github.com/hamed0406/uptimewatch/internal/domain"

// Detect reports whether moving from previous to next is a transition.
// Nothing fires until a known status has been observed.
func Detect(previous, next domain.Status) bool {
	return previous.Known() && previous != next
}
