package step

// Rollback is the materialization level a stub is reset to before a forced
// re-run.
type Rollback uint8

const (
	// RollbackNone keeps the current state.
	RollbackNone Rollback = iota
	// RollbackFull discards everything and restarts from the input image.
	RollbackFull
	// RollbackToGray restarts from the stored gray image; LOAD stays done.
	RollbackToGray
	// RollbackToBinary restarts from the stored binary image; LOAD and
	// BINARY stay done.
	RollbackToBinary
)

func (r Rollback) String() string {
	switch r {
	case RollbackFull:
		return "full"
	case RollbackToGray:
		return "gray"
	case RollbackToBinary:
		return "binary"
	default:
		return "none"
	}
}

// RollbackFor selects the minimal rollback that lets target be recomputed.
// No rollback happens unless force is set and target is at or before the
// latest completed step (hasLatest false means nothing is done yet).
//
//	target <= LOAD    full reset
//	target == BINARY  back to the gray image
//	target >  BINARY  back to the binary image
func RollbackFor(latest Step, hasLatest bool, target Step, force bool) Rollback {
	if !force || !hasLatest || target > latest {
		return RollbackNone
	}
	switch {
	case target <= Load:
		return RollbackFull
	case target == Binary:
		return RollbackToGray
	default:
		return RollbackToBinary
	}
}

// Kept returns the steps that remain done after applying r.
func (r Rollback) Kept() Set {
	switch r {
	case RollbackToGray:
		return NewSet(Load)
	case RollbackToBinary:
		return NewSet(Load, Binary)
	default:
		return Set{}
	}
}
