package diff

// Status is the single-character change classification carried over from
// the source CLI's delta model, used both internally for delta
// construction and for text-diff rendering parity.
type Status string

const (
	StatusInsert Status = "A"
	StatusUpdate Status = "M"
	StatusDelete Status = "D"
	StatusRename Status = "R"
)

// StatusOf classifies a change given whether each side is present and
// whether the keys differ, matching raw_diff_delta.py's ADDED/DELETED/
// MODIFIED (plus the rename variant this project adds for primary-key or
// filename changes).
func StatusOf(oldPresent, newPresent bool, keyChanged bool) Status {
	switch {
	case !oldPresent && newPresent:
		return StatusInsert
	case oldPresent && !newPresent:
		return StatusDelete
	case keyChanged:
		return StatusRename
	default:
		return StatusUpdate
	}
}
