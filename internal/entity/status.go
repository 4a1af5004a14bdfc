package entity

// Status records how the current unit of work has touched a State.
type Status int

const (
	StatusNew Status = iota
	StatusLoaded
	StatusUpdated
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusLoaded:
		return "LOADED"
	case StatusUpdated:
		return "UPDATED"
	case StatusRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}
