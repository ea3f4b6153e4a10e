package workflow

// Outcome is how one traversal of the workflow ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailed
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Result is what a run reports back to the scheduler.
// Optional values are only meaningful when their *OK flag is set.
type Result struct {
	Outcome  Outcome
	Note     string
	Username string

	Points   int64
	PointsOK bool

	Streak   int
	StreakOK bool

	Claimed bool
	Reward  int64

	// Err is the error that aborted the cycle, nil on success.
	Err error
}
