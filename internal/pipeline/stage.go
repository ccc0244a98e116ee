package pipeline

import "fmt"

// Stage is the position of one year's run in the pipeline.
type Stage int

const (
	Collecting Stage = iota
	Masking
	Compositing
	Aligning
	GapFilling
	Persisted
)

var stageNames = [...]string{"Collecting", "Masking", "Compositing", "Aligning", "GapFilling", "Persisted"}

func (s Stage) String() string {
	if s < Collecting || s > Persisted {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// isAllowedTransition keeps runs moving forward. A run resumed from a
// remotely built composite skips Masking and Compositing.
func isAllowedTransition(from, to Stage) bool {
	switch from {
	case Collecting:
		return to == Masking || to == Aligning
	case Masking, Compositing, Aligning, GapFilling:
		return to == from+1
	default:
		return false
	}
}

// StageError reports the stage, year and region a run failed in.
type StageError struct {
	Stage  Stage
	Year   int
	Region string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("year %d region %s failed at %s: %v", e.Year, e.Region, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
