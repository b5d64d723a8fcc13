package models

// VisualStage is the locally-simulated, user-facing progress label for an
// analysis job. It is owned exclusively by the status reconciliation engine
// and is distinct from the backend's authoritative completion flag: a job
// never shows StageComplete before BackendComplete is true, but the flag may
// flip well before the stage catches up.
type VisualStage string

const (
	StageAnalyzing  VisualStage = "analyzing"
	StageGenerating VisualStage = "generating"
	StageFinalizing VisualStage = "finalizing"
	StageComplete   VisualStage = "complete"
)

// stageRank orders stages for monotonicity checks
var stageRank = map[VisualStage]int{
	StageAnalyzing:  0,
	StageGenerating: 1,
	StageFinalizing: 2,
	StageComplete:   3,
}

// Rank returns the ordinal position of the stage, or -1 for unknown values
func (s VisualStage) Rank() int {
	if r, ok := stageRank[s]; ok {
		return r
	}
	return -1
}

// Before reports whether s precedes other in the stage ladder
func (s VisualStage) Before(other VisualStage) bool {
	return s.Rank() < other.Rank()
}

// IsTerminal reports whether the stage is the final one
func (s VisualStage) IsTerminal() bool {
	return s == StageComplete
}

// Next returns the stage that follows s. Complete has no successor and
// returns itself.
func (s VisualStage) Next() VisualStage {
	switch s {
	case StageAnalyzing:
		return StageGenerating
	case StageGenerating:
		return StageFinalizing
	case StageFinalizing:
		return StageComplete
	default:
		return StageComplete
	}
}
