package applications

// Stage is a position in the application pipeline.
type Stage string

const (
	StageInterested         Stage = "Interested"
	StageApplied            Stage = "Applied"
	StagePhoneScreen        Stage = "Phone Screen"
	StageTechnicalInterview Stage = "Technical Interview"
	StageOnsiteInterview    Stage = "Onsite Interview"
	StageOffer              Stage = "Offer"
	StageRejected           Stage = "Rejected"
	StageWithdrawn          Stage = "Withdrawn"
	StageAccepted           Stage = "Accepted"
)

// DefaultStage is assigned to new applications that do not name one.
const DefaultStage = StageInterested

var stages = []Stage{
	StageInterested,
	StageApplied,
	StagePhoneScreen,
	StageTechnicalInterview,
	StageOnsiteInterview,
	StageOffer,
	StageRejected,
	StageWithdrawn,
	StageAccepted,
}

// Stages returns the stages in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// IsValidStage reports whether s names a stage exactly (case-sensitive).
func IsValidStage(s string) bool {
	for _, st := range stages {
		if string(st) == s {
			return true
		}
	}
	return false
}
