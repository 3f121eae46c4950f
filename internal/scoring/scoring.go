// Package scoring turns raw rubric entries into numeric scores. Functions
// here are pure and total; validation happens before entries get this far.
package scoring

import "github.com/classpulse/classpulse-api/internal/models"

const (
	// MaxParticipation is the ceiling of ParticipationScore: five sub-scores
	// of at most 4 each.
	MaxParticipation = 20.0
	// MaxEngagementPerLesson is the ceiling of EngagementScore for a single
	// lesson. Weekly engagement thresholds scale from this.
	MaxEngagementPerLesson = 5.0
	// ParticipationWarningFloor marks a weekly participation average worth
	// flagging on reports.
	ParticipationWarningFloor = 12.0
)

// ParticipationScore sums the five participation sub-scores.
func ParticipationScore(d models.ParticipationDetails) float64 {
	return d.Amount + d.Quality + d.Listening + d.Attitude + d.Initiative
}

// EngagementScore weighs attendance double and adds the remaining rubric
// fields as recorded.
func EngagementScore(d models.EngagementDetails) float64 {
	score := d.Preparedness + d.Focus + d.Respect
	if d.Attendance {
		score += 2
	}
	return score
}
