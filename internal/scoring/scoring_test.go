package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/classpulse/classpulse-api/internal/models"
)

func TestParticipationScore(t *testing.T) {
	cases := []struct {
		name    string
		details models.ParticipationDetails
		want    float64
	}{
		{"all zero", models.ParticipationDetails{}, 0},
		{"all max", models.ParticipationDetails{Amount: 4, Quality: 4, Listening: 4, Attitude: 4, Initiative: 4}, 20},
		{"mixed", models.ParticipationDetails{Amount: 3, Quality: 4, Listening: 2, Attitude: 4, Initiative: 1}, 14},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParticipationScore(tc.details))
		})
	}
}

func TestEngagementScore(t *testing.T) {
	cases := []struct {
		name    string
		details models.EngagementDetails
		want    float64
	}{
		{"absent", models.EngagementDetails{}, 0},
		{"present only", models.EngagementDetails{Attendance: true}, 2},
		{"full marks", models.EngagementDetails{Attendance: true, Preparedness: 1, Focus: 1, Respect: 1}, 5},
		{"half steps", models.EngagementDetails{Attendance: true, Preparedness: 0.5, Focus: 0.5}, 3},
		{"prepared but absent", models.EngagementDetails{Preparedness: 1, Focus: 1, Respect: 1}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EngagementScore(tc.details))
		})
	}
}

func TestScoringIsPure(t *testing.T) {
	details := models.ParticipationDetails{Amount: 2, Quality: 3, Listening: 1, Attitude: 4, Initiative: 2}
	first := ParticipationScore(details)
	second := ParticipationScore(details)
	assert.Equal(t, first, second)
	assert.Equal(t, models.ParticipationDetails{Amount: 2, Quality: 3, Listening: 1, Attitude: 4, Initiative: 2}, details)
}
