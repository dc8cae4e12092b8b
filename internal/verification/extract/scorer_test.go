package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		fields domain.ExtractedFields
		want   int
	}{
		{"nothing found", domain.ExtractedFields{}, 0},
		{"number only", domain.ExtractedFields{DocumentNumber: ptr("559088854237")}, 40},
		{"all fields", domain.ExtractedFields{
			DocumentNumber: ptr("559088854237"),
			DateOfBirth:    ptr("23/03/2005"),
			Gender:         ptr("Male"),
			FullName:       ptr("Abhi Jain"),
		}, 72},
		{"everything but the number", domain.ExtractedFields{
			DateOfBirth: ptr("23/03/2005"),
			Gender:      ptr("Male"),
			FullName:    ptr("Abhi Jain"),
		}, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.fields))
		})
	}
}

func TestScore_NumberDominates(t *testing.T) {
	numberOnly := Score(domain.ExtractedFields{DocumentNumber: ptr("559088854237")})
	restOnly := Score(domain.ExtractedFields{
		DateOfBirth: ptr("23/03/2005"),
		Gender:      ptr("Male"),
		FullName:    ptr("Abhi Jain"),
	})

	assert.Greater(t, numberOnly, restOnly)
}
