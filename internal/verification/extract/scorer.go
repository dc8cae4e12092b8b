package extract

import (
	"github.com/campusgate/campusgate-backend/internal/verification/domain"
)

// Field weights for ranking burst frames. The document number
// outweighs the other three fields combined so a frame that read the
// number always beats one that read everything else but missed it.
const (
	weightDocumentNumber = 40
	weightDateOfBirth    = 16
	weightGender         = 10
	weightFullName       = 6
)

// Score rates one frame's extraction. Higher is better; a frame with
// no fields scores zero.
func Score(fields domain.ExtractedFields) int {
	score := 0
	if fields.DocumentNumber != nil {
		score += weightDocumentNumber
	}
	if fields.DateOfBirth != nil {
		score += weightDateOfBirth
	}
	if fields.Gender != nil {
		score += weightGender
	}
	if fields.FullName != nil {
		score += weightFullName
	}
	return score
}
