package domain

import (
	"time"
)

// Stage is a step of the identity verification workflow. A session moves
// through the stages strictly forward; the only backward movement is a
// decision-driven re-entry into a scanning stage.
type Stage string

const (
	StageIntro           Stage = "INTRO"
	StagePrimaryIDScan   Stage = "PRIMARY_ID_SCAN"
	StageSecondaryIDScan Stage = "SECONDARY_ID_SCAN"
	StageSelfie          Stage = "SELFIE"
	StageForm            Stage = "FORM"
	StageSubmitting      Stage = "SUBMITTING"
	StageSucceeded       Stage = "SUCCEEDED"
	StageAbandoned       Stage = "ABANDONED"
)

// Terminal reports whether the stage ends the session.
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageAbandoned
}

// DocumentType identifies which document a scan targets.
type DocumentType string

const (
	// DocumentTypeCollegeID is the institutional ID card carrying the
	// student's computer code.
	DocumentTypeCollegeID DocumentType = "college_id"
	// DocumentTypeAadhar is the government identity card.
	DocumentTypeAadhar DocumentType = "aadhar"
)

// Field names a single extractable document field.
type Field string

const (
	FieldDocumentNumber Field = "document_number"
	FieldDateOfBirth    Field = "date_of_birth"
	FieldGender         Field = "gender"
	FieldFullName       Field = "full_name"
)

// RequiredFields returns the fields a scan of this document type must
// yield before the workflow may advance.
func (t DocumentType) RequiredFields() []Field {
	switch t {
	case DocumentTypeAadhar:
		return []Field{FieldDocumentNumber, FieldDateOfBirth, FieldGender}
	default:
		return []Field{FieldDocumentNumber}
	}
}

// Frame is a single captured camera image. The bytes are an opaque
// encoded image (JPEG from the browser capture path).
type Frame struct {
	Data       []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// ExtractedFields holds whatever could be read off a document. A nil
// slot means the field was not found; an extractor never stores an
// empty string.
type ExtractedFields struct {
	DocumentNumber *string `json:"document_number,omitempty"`
	DateOfBirth    *string `json:"date_of_birth,omitempty"`
	Gender         *string `json:"gender,omitempty"`
	FullName       *string `json:"full_name,omitempty"`
}

// Get returns the value of the named field, or nil.
func (f ExtractedFields) Get(field Field) *string {
	switch field {
	case FieldDocumentNumber:
		return f.DocumentNumber
	case FieldDateOfBirth:
		return f.DateOfBirth
	case FieldGender:
		return f.Gender
	case FieldFullName:
		return f.FullName
	}
	return nil
}

// Found lists the fields that were extracted, in canonical order.
func (f ExtractedFields) Found() []Field {
	var out []Field
	for _, fld := range []Field{FieldDocumentNumber, FieldDateOfBirth, FieldGender, FieldFullName} {
		if f.Get(fld) != nil {
			out = append(out, fld)
		}
	}
	return out
}

// Missing lists the required fields that are absent.
func (f ExtractedFields) Missing(required []Field) []Field {
	var out []Field
	for _, fld := range required {
		if f.Get(fld) == nil {
			out = append(out, fld)
		}
	}
	return out
}

// CaptureAttempt is the outcome of recognizing one frame of a burst.
// FrameIndex is 1-based and assigned even when recognition produced no
// text.
type CaptureAttempt struct {
	FrameIndex     int             `json:"frame_index"`
	Image          Frame           `json:"-"`
	RecognizedText string          `json:"-"`
	Fields         ExtractedFields `json:"fields"`
	Score          int             `json:"score"`
}

// DocumentResult is the accepted scan of one document.
type DocumentResult struct {
	Type       DocumentType    `json:"type"`
	Fields     ExtractedFields `json:"fields"`
	Image      Frame           `json:"-"`
	FrameIndex int             `json:"frame_index"`
	AcceptedAt time.Time       `json:"accepted_at"`
}

// RecoveryForm carries the account details collected after both
// documents are verified.
type RecoveryForm struct {
	Semester         string `json:"semester" validate:"omitempty,oneof=1 2 3 4 5 6 7 8"`
	EnrollmentNumber string `json:"enrollment_number" validate:"omitempty,max=30"`
	NewPassword      string `json:"new_password" validate:"required,min=8"`
	ConfirmPassword  string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// VerificationState aggregates everything a session has collected so far.
type VerificationState struct {
	Primary   *DocumentResult `json:"primary,omitempty"`
	Secondary *DocumentResult `json:"secondary,omitempty"`
	Selfie    *Frame          `json:"selfie,omitempty"`
	Form      *RecoveryForm   `json:"-"`
}

// DecisionKind says why the workflow paused for user input.
type DecisionKind string

const (
	// DecisionIncompleteExtraction means a scan finished without all
	// required fields.
	DecisionIncompleteExtraction DecisionKind = "incomplete_extraction"
	// DecisionNameMismatch means the names read off the two documents
	// do not agree.
	DecisionNameMismatch DecisionKind = "name_mismatch"
)

// DecisionAction is the user's answer to a pending decision.
type DecisionAction string

const (
	DecisionRetry    DecisionAction = "retry"
	DecisionOverride DecisionAction = "override"
	DecisionAbandon  DecisionAction = "abandon"
)

// PendingDecision is presented to the user when the workflow cannot
// proceed on its own. Missing is set for incomplete extraction; the
// name pair is set for a mismatch.
type PendingDecision struct {
	Kind          DecisionKind     `json:"kind"`
	Stage         Stage            `json:"stage"`
	Missing       []Field          `json:"missing,omitempty"`
	PrimaryName   string           `json:"primary_name,omitempty"`
	SecondaryName string           `json:"secondary_name,omitempty"`
	Allowed       []DecisionAction `json:"allowed"`
}

// Allows reports whether the action is one of the permitted answers.
func (p *PendingDecision) Allows(action DecisionAction) bool {
	for _, a := range p.Allowed {
		if a == action {
			return true
		}
	}
	return false
}
