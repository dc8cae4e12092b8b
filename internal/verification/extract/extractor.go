// Package extract pulls structured identity fields out of raw OCR text.
// All functions are pure; the same text always yields the same fields.
package extract

import (
	"regexp"
	"strings"

	"github.com/campusgate/campusgate-backend/internal/verification/domain"
)

var (
	// Primary document number: a labeled 5-6 digit computer code wins
	// over a bare digit run.
	labeledCodeRe = regexp.MustCompile(`(?i)(?:Computer\s*Code|Code|ID)[:\s]*(\d{5,6})`)
	bareCodeRe    = regexp.MustCompile(`\b(\d{5,6})\b`)

	// Aadhar number: grouped 4-4-4 form preferred, contiguous 12
	// digits as fallback.
	groupedAadharRe    = regexp.MustCompile(`\b\d{4}\s*\d{4}\s*\d{4}\b`)
	contiguousAadharRe = regexp.MustCompile(`\b\d{12}\b`)
	whitespaceRe       = regexp.MustCompile(`\s+`)

	labeledDOBRe = regexp.MustCompile(`(?i)(?:DOB|Date of Birth|जन्म तिथि)[:\s/]*(\d{2}[/\-]\d{2}[/\-]\d{4})`)
	bareDOBRe    = regexp.MustCompile(`\b(\d{2}[/\-]\d{2}[/\-]\d{4})\b`)

	genderRe = regexp.MustCompile(`(?i)\b(male|female)\b`)

	titleCaseLineRe = regexp.MustCompile(`^[A-Z][a-z]+(\s+[A-Z][a-z]+)*$`)
	allCapsLineRe   = regexp.MustCompile(`^[A-Z\s]+$`)
	rejectedLineRe  = regexp.MustCompile(`(?i)^(male|female|dob|vid)$`)
)

// boilerplateTokens mark header lines printed on the card itself, in
// both languages, which must never be taken for the holder's name.
var boilerplateTokens = []string{
	"GOVERNMENT", "INDIA", "भारत", "सरकार", "आधार", "UIDAI",
}

// Extract reads the fields relevant to the given document type out of
// recognized text.
func Extract(docType domain.DocumentType, text string) domain.ExtractedFields {
	switch docType {
	case domain.DocumentTypeAadhar:
		return ExtractSecondary(text)
	default:
		return ExtractPrimary(text)
	}
}

// ExtractPrimary reads a college ID card. The document number is the
// computer code; name extraction is best-effort so the cross-document
// check has something to compare against.
func ExtractPrimary(text string) domain.ExtractedFields {
	var fields domain.ExtractedFields
	if m := labeledCodeRe.FindStringSubmatch(text); m != nil {
		fields.DocumentNumber = ptr(m[1])
	} else if m := bareCodeRe.FindStringSubmatch(text); m != nil {
		fields.DocumentNumber = ptr(m[1])
	}
	if name := extractName(text); name != "" {
		fields.FullName = ptr(name)
	}
	return fields
}

// ExtractSecondary reads an Aadhar card: number, date of birth,
// gender, and the holder's name.
func ExtractSecondary(text string) domain.ExtractedFields {
	var fields domain.ExtractedFields

	if m := groupedAadharRe.FindString(text); m != "" {
		fields.DocumentNumber = ptr(whitespaceRe.ReplaceAllString(m, ""))
	} else if m := contiguousAadharRe.FindString(text); m != "" {
		fields.DocumentNumber = ptr(m)
	}

	// Dates are stored verbatim; no calendar validation here.
	if m := labeledDOBRe.FindStringSubmatch(text); m != nil {
		fields.DateOfBirth = ptr(m[1])
	} else if m := bareDOBRe.FindStringSubmatch(text); m != nil {
		fields.DateOfBirth = ptr(m[1])
	}

	if g := extractGender(text); g != "" {
		fields.Gender = ptr(g)
	}

	if name := extractName(text); name != "" {
		fields.FullName = ptr(name)
	}

	return fields
}

func extractGender(text string) string {
	if m := genderRe.FindStringSubmatch(text); m != nil {
		if strings.EqualFold(m[1], "female") {
			return "Female"
		}
		return "Male"
	}
	// Word boundaries do not apply to Devanagari, so the Hindi tokens
	// are matched as substrings.
	if strings.Contains(text, "महिला") {
		return "Female"
	}
	if strings.Contains(text, "पुरुष") {
		return "Male"
	}
	return ""
}

// extractName returns the first plausible holder-name line: 5-50
// characters, Title-case or all-caps words, skipping card boilerplate
// and standalone field labels.
func extractName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 5 || len(line) > 50 {
			continue
		}
		if isBoilerplate(line) {
			continue
		}
		if rejectedLineRe.MatchString(line) {
			continue
		}
		if titleCaseLineRe.MatchString(line) || allCapsLineRe.MatchString(line) {
			return line
		}
	}
	return ""
}

func isBoilerplate(line string) bool {
	upper := strings.ToUpper(line)
	for _, tok := range boilerplateTokens {
		if strings.Contains(upper, tok) {
			return true
		}
	}
	return false
}

// NamesMatch compares holder names across documents. After lowercasing
// and trimming, the names agree when equal or when either contains the
// other, which tolerates honorifics and partial OCR reads.
func NamesMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

func ptr(s string) *string {
	return &s
}
