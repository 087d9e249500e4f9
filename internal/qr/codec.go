// Package qr encodes vaccination targets into scannable payloads and decodes
// scanned strings back, tolerating the formatting noise real scans carry.
package qr

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Role distinguishes the two supported administration workflows.
type Role string

const (
	// RoleDoctor marks single-dose confirmations administered by a doctor.
	RoleDoctor Role = "doctor"
	// RoleWorker marks drive-based confirmations administered by a field
	// worker. The second path token carries a drive id instead of a
	// vaccine template id.
	RoleWorker Role = "worker"
)

// Valid reports whether the role is a supported value.
func (r Role) Valid() bool {
	return r == RoleDoctor || r == RoleWorker
}

// Payload is the decoded triple carried by a QR code or deep link.
// Immutable once decoded; Dose is the raw query value, left uninterpreted
// for the administration transaction to parse.
type Payload struct {
	Role              Role   `json:"role"`
	SubjectID         string `json:"subject_id"`
	VaccineTemplateID string `json:"vaccine_template_id"`
	Dose              string `json:"dose_number,omitempty"`
}

// DoseValue parses the raw dose as a positive integer. ok is false when the
// value is absent, non-numeric or not positive; callers default to dose 1.
func (p Payload) DoseValue() (int, bool) {
	if p.Dose == "" {
		return 0, false
	}
	n, err := strconv.Atoi(p.Dose)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var (
	collapseSlashes = regexp.MustCompile(`/{2,}`)
	pathPatterns    = map[Role]*regexp.Regexp{
		RoleDoctor: regexp.MustCompile(`(?i)doctor/([^/\s?]+)/([^/\s?]+)`),
		RoleWorker: regexp.MustCompile(`(?i)worker/([^/\s?]+)/([^/\s?]+)`),
	}
)

// Encode builds the scannable payload string. A dose of zero or less omits
// the dose suffix; the worker flow never carries one.
func Encode(role Role, subjectID, vaccineTemplateID string, dose int) string {
	s := fmt.Sprintf("%s/%s/%s", role, subjectID, vaccineTemplateID)
	if role == RoleDoctor && dose > 0 {
		s += fmt.Sprintf("?dose=%d", dose)
	}
	return s
}

// Decode parses a raw scanned string against the expected role. It is pure
// and deterministic: no I/O, and malformed input yields ErrMalformedPayload
// rather than a panic. Runs of path separators collapse to one, trailing
// separators and surrounding whitespace are dropped, and only the dose query
// key is recognised.
func Decode(raw string, expected Role) (Payload, error) {
	pattern, ok := pathPatterns[expected]
	if !ok {
		return Payload{}, fmt.Errorf("unsupported role %q", expected)
	}

	cleaned := strings.TrimSpace(raw)
	cleaned = collapseSlashes.ReplaceAllString(cleaned, "/")
	cleaned = strings.TrimRight(cleaned, "/")

	path := cleaned
	dose := ""
	if i := strings.Index(cleaned, "?"); i >= 0 {
		path = cleaned[:i]
		if values, err := url.ParseQuery(cleaned[i+1:]); err == nil {
			dose = values.Get("dose")
		}
	}

	match := pattern.FindStringSubmatch(path)
	if len(match) < 3 {
		return Payload{}, ErrMalformedPayload
	}

	return Payload{
		Role:              expected,
		SubjectID:         match[1],
		VaccineTemplateID: match[2],
		Dose:              dose,
	}, nil
}
