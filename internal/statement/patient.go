package statement

import (
	"regexp"
	"strings"
)

var patientNameRe = regexp.MustCompile(`(?i)PATIENT\s+NAME:?\s+(.+)`)

// PatientName looks for a "PATIENT NAME: ..." header near the top of the
// document. The search stops after the first twenty paragraphs; statement
// documents carry the header on page one.
func PatientName(paragraphs []string) (string, bool) {
	limit := len(paragraphs)
	if limit > 20 {
		limit = 20
	}
	for _, text := range paragraphs[:limit] {
		if m := patientNameRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}
