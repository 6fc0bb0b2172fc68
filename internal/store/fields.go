package store

import (
	"strings"
	"time"

	"bdr-engine/internal/domain"
)

// Column names in the external table.
const (
	FieldName            = "Name"
	FieldEmail           = "Email"
	FieldJobTitle        = "Job Title"
	FieldCompany         = "Company"
	FieldCompanySize     = "Company Size"
	FieldIndustry        = "Industry"
	FieldRegion          = "Region"
	FieldScore           = "Score"
	FieldScoreReasons    = "Score Reasons"
	FieldLinkedIn        = "LinkedIn URL"
	FieldLocation        = "Location"
	FieldProcessedDate   = "Processed Date"
	FieldStatus          = "Status"
	FieldOutreachSubject = "Outreach Subject"
	FieldOutreachMessage = "Outreach Message"
	FieldSentAt          = "Sent At"
	FieldSendError       = "Send Error"
)

// Status lifecycle for a row.
const (
	StatusNew        = "New"
	StatusQueued     = "Queued"
	StatusSent       = "Sent"
	StatusSendFailed = "Send Failed"
	StatusReplied    = "Replied"
	StatusBounced    = "Bounced"
)

// prospectFields maps a prospect onto named columns. Attributes with no
// column here are dropped on purpose; the table stays forward-compatible
// with whatever extra data a source attaches. Status is deliberately
// absent: inserts set it once, updates must not clobber send history.
func prospectFields(p domain.Prospect) Fields {
	f := Fields{
		FieldName:          p.FullName(),
		FieldEmail:         p.Email,
		FieldJobTitle:      p.Title,
		FieldCompany:       p.Company,
		FieldCompanySize:   p.CompanySize,
		FieldIndustry:      p.Industry,
		FieldRegion:        p.Region,
		FieldScore:         p.Score,
		FieldScoreReasons:  strings.Join(p.ScoreReasons, ", "),
		FieldProcessedDate: time.Now().Format("2006-01-02"),
	}
	if p.LinkedInURL != "" {
		f[FieldLinkedIn] = p.LinkedInURL
	}
	if p.Location != "" {
		f[FieldLocation] = p.Location
	}
	return f
}
