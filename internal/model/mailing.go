// internal/model/mailing.go
package model

import "time"

type Mailing struct {
	ID                 int64     `db:"id" json:"id"`
	StartTime          time.Time `db:"start_time" json:"start_time"`
	EndTime            time.Time `db:"end_time" json:"end_time"`
	MessageText        string    `db:"message_text" json:"message_text"`
	MobileOperatorCode string    `db:"mobile_operator_code" json:"mobile_operator_code"`
	Tag                string    `db:"tag" json:"tag"`
	JobID              *string   `db:"job_id" json:"job_id,omitempty"`
}

// ValidWindow reports whether the mailing starts no later than it ends.
func (m *Mailing) ValidWindow() bool {
	return !m.StartTime.After(m.EndTime)
}

// SignificantlyDiffers reports whether other changes any field that drives the
// audience or the dispatch time. Message text is not one of them.
func (m *Mailing) SignificantlyDiffers(other *Mailing) bool {
	return !m.StartTime.Equal(other.StartTime) ||
		!m.EndTime.Equal(other.EndTime) ||
		m.MobileOperatorCode != other.MobileOperatorCode ||
		m.Tag != other.Tag
}

// HasJob reports whether a job handle is recorded on the mailing.
func (m *Mailing) HasJob() bool {
	return m.JobID != nil && *m.JobID != ""
}

type MailingStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Pending int `json:"pending"`
}
