// internal/model/message.go
package model

import "time"

// Message is one planned or completed delivery of a mailing to a client.
type Message struct {
	ID        int64      `db:"id" json:"id"`
	MailingID int64      `db:"mailing_id" json:"mailing_id"`
	ClientID  int64      `db:"client_id" json:"client_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	SentAt    *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	IsSent    bool       `db:"is_sent" json:"is_sent"`
}
