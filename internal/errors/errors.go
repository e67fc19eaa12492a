// internal/errors/errors.go
package appErrors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrInvalidWindow  = errors.New("mailing start time must not be after its end time")
	ErrDuplicatePhone = errors.New("client with this phone number already exists")
	ErrLedgerNotEmpty = errors.New("mailing already has ledger entries")
	ErrJobNotFound    = errors.New("job not found")
)

// ErrMailingNotFound is returned when no mailing has the requested ID
type ErrMailingNotFound struct {
	MailingID int64
}

func (e *ErrMailingNotFound) Error() string {
	return fmt.Sprintf("mailing with ID %d not found", e.MailingID)
}

func NewMailingNotFound(id int64) error {
	return &ErrMailingNotFound{MailingID: id}
}

type ErrClientNotFound struct {
	ClientID int64
}

func (e *ErrClientNotFound) Error() string {
	return fmt.Sprintf("client with ID %d not found", e.ClientID)
}

func NewClientNotFound(id int64) error {
	return &ErrClientNotFound{ClientID: id}
}

type ErrMessageNotFound struct {
	MessageID int64
}

func (e *ErrMessageNotFound) Error() string {
	return fmt.Sprintf("message with ID %d not found", e.MessageID)
}

func NewMessageNotFound(id int64) error {
	return &ErrMessageNotFound{MessageID: id}
}

// IsNotFound reports whether err wraps any of the not-found errors above.
func IsNotFound(err error) bool {
	var m *ErrMailingNotFound
	var c *ErrClientNotFound
	var msg *ErrMessageNotFound
	return errors.As(err, &m) || errors.As(err, &c) || errors.As(err, &msg)
}

// IsMailingNotFound reports whether err wraps ErrMailingNotFound.
func IsMailingNotFound(err error) bool {
	var m *ErrMailingNotFound
	return errors.As(err, &m)
}
