// internal/controller/mailing_controller.go
package controller

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/service"
)

type MailingController struct {
	MailingService *service.MailingService
	Log            *zap.Logger
}

type mailingBody struct {
	StartTime          time.Time `json:"start_time" validate:"required"`
	EndTime            time.Time `json:"end_time" validate:"required"`
	MessageText        string    `json:"message_text" validate:"required"`
	MobileOperatorCode string    `json:"mobile_operator_code" validate:"required,len=3,numeric"`
	Tag                string    `json:"tag" validate:"required,max=50"`
}

func (b mailingBody) changes() service.MailingChanges {
	return service.MailingChanges{
		StartTime:          &b.StartTime,
		EndTime:            &b.EndTime,
		MessageText:        &b.MessageText,
		MobileOperatorCode: &b.MobileOperatorCode,
		Tag:                &b.Tag,
	}
}

type mailingPatch struct {
	StartTime          *time.Time `json:"start_time"`
	EndTime            *time.Time `json:"end_time"`
	MessageText        *string    `json:"message_text" validate:"omitempty,min=1"`
	MobileOperatorCode *string    `json:"mobile_operator_code" validate:"omitempty,len=3,numeric"`
	Tag                *string    `json:"tag" validate:"omitempty,max=50"`
}

func (c *MailingController) CreateMailing(w http.ResponseWriter, r *http.Request) {
	var body mailingBody
	if err := decode(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}

	mailing, err := c.MailingService.CreateMailing(r.Context(), &model.Mailing{
		StartTime:          body.StartTime,
		EndTime:            body.EndTime,
		MessageText:        body.MessageText,
		MobileOperatorCode: body.MobileOperatorCode,
		Tag:                body.Tag,
	})
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, mailing)
}

// ReplaceMailing handles PUT: every field is required.
func (c *MailingController) ReplaceMailing(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	var body mailingBody
	if err := decode(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}
	c.update(w, r, id, body.changes())
}

// PatchMailing handles PATCH: absent fields keep their value.
func (c *MailingController) PatchMailing(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	var body mailingPatch
	if err := decode(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}
	c.update(w, r, id, service.MailingChanges{
		StartTime:          body.StartTime,
		EndTime:            body.EndTime,
		MessageText:        body.MessageText,
		MobileOperatorCode: body.MobileOperatorCode,
		Tag:                body.Tag,
	})
}

func (c *MailingController) update(w http.ResponseWriter, r *http.Request, id int64, changes service.MailingChanges) {
	mailing, err := c.MailingService.UpdateMailing(r.Context(), id, changes)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, mailing)
}

func (c *MailingController) DeleteMailing(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	if err := c.MailingService.DeleteMailing(r.Context(), id); err != nil {
		WriteError(w, c.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
