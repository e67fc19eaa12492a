// internal/controller/client_controller.go
package controller

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/service"
)

type ClientController struct {
	ClientService *service.ClientService
	Log           *zap.Logger
}

// clientBody validates phone numbers of the form 7XXXXXXXXXX.
type clientBody struct {
	PhoneNumber        string `json:"phone_number" validate:"required,len=11,numeric,startswith=7"`
	MobileOperatorCode string `json:"mobile_operator_code" validate:"required,len=3,numeric"`
	Tag                string `json:"tag" validate:"max=50"`
}

func (b clientBody) client(id int64) *model.Client {
	return &model.Client{
		ID:                 id,
		PhoneNumber:        b.PhoneNumber,
		MobileOperatorCode: b.MobileOperatorCode,
		Tag:                b.Tag,
	}
}

func (c *ClientController) CreateClient(w http.ResponseWriter, r *http.Request) {
	var body clientBody
	if err := decode(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}
	client, err := c.ClientService.CreateClient(r.Context(), body.client(0))
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, client)
}

func (c *ClientController) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	var body clientBody
	if err := decode(r, &body); err != nil {
		WriteError(w, c.Log, err)
		return
	}
	client, err := c.ClientService.UpdateClient(r.Context(), body.client(id))
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, client)
}

func (c *ClientController) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	if err := c.ClientService.DeleteClient(r.Context(), id); err != nil {
		WriteError(w, c.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
