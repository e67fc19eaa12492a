// internal/handler/message_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/controller"
	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/service"
)

type MessageHandler struct {
	Service *service.MessageService
	Log     *zap.Logger
}

// ListMessagesHandler lists ledger entries, optionally for one mailing_id.
func (h *MessageHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	var mailingID int64
	if raw := r.URL.Query().Get("mailing_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			controller.WriteError(w, h.Log, errors.Wrapf(appErrors.ErrValidation, "invalid mailing_id %q", raw))
			return
		}
		mailingID = id
	}
	page, pageSize := pageParams(r)

	messages, pagination, err := h.Service.ListMessages(r.Context(), mailingID, page, pageSize)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       messages,
		"pagination": pagination,
	})
}

func (h *MessageHandler) GetMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := controller.ParseID(r)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	message, err := h.Service.GetMessage(r.Context(), id)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, message)
}
