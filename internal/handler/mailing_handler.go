// internal/handler/mailing_handler.go
package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/controller"
	"github.com/unclebandit/mailing-service/internal/service"
)

// MailingHandler serves the read side of mailings.
type MailingHandler struct {
	Service *service.MailingService
	Log     *zap.Logger
}

// ListMailingsHandler returns a paginated list of mailings
func (h *MailingHandler) ListMailingsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	mailings, pagination, err := h.Service.ListMailings(r.Context(), page, pageSize)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}

	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       mailings,
		"pagination": pagination,
	})
}

// GetMailingHandler returns one mailing together with its delivery stats
func (h *MailingHandler) GetMailingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := controller.ParseID(r)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}

	details, err := h.Service.GetMailing(r.Context(), id)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, details)
}

func (h *MailingHandler) GetMailingStatsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := controller.ParseID(r)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}

	stats, err := h.Service.MailingStats(r.Context(), id)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, stats)
}

// pageParams reads page and page_size; bad values fall back to the defaults.
func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}
