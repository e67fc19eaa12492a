// internal/handler/client_handler.go
package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/controller"
	"github.com/unclebandit/mailing-service/internal/service"
)

type ClientHandler struct {
	Service *service.ClientService
	Log     *zap.Logger
}

// ListClientsHandler supports optional mobile_operator_code and tag filters.
func (h *ClientHandler) ListClientsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	operatorCode := r.URL.Query().Get("mobile_operator_code")
	tag := r.URL.Query().Get("tag")

	clients, pagination, err := h.Service.ListClients(r.Context(), page, pageSize, operatorCode, tag)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       clients,
		"pagination": pagination,
	})
}

func (h *ClientHandler) GetClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := controller.ParseID(r)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	client, err := h.Service.GetClient(r.Context(), id)
	if err != nil {
		controller.WriteError(w, h.Log, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, client)
}
