// internal/handler/router.go
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/controller"
	"github.com/unclebandit/mailing-service/internal/service"
)

// Services are the dependencies of the HTTP API.
type Services struct {
	Mailings *service.MailingService
	Clients  *service.ClientService
	Messages *service.MessageService
}

// NewRouter wires the write side (controllers) and the read side (handlers).
func NewRouter(s Services, log *zap.Logger) http.Handler {
	mailingController := &controller.MailingController{MailingService: s.Mailings, Log: log}
	clientController := &controller.ClientController{ClientService: s.Clients, Log: log}
	mailingHandler := &MailingHandler{Service: s.Mailings, Log: log}
	clientHandler := &ClientHandler{Service: s.Clients, Log: log}
	messageHandler := &MessageHandler{Service: s.Messages, Log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Mailing routes
	r.Route("/mailings", func(r chi.Router) {
		r.Post("/", mailingController.CreateMailing)
		r.Get("/", mailingHandler.ListMailingsHandler)
		r.Get("/{id}", mailingHandler.GetMailingHandler)
		r.Get("/{id}/stats", mailingHandler.GetMailingStatsHandler)
		r.Put("/{id}", mailingController.ReplaceMailing)
		r.Patch("/{id}", mailingController.PatchMailing)
		r.Delete("/{id}", mailingController.DeleteMailing)
	})

	// Client routes
	r.Route("/clients", func(r chi.Router) {
		r.Post("/", clientController.CreateClient)
		r.Get("/", clientHandler.ListClientsHandler)
		r.Get("/{id}", clientHandler.GetClientHandler)
		r.Put("/{id}", clientController.UpdateClient)
		r.Delete("/{id}", clientController.DeleteClient)
	})

	// Message routes are read only; the ledger is owned by the mailing lifecycle.
	r.Route("/messages", func(r chi.Router) {
		r.Get("/", messageHandler.ListMessagesHandler)
		r.Get("/{id}", messageHandler.GetMessageHandler)
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
