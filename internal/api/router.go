package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/status", h.Status)
	mux.HandleFunc("POST /v1/logout", h.Logout)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)
	mux.HandleFunc("POST /v1/scheduler/run", h.SchedulerRun)

	mux.HandleFunc("GET /v1/contacts", h.ListContacts)
	mux.HandleFunc("POST /v1/contacts", h.CreateContact)
	mux.HandleFunc("GET /v1/contacts/{id}", h.GetContact)
	mux.HandleFunc("PUT /v1/contacts/{id}", h.UpdateContact)
	mux.HandleFunc("DELETE /v1/contacts/{id}", h.DeleteContact)
	mux.HandleFunc("POST /v1/contacts/bulk-group", h.BulkAssignGroup)
	mux.HandleFunc("POST /v1/contacts/import", h.ImportContacts)
	mux.HandleFunc("POST /v1/contacts/import-channel", h.ImportFromChannel)
	mux.HandleFunc("POST /v1/contacts/clean", h.CleanContacts)

	mux.HandleFunc("GET /v1/groups", h.ListGroups)
	mux.HandleFunc("POST /v1/groups", h.CreateGroup)
	mux.HandleFunc("DELETE /v1/groups/{id}", h.DeleteGroup)

	mux.HandleFunc("POST /v1/messages", h.EnqueueMessage)

	mux.HandleFunc("GET /v1/queue", h.ListQueue)
	mux.HandleFunc("DELETE /v1/queue", h.ClearQueue)
	mux.HandleFunc("GET /v1/queue/{id}", h.GetQueueEntry)
	mux.HandleFunc("DELETE /v1/queue/{id}", h.DeleteQueueEntry)
	mux.HandleFunc("GET /v1/queue/{id}/receipts", h.Receipts)

	mux.HandleFunc("GET /v1/stats", h.ListStats)
	mux.HandleFunc("DELETE /v1/stats", h.ResetStats)

	if h.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("message-scheduler"))
	})

	return mux
}
