package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/cache"
	"github.com/LeventeLantos/message-scheduler/internal/channel"
	"github.com/LeventeLantos/message-scheduler/internal/repo"
	"github.com/LeventeLantos/message-scheduler/internal/scheduler"
	"github.com/LeventeLantos/message-scheduler/internal/service"
)

const maxBodyBytes = 1 << 20

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Scheduler *scheduler.Scheduler
	Queue     *service.Queue
	Directory *service.Directory
	Stats     *service.Stats
	Channel   channel.Channel
	Receipts  cache.ReceiptCache
	DB        Pinger
	Registry  *prometheus.Registry
	Log       zerolog.Logger
}

type Handler struct {
	sched     *scheduler.Scheduler
	queue     *service.Queue
	directory *service.Directory
	stats     *service.Stats
	channel   channel.Channel
	receipts  cache.ReceiptCache
	db        Pinger
	registry  *prometheus.Registry
	log       zerolog.Logger
}

func NewHandler(d Deps) *Handler {
	receipts := d.Receipts
	if receipts == nil {
		receipts = cache.Nop{}
	}
	return &Handler{
		sched:     d.Scheduler,
		queue:     d.Queue,
		directory: d.Directory,
		stats:     d.Stats,
		channel:   d.Channel,
		receipts:  receipts,
		db:        d.DB,
		registry:  d.Registry,
		log:       d.Log.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Status reports channel readiness and, while unpaired, the pairing payload.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":     h.channel.IsReady(),
		"qr":        h.channel.PairingCode(),
		"scheduler": h.sched.IsRunning(),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.channel.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// SchedulerRun runs one pass and waits for it. The pass outlives a dropped client.
func (h *Handler) SchedulerRun(w http.ResponseWriter, r *http.Request) {
	ran := h.sched.RunOnce(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"ran": ran, "running": h.sched.IsRunning()})
}

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	items, err := h.directory.Contacts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.directory.Contact(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var in service.ContactInput
	if !h.decode(w, r, &in) {
		return
	}
	id, err := h.directory.AddContact(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in service.ContactInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.directory.UpdateContact(r.Context(), id, in); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.directory.DeleteContact(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkGroupRequest struct {
	ContactIDs []int64 `json:"contactIds"`
	GroupID    *int64  `json:"groupId"`
}

func (h *Handler) BulkAssignGroup(w http.ResponseWriter, r *http.Request) {
	var req bulkGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.directory.AssignGroup(r.Context(), req.ContactIDs, req.GroupID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": n})
}

type importRequest struct {
	Contacts []service.ContactInput `json:"contacts"`
}

func (h *Handler) ImportContacts(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.directory.Import(r.Context(), req.Contacts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ImportFromChannel(w http.ResponseWriter, r *http.Request) {
	res, err := h.directory.ImportFromChannel(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CleanContacts(w http.ResponseWriter, r *http.Request) {
	res, err := h.directory.Clean(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	items, err := h.directory.Groups(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var in service.GroupInput
	if !h.decode(w, r, &in) {
		return
	}
	id, err := h.directory.AddGroup(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.directory.DeleteGroup(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// enqueueBody mirrors service.EnqueueRequest but takes delaySeconds as a
// number or a numeric string.
type enqueueBody struct {
	ContactID      int64           `json:"contactId"`
	GroupID        int64           `json:"groupId"`
	Message        string          `json:"message"`
	AttachmentPath string          `json:"attachmentPath"`
	ScheduledTime  string          `json:"scheduledTime"`
	DelaySeconds   json.RawMessage `json:"delaySeconds"`
}

func (h *Handler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	var body enqueueBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := h.queue.Enqueue(r.Context(), service.EnqueueRequest{
		ContactID:      body.ContactID,
		GroupID:        body.GroupID,
		Message:        body.Message,
		AttachmentPath: body.AttachmentPath,
		ScheduledTime:  body.ScheduledTime,
		DelaySeconds:   delayField(body.DelaySeconds),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func delayField(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return service.ParseDelay(s)
	}
	return nil
}

func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.Pending(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) GetQueueEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	e, err := h.queue.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) DeleteQueueEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.queue.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.Clear(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

// Receipts lists cached per-recipient delivery receipts for an entry.
func (h *Handler) Receipts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	items, err := h.receipts.Receipts(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) ListStats(w http.ResponseWriter, r *http.Request) {
	days := parseInt(r.URL.Query().Get("days"), 30)

	items, err := h.stats.Recent(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) ResetStats(w http.ResponseWriter, r *http.Request) {
	if err := h.stats.Reset(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repo.ErrDuplicate), errors.Is(err, repo.ErrNotDeletable), errors.Is(err, repo.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, channel.ErrNotReady):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(err.Error())})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
