package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/apperr"
	"github.com/md-rashed-zaman/clinicslots/libs/httpx"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

type Scheduler interface {
	AddSchedule(ctx context.Context, doctorID string, start, end time.Time) (model.ScheduleBlock, error)
	UpdateSchedule(ctx context.Context, id string, start, end time.Time) (model.ScheduleBlock, error)
	RemoveSchedule(ctx context.Context, id string) error
	GetSchedule(ctx context.Context, id string) (model.ScheduleBlock, error)
	ListSchedules(ctx context.Context, doctorID string) ([]model.ScheduleBlock, error)
	GetSlots(ctx context.Context, doctorID string, day time.Time) ([]model.Slot, error)
}

type ScheduleHandler struct {
	svc Scheduler
}

func NewScheduleHandler(svc Scheduler) *ScheduleHandler {
	return &ScheduleHandler{svc: svc}
}

func (h *ScheduleHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /schedule", h.Create)
	mux.HandleFunc("GET /schedule", h.List)
	mux.HandleFunc("GET /schedule/{id}", h.Get)
	mux.HandleFunc("PUT /schedule/{id}", h.Update)
	mux.HandleFunc("DELETE /schedule/{id}", h.Delete)
	mux.HandleFunc("GET /schedule/doctor/{doctorId}", h.Slots)
}

type createScheduleRequest struct {
	DoctorID string `json:"doctorId"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type updateScheduleRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type scheduleResponse struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctorId"`
	Start     string `json:"start"`
	End       string `json:"end"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type slotResponse struct {
	ID          string `json:"id"`
	ScheduleID  string `json:"scheduleId"`
	Start       string `json:"start"`
	End         string `json:"end"`
	IsAvailable bool   `json:"isAvailable"`
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	block, err := h.svc.AddSchedule(r.Context(), req.DoctorID, start, end)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toScheduleResponse(block))
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	block, err := h.svc.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleResponse(block))
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.svc.ListSchedules(r.Context(), r.URL.Query().Get("doctorId"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	resp := make([]scheduleResponse, 0, len(blocks))
	for _, b := range blocks {
		resp = append(resp, toScheduleResponse(b))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	block, err := h.svc.UpdateSchedule(r.Context(), r.PathValue("id"), start, end)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleResponse(block))
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveSchedule(r.Context(), r.PathValue("id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Slots lists a doctor's slots for ?date=YYYY-MM-DD (UTC).
func (h *ScheduleHandler) Slots(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		httpx.WriteError(w, apperr.Validation("date is required"))
		return
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		httpx.WriteError(w, apperr.Validation("date must be YYYY-MM-DD"))
		return
	}
	list, err := h.svc.GetSlots(r.Context(), r.PathValue("doctorId"), day)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	resp := make([]slotResponse, 0, len(list))
	for _, s := range list {
		resp = append(resp, slotResponse{
			ID:          s.ID,
			ScheduleID:  s.ScheduleID,
			Start:       s.Start.UTC().Format(time.RFC3339),
			End:         s.End.UTC().Format(time.RFC3339),
			IsAvailable: s.IsAvailable,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func parseRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(rawStart))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("start must be an RFC3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(rawEnd))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("end must be an RFC3339 timestamp")
	}
	return start, end, nil
}

func toScheduleResponse(b model.ScheduleBlock) scheduleResponse {
	return scheduleResponse{
		ID:        b.ID,
		DoctorID:  b.DoctorID,
		Start:     b.Start.UTC().Format(time.RFC3339),
		End:       b.End.UTC().Format(time.RFC3339),
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
