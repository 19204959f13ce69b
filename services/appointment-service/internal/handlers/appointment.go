package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/apperr"
	"github.com/md-rashed-zaman/clinicslots/libs/httpx"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/model"
)

type Booker interface {
	CreateAppointment(ctx context.Context, req booking.CreateRequest) (model.Appointment, error)
	CancelAppointment(ctx context.Context, id string) (model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
}

type AppointmentHandler struct {
	svc Booker
}

func NewAppointmentHandler(svc Booker) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /appointment", h.Create)
	mux.HandleFunc("GET /appointment/{id}", h.Get)
	mux.HandleFunc("PUT /appointment/{id}", h.Cancel)
}

type createAppointmentRequest struct {
	DoctorID        string `json:"doctorId"`
	PatientID       string `json:"patientId"`
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	AppointmentTime string `json:"appointmentTime"`
	Notes           string `json:"notes"`
}

// cancelRequest is optional; an empty body also cancels.
type cancelRequest struct {
	Status string `json:"status"`
}

type appointmentResponse struct {
	ID                string  `json:"id"`
	AppointmentNumber string  `json:"appointmentNumber"`
	DoctorID          string  `json:"doctorId"`
	PatientID         string  `json:"patientId,omitempty"`
	FullName          string  `json:"fullName"`
	Email             string  `json:"email"`
	AppointmentTime   string  `json:"appointmentTime"`
	Status            string  `json:"status"`
	Notes             string  `json:"notes,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
	CancelledAt       *string `json:"cancelledAt,omitempty"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	var at time.Time
	if raw := strings.TrimSpace(req.AppointmentTime); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, apperr.Validation("appointmentTime must be an RFC3339 timestamp"))
			return
		}
		at = parsed
	}
	appt, err := h.svc.CreateAppointment(r.Context(), booking.CreateRequest{
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		FullName:        req.FullName,
		Email:           req.Email,
		AppointmentTime: at,
		Notes:           req.Notes,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 {
		var req cancelRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, err)
			return
		}
		if req.Status != "" && !strings.EqualFold(req.Status, string(model.StatusCancelled)) {
			httpx.WriteError(w, apperr.Validation("status can only be set to CANCELLED"))
			return
		}
	}
	appt, err := h.svc.CancelAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:                a.ID,
		AppointmentNumber: a.AppointmentNumber,
		DoctorID:          a.DoctorID,
		PatientID:         a.PatientID,
		FullName:          a.FullName,
		Email:             a.Email,
		AppointmentTime:   a.AppointmentTime.UTC().Format(time.RFC3339),
		Status:            string(a.Status),
		Notes:             a.Notes,
		CreatedAt:         a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		ts := a.CancelledAt.UTC().Format(time.RFC3339)
		resp.CancelledAt = &ts
	}
	return resp
}
