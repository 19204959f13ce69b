package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/apperr"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/model"
)

type fakeBooker struct {
	err       error
	got       booking.CreateRequest
	cancelled string
}

func (f *fakeBooker) CreateAppointment(_ context.Context, req booking.CreateRequest) (model.Appointment, error) {
	f.got = req
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	return model.Appointment{
		ID:                "a1",
		AppointmentNumber: "APT-20260301-000001",
		DoctorID:          req.DoctorID,
		FullName:          req.FullName,
		Email:             req.Email,
		AppointmentTime:   req.AppointmentTime,
		Status:            model.StatusApproved,
	}, nil
}

func (f *fakeBooker) CancelAppointment(_ context.Context, id string) (model.Appointment, error) {
	f.cancelled = id
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return model.Appointment{ID: id, Status: model.StatusCancelled, CancelledAt: &now}, nil
}

func (f *fakeBooker) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	return model.Appointment{ID: id, Status: model.StatusApproved}, f.err
}

func serve(h *AppointmentHandler, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rw
}

func TestCreateAppointment(t *testing.T) {
	f := &fakeBooker{}
	rw := serve(NewAppointmentHandler(f), http.MethodPost, "/appointment",
		`{"doctorId":"doctorA","fullName":"Jane Roe","email":"jane@example.com","appointmentTime":"2026-03-02T09:30:00Z"}`)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AppointmentNumber != "APT-20260301-000001" || resp.Status != "APPROVED" || resp.AppointmentTime != "2026-03-02T09:30:00Z" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if f.got.DoctorID != "doctorA" || !f.got.AppointmentTime.Equal(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected request %+v", f.got)
	}
}

func TestCreateAppointment_Conflict(t *testing.T) {
	f := &fakeBooker{err: apperr.Conflict("slot already taken")}
	rw := serve(NewAppointmentHandler(f), http.MethodPost, "/appointment",
		`{"doctorId":"doctorA","fullName":"Jane Roe","email":"jane@example.com","appointmentTime":"2026-03-02T09:30:00Z"}`)
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "slot already taken") {
		t.Fatalf("expected conflict message, got %s", rw.Body.String())
	}
}

func TestCreateAppointment_BadInput(t *testing.T) {
	for _, body := range []string{
		`{"doctorId":"doctorA","appointmentTime":"next tuesday"}`,
		`{"doctorId":"doctorA","unknown":true}`,
		`not json`,
	} {
		rw := serve(NewAppointmentHandler(&fakeBooker{}), http.MethodPost, "/appointment", body)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rw.Code)
		}
	}
}

func TestCancelAppointment(t *testing.T) {
	f := &fakeBooker{}
	rw := serve(NewAppointmentHandler(f), http.MethodPut, "/appointment/a1", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.cancelled != "a1" || resp.Status != "CANCELLED" || resp.CancelledAt == nil {
		t.Fatalf("unexpected response %+v", resp)
	}

	rw = serve(NewAppointmentHandler(f), http.MethodPut, "/appointment/a1", `{"status":"APPROVED"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-cancel status, got %d", rw.Code)
	}
}

func TestCancelAppointment_NotFound(t *testing.T) {
	f := &fakeBooker{err: apperr.NotFound("appointment not found")}
	rw := serve(NewAppointmentHandler(f), http.MethodPut, "/appointment/missing", `{"status":"CANCELLED"}`)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
	rw = serve(NewAppointmentHandler(f), http.MethodGet, "/appointment/missing", "")
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on get, got %d", rw.Code)
	}
}
