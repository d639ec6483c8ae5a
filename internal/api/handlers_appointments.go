package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
)

func bookAppointmentHandler(coord *scheduling.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		book := scheduling.BookRequest{SlotID: slotID, Reason: req.Reason}
		if req.DoctorID != nil {
			doctorID, err := uuid.Parse(*req.DoctorID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			book.DoctorID = doctorID
		}

		detail, err := coord.Book(r.Context(), actor, book)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(detail))
	}
}

func listAppointmentsHandler(coord *scheduling.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		var status *scheduling.AppointmentStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			s := scheduling.AppointmentStatus(raw)
			status = &s
		}

		var (
			list []scheduling.AppointmentDetail
			err  error
		)
		switch actor.Role {
		case scheduling.RolePatient:
			list, err = coord.ListPatientAppointments(r.Context(), actor.ID, status)
		case scheduling.RoleDoctor:
			list, err = coord.ListDoctorAppointments(r.Context(), actor.ID, status)
		default:
			writeError(w, http.StatusBadRequest, "unsupported_role", "listing requires a patient or doctor token")
			return
		}
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toAppointmentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(coord *scheduling.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		appointmentID, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		detail, err := coord.GetAppointment(r.Context(), actor, appointmentID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func cancelAppointmentHandler(coord *scheduling.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		appointmentID, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		if err := coord.Cancel(r.Context(), actor, appointmentID); err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"appointment_id": appointmentID.String(),
			"status":         string(scheduling.StatusCancelled),
		})
	}
}

func emergencyCancelHandler(coord *scheduling.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		appointmentID, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		patientID, err := coord.EmergencyCancel(r.Context(), actor, appointmentID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"appointment_id": appointmentID.String(),
			"status":         string(scheduling.StatusEmergencyCancelled),
			"patient_id":     patientID.String(),
		})
	}
}

func rescheduleAppointmentHandler(coord *scheduling.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		appointmentID, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		newSlotID, err := uuid.Parse(req.NewSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "new_slot_id must be a valid UUID")
			return
		}

		detail, err := coord.Reschedule(r.Context(), actor, appointmentID, newSlotID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func updateStatusHandler(coord *scheduling.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		appointmentID, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := coord.UpdateStatus(r.Context(), actor, appointmentID, scheduling.AppointmentStatus(req.Status))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"appointment_id": updated.ID.String(),
			"status":         string(updated.Status),
		})
	}
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
