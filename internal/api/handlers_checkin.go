package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
)

// Code profiles mirror the two issue flows: a short window during
// active check-in and a long-lived code handed out at booking time.
type codeProfiles struct {
	Checkin time.Duration
	Booking time.Duration
}

func issueCodeHandler(gate *scheduling.CheckinGate, profiles codeProfiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req IssueCodeRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		params := scheduling.IssueCodeParams{TTL: profiles.Checkin, SetPending: true}
		switch req.Profile {
		case "", "checkin":
		case "booking":
			params = scheduling.IssueCodeParams{TTL: profiles.Booking, SetPending: false}
		default:
			writeError(w, http.StatusBadRequest, "invalid_profile", "profile must be checkin or booking")
			return
		}

		code, err := gate.IssueCode(r.Context(), appointmentID, params)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, CheckinCodeResponse{
			AppointmentID: code.AppointmentID,
			Code:          code.Code,
			ExpiresAt:     code.ExpiresAt,
		})
	}
}

func verifyCodeHandler(gate *scheduling.CheckinGate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req VerifyCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, "missing_code", "code is required")
			return
		}

		if err := gate.VerifyCode(r.Context(), appointmentID, req.Code); err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"appointment_id": appointmentID.String(),
			"verified":       "true",
		})
	}
}

func codeStatusHandler(gate *scheduling.CheckinGate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		status, err := gate.Status(r.Context(), appointmentID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CodeStatusResponse{
			Verified:  status.Verified,
			ExpiresAt: status.ExpiresAt,
			CreatedAt: status.CreatedAt,
		})
	}
}
