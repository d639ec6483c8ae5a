package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
)

func addSlotHandler(slots *scheduling.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		var req AddSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		start, err := parseTimeOn(date, req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
			return
		}
		end, err := parseTimeOn(date, req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
			return
		}

		slot, err := slots.AddSlot(r.Context(), actor.ID, date, start, end)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func updateSlotHandler(slots *scheduling.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		// Unknown fields are rejected so callers cannot smuggle in
		// columns outside the mutable set.
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		var req UpdateSlotRequest
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		var upd scheduling.SlotUpdate
		if req.Date != nil {
			date, err := parseDate(*req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
				return
			}
			upd.Date = &date
		}
		if req.StartTime != nil {
			start, err := parseTimeOn(time.Time{}, *req.StartTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
				return
			}
			upd.StartTime = &start
		}
		if req.EndTime != nil {
			end, err := parseTimeOn(time.Time{}, *req.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
				return
			}
			upd.EndTime = &end
		}

		slot, err := slots.UpdateSlot(r.Context(), actor.ID, slotID, upd)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func deleteSlotHandler(slots *scheduling.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := slots.DeleteSlot(r.Context(), actor.ID, slotID); err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"deleted": slotID.String()})
	}
}

func listMySlotsHandler(slots *scheduling.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		listSlotsFor(w, r, slots, actor.ID)
	}
}

func listDoctorSlotsHandler(slots *scheduling.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}
		listSlotsFor(w, r, slots, doctorID)
	}
}

func listSlotsFor(w http.ResponseWriter, r *http.Request, slots *scheduling.SlotStore, doctorID uuid.UUID) {
	var date *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		date = &d
	}
	availableOnly := r.URL.Query().Get("available") == "true"

	list, err := slots.ListSlots(r.Context(), doctorID, date, availableOnly)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	resp := make([]SlotResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toSlotResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}
