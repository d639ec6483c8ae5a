package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clinidesk/clinic-scheduling/internal/notify"
)

func listNotificationsHandler(svc *notify.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		unreadOnly := r.URL.Query().Get("unread") == "true"

		list, err := svc.List(r.Context(), actor.Role, actor.ID, unreadOnly)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]NotificationResponse, 0, len(list))
		for _, n := range list {
			resp = append(resp, toNotificationResponse(n))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func markNotificationReadHandler(svc *notify.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_notification_id", "id must be an integer")
			return
		}

		if err := svc.MarkRead(r.Context(), actor.Role, actor.ID, id); err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"read": true})
	}
}

func markAllNotificationsReadHandler(svc *notify.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		if err := svc.MarkAllRead(r.Context(), actor.Role, actor.ID); err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"read": true})
	}
}

func unreadCountHandler(svc *notify.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		count, err := svc.UnreadCount(r.Context(), actor.Role, actor.ID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"unread": count})
	}
}
