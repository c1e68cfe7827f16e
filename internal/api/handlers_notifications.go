// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/notification"
)

// NotificationList is the body of GET /api/v1/notifications.
type NotificationList struct {
	Notifications []*notification.Notification `json:"notifications"`
	Count         int                          `json:"count"`
	UnreadCount   int                          `json:"unreadCount"`
	NextCursor    string                       `json:"nextCursor,omitempty"`
}

// BroadcastList is the body of GET /api/v1/broadcasts.
type BroadcastList struct {
	Broadcasts []*notification.Notification `json:"broadcasts"`
	Count      int                          `json:"count"`
	NextCursor string                       `json:"nextCursor,omitempty"`
}

// SendNotification persists a notification for one user and pushes it to
// the user's live sessions.
//
// @Summary Send a notification
// @Description Persists a notification for one user and pushes it to the user's live sessions. Producer role required.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body SendRequest true "Notification to send"
// @Success 201 {object} APIResponse{data=notification.Notification} "Notification created"
// @Failure 400 {object} APIResponse "Invalid request"
// @Failure 401 {object} APIResponse "Missing or invalid credentials"
// @Failure 403 {object} APIResponse "Role not permitted"
// @Failure 503 {object} APIResponse "Notification store unavailable"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /api/v1/notifications/send [post]
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validate(&req); verr != nil {
		rw.ValidationError(verr)
		return
	}

	n, err := h.sender.SendToUser(r.Context(), req.UserID, req.Content())
	if err != nil {
		rw.StoreError(err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("notification_id", n.ID).
		Str("recipient", sanitizeLogValue(n.RecipientID)).
		Str("kind", sanitizeLogValue(n.Kind)).
		Msg("notification sent")
	rw.Created(n)
}

// BroadcastNotification persists a broadcast and pushes it to every live
// session.
//
// @Summary Broadcast a notification
// @Description Persists a broadcast and pushes it to every live session. Producer role required.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body BroadcastRequest true "Broadcast to send"
// @Success 201 {object} APIResponse{data=notification.Notification} "Broadcast created"
// @Failure 400 {object} APIResponse "Invalid request"
// @Failure 401 {object} APIResponse "Missing or invalid credentials"
// @Failure 403 {object} APIResponse "Role not permitted"
// @Failure 503 {object} APIResponse "Notification store unavailable"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /api/v1/notifications/broadcast [post]
func (h *Handler) BroadcastNotification(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req BroadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validate(&req); verr != nil {
		rw.ValidationError(verr)
		return
	}

	n, err := h.sender.Broadcast(r.Context(), req.Content())
	if err != nil {
		rw.StoreError(err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("notification_id", n.ID).
		Str("kind", sanitizeLogValue(n.Kind)).
		Msg("broadcast sent")
	rw.Created(n)
}

// ListNotifications returns the caller's notifications newest first.
//
// @Summary List notifications
// @Description Returns the caller's notifications newest first.
// @Tags Notifications
// @Produce json
// @Param limit query int false "Page size; 0 uses the server default"
// @Param offset query int false "Items to skip; ignored when cursor is set"
// @Param cursor query string false "Opaque cursor from a previous nextCursor"
// @Success 200 {object} APIResponse{data=NotificationList} "Notification page"
// @Failure 400 {object} APIResponse "Invalid pagination parameter"
// @Failure 401 {object} APIResponse "Missing or invalid credentials"
// @Failure 503 {object} APIResponse "Notification store unavailable"
// @Security BearerAuth
// @Router /api/v1/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	recipient := auth.PrincipalFromContext(r.Context()).ID

	page, ok := h.parsePage(rw, r)
	if !ok {
		return
	}

	res, err := h.store.ListForRecipient(r.Context(), recipient, page)
	if err != nil {
		rw.StoreError(err)
		return
	}
	unread, err := h.store.UnreadCount(r.Context(), recipient)
	if err != nil {
		rw.StoreError(err)
		return
	}

	rw.Success(NotificationList{
		Notifications: nonNil(res.Items),
		Count:         len(res.Items),
		UnreadCount:   unread,
		NextCursor:    res.NextCursor,
	})
}

// UnreadCount returns the caller's unread total.
//
// @Summary Unread count
// @Tags Notifications
// @Produce json
// @Success 200 {object} APIResponse{data=map[string]int} "Unread total"
// @Failure 401 {object} APIResponse "Missing or invalid credentials"
// @Failure 503 {object} APIResponse "Notification store unavailable"
// @Security BearerAuth
// @Router /api/v1/notifications/unread-count [get]
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	n, err := h.store.UnreadCount(r.Context(), auth.PrincipalFromContext(r.Context()).ID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(map[string]int{"unreadCount": n})
}

// MarkRead acknowledges one notification owned by the caller.
//
// @Summary Mark read
// @Description Repeating the call is a no-op.
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} APIResponse{data=notification.Notification} "Updated notification"
// @Failure 404 {object} APIResponse "Notification not found for the caller"
// @Security BearerAuth
// @Router /api/v1/notifications/{id}/read [put]
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	n, err := h.store.MarkRead(r.Context(), auth.PrincipalFromContext(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(n)
}

// MarkAllRead acknowledges every unread notification of the caller.
//
// @Summary Mark all read
// @Tags Notifications
// @Produce json
// @Success 200 {object} APIResponse{data=map[string]int} "Number of notifications marked read"
// @Failure 503 {object} APIResponse "Notification store unavailable"
// @Security BearerAuth
// @Router /api/v1/notifications/read-all [put]
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	count, err := h.store.MarkAllRead(r.Context(), auth.PrincipalFromContext(r.Context()).ID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(map[string]int{"count": count})
}

// DeleteNotification removes one notification owned by the caller.
//
// @Summary Delete a notification
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} APIResponse{data=map[string]string} "Deleted notification ID"
// @Failure 404 {object} APIResponse "Notification not found for the caller"
// @Security BearerAuth
// @Router /api/v1/notifications/{id} [delete]
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), auth.PrincipalFromContext(r.Context()).ID, id); err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(map[string]string{"id": id})
}

// ListBroadcasts returns the broadcast audit log newest first.
//
// @Summary List broadcasts
// @Description Returns the broadcast audit log newest first.
// @Tags Notifications
// @Produce json
// @Param limit query int false "Page size; 0 uses the server default"
// @Param offset query int false "Items to skip; ignored when cursor is set"
// @Param cursor query string false "Opaque cursor from a previous nextCursor"
// @Success 200 {object} APIResponse{data=BroadcastList} "Broadcast page"
// @Failure 400 {object} APIResponse "Invalid pagination parameter"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /api/v1/broadcasts [get]
func (h *Handler) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	page, ok := h.parsePage(rw, r)
	if !ok {
		return
	}

	res, err := h.store.ListBroadcasts(r.Context(), page)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(BroadcastList{
		Broadcasts: nonNil(res.Items),
		Count:      len(res.Items),
		NextCursor: res.NextCursor,
	})
}

func (h *Handler) parsePage(rw *ResponseWriter, r *http.Request) (notification.Page, bool) {
	req, err := parsePageRequest(r)
	if err != nil {
		rw.BadRequest("Invalid pagination parameter: " + err.Error())
		return notification.Page{}, false
	}
	if verr := validate(&req); verr != nil {
		rw.ValidationError(verr)
		return notification.Page{}, false
	}
	return req.page(h.cfg.DefaultPageSize, h.cfg.MaxPageSize), true
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil(items []*notification.Notification) []*notification.Notification {
	if items == nil {
		return []*notification.Notification{}
	}
	return items
}
