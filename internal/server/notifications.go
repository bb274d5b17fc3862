package server

import (
	"net/http"
	"strconv"

	"bloodlink/pkg/types"
)

type notificationList struct {
	Notifications []*types.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

func (s *Service) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	notifications, err := s.notificationRepo.NotificationsByUser(ctx, user.ID, unreadOnly)
	if err != nil {
		s.handleError(w, r, err, "failed to list notifications")
		return
	}

	unread, err := s.notificationRepo.UnreadCount(ctx, user.ID)
	if err != nil {
		s.handleError(w, r, err, "failed to count unread notifications")
		return
	}

	if notifications == nil {
		notifications = []*types.Notification{}
	}

	s.writeData(w, http.StatusOK, notificationList{Notifications: notifications, UnreadCount: unread})
}

func (s *Service) handlePostNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := s.userFromContext(ctx)
	if err != nil {
		s.internalServerError(w, r)
		return
	}

	notification, err := s.notificationRepo.MarkRead(ctx, r.PathValue("notificationID"), user.ID)
	if err != nil {
		s.handleError(w, r, err, "failed to mark notification read")
		return
	}

	s.writeData(w, http.StatusOK, notification)
}
