package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/service"
)

type DispatchService interface {
	Dispatch(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error)
}

type InboxService interface {
	List(ctx context.Context, ownerID string, params repository.InboxParams) ([]domain.NotificationRecord, error)
	MarkRead(ctx context.Context, ownerID string, id string) error
	GetPreference(ctx context.Context, ownerID string) (*domain.NotificationPreference, error)
	SetDigestFrequency(ctx context.Context, ownerID string, frequency domain.DigestFrequency) (*domain.NotificationPreference, error)
}

type NotificationHandler struct {
	dispatch DispatchService
	inbox    InboxService
}

func NewNotificationHandler(dispatch DispatchService, inbox InboxService) (*NotificationHandler, error) {
	if dispatch == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	if inbox == nil {
		return nil, fmt.Errorf("inbox service is required")
	}
	return &NotificationHandler{dispatch: dispatch, inbox: inbox}, nil
}

func RegisterNotificationRoutes(router fiber.Router, dispatch DispatchService, inbox InboxService) error {
	h, err := NewNotificationHandler(dispatch, inbox)
	if err != nil {
		return err
	}

	router.Post("/notifications", h.CreateNotification)

	users := router.Group("/users/:userId")
	users.Get("/notifications", h.ListInbox)
	users.Post("/notifications/:id/read", h.MarkRead)
	users.Get("/preferences", h.GetPreference)
	users.Put("/preferences", h.UpdatePreference)

	return nil
}

type createNotificationRequest struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	Priority  string         `json:"priority"`
	Channels  []string       `json:"channels"`
	Recipient string         `json:"recipient"`
	Deferred  bool           `json:"deferred"`
}

type channelResultResponse struct {
	Channel string `json:"channel"`
	Outcome string `json:"outcome"`
	RetryID string `json:"retryId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type dispatchResponse struct {
	NotificationID string                  `json:"notificationId"`
	Channels       []channelResultResponse `json:"channels"`
}

type inboxItemResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Priority  string         `json:"priority"`
	IsRead    bool           `json:"isRead"`
	CreatedAt time.Time      `json:"createdAt"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
}

type inboxResponse struct {
	Data []inboxItemResponse `json:"data"`
}

type preferenceRequest struct {
	DigestFrequency string `json:"digestFrequency"`
}

type preferenceResponse struct {
	UserID          string     `json:"userId"`
	DigestFrequency string     `json:"digestFrequency"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	dispatchReq, err := requestToDispatch(req)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.dispatch.Dispatch(c.UserContext(), dispatchReq)
	if err != nil {
		return toHTTPError(err)
	}

	resp := dispatchResponse{
		NotificationID: result.NotificationID,
		Channels:       make([]channelResultResponse, 0, len(result.Channels)),
	}
	for _, ch := range result.Channels {
		resp.Channels = append(resp.Channels, channelResultResponse{
			Channel: ch.Channel.String(),
			Outcome: string(ch.Outcome),
			RetryID: ch.RetryID,
			Error:   ch.Error,
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

func (h *NotificationHandler) ListInbox(c *fiber.Ctx) error {
	unread, err := parseBoolQuery(c, "unread")
	if err != nil {
		return toHTTPError(err)
	}
	limit, err := parseLimit(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, err := h.inbox.List(c.UserContext(), c.Params("userId"), repository.InboxParams{
		UnreadOnly: unread,
		Limit:      limit,
	})
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]inboxItemResponse, 0, len(records))
	for _, r := range records {
		data = append(data, inboxItemResponse{
			ID:        r.ID,
			Type:      r.Type,
			Title:     r.Title,
			Message:   r.Message,
			Metadata:  r.Metadata,
			Priority:  r.Priority.String(),
			IsRead:    r.IsRead,
			CreatedAt: r.CreatedAt,
			ReadAt:    r.ReadAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(inboxResponse{Data: data})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	id := strings.TrimSpace(c.Params("id"))
	if err := h.inbox.MarkRead(c.UserContext(), userID, id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"isRead":         true,
	})
}

func (h *NotificationHandler) GetPreference(c *fiber.Ctx) error {
	pref, err := h.inbox.GetPreference(c.UserContext(), c.Params("userId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toPreferenceResponse(pref))
}

func (h *NotificationHandler) UpdatePreference(c *fiber.Ctx) error {
	var req preferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	frequency, err := domain.ParseDigestFrequency(req.DigestFrequency)
	if err != nil {
		return toHTTPError(err)
	}

	pref, err := h.inbox.SetDigestFrequency(c.UserContext(), c.Params("userId"), frequency)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toPreferenceResponse(pref))
}

func requestToDispatch(req createNotificationRequest) (service.DispatchRequest, error) {
	var priority domain.Priority
	if strings.TrimSpace(req.Priority) != "" {
		p, err := domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return service.DispatchRequest{}, err
		}
		priority = p
	}

	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		ch, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return service.DispatchRequest{}, err
		}
		channels = append(channels, ch)
	}

	return service.DispatchRequest{
		NotificationID: strings.TrimSpace(req.ID),
		UserID:         strings.TrimSpace(req.UserID),
		Type:           strings.TrimSpace(req.Type),
		Title:          strings.TrimSpace(req.Title),
		Message:        strings.TrimSpace(req.Message),
		Metadata:       req.Metadata,
		Priority:       priority,
		Channels:       channels,
		Recipient:      strings.TrimSpace(req.Recipient),
		Deferred:       req.Deferred,
	}, nil
}

func toPreferenceResponse(p *domain.NotificationPreference) preferenceResponse {
	if p == nil {
		return preferenceResponse{}
	}
	resp := preferenceResponse{
		UserID:          p.OwnerID,
		DigestFrequency: p.DigestFrequency.String(),
	}
	if !p.UpdatedAt.IsZero() {
		updatedAt := p.UpdatedAt
		resp.UpdatedAt = &updatedAt
	}
	return resp
}
