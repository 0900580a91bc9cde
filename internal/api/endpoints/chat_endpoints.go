package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"storefront-chat/internal/api"
	"storefront-chat/internal/api/middleware"
	"storefront-chat/internal/dto"
	"storefront-chat/internal/service/chat"
)

type ChatEndpoints interface {
	Sessions(http.ResponseWriter, *http.Request) error
	CustomerSessions(http.ResponseWriter, *http.Request) error
	Inbox(http.ResponseWriter, *http.Request) error
	Availability(http.ResponseWriter, *http.Request) error
	Session(http.ResponseWriter, *http.Request) error
}

type chatEndpoints struct {
	service       *chat.Service
	sessionPrefix string
}

func NewChatEndpoints(service *chat.Service, prefix string) ChatEndpoints {
	return &chatEndpoints{
		service:       service,
		sessionPrefix: strings.TrimRight(prefix, "/") + "/chat/",
	}
}

func (h *chatEndpoints) Sessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListSessions,
		http.MethodPost: h.handleCreateSession,
	})
}

func (h *chatEndpoints) CustomerSessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListCustomerSessions,
	})
}

// Inbox is the agent conversation list; the route wraps it in RequireStaff.
func (h *chatEndpoints) Inbox(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListSessions,
	})
}

func (h *chatEndpoints) Availability(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleAvailability,
	})
}

// Session serves /chat/{id}, /chat/{id}/messages and /chat/{id}/message.
func (h *chatEndpoints) Session(w http.ResponseWriter, r *http.Request) error {
	sessionID, sub, err := h.parseSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	switch sub {
	case "":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet:   func(w http.ResponseWriter, r *http.Request) error { return h.handleGetSession(w, r, sessionID) },
			http.MethodPatch: func(w http.ResponseWriter, r *http.Request) error { return h.handleUpdateSession(w, r, sessionID) },
		})
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error { return h.handleListMessages(w, r, sessionID) },
		})
	case "message":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error { return h.handlePostMessage(w, r, sessionID) },
		})
	default:
		return &api.HTTPError{StatusCode: http.StatusNotFound, Message: "Not found", ErrorLog: fmt.Errorf("unknown chat route %s", r.URL.Path)}
	}
}

func (h *chatEndpoints) handleCreateSession(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.CreateSessionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req, "create session request"); err != nil {
			return err
		}
	}

	result, err := h.service.CreateSession(r.Context(), identity, chat.CreateSessionParams{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		return h.serviceError(err)
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return WriteJSON(w, status, dto.SessionResponse{Session: dto.SessionFromModel(result.Session)})
}

func (h *chatEndpoints) handleListSessions(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.service.ListSessions(r.Context(), identity, limit)
	if err != nil {
		return h.serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListSessionsResponse{Sessions: dto.SessionsFromModel(sessions)})
}

func (h *chatEndpoints) handleListCustomerSessions(w http.ResponseWriter, r *http.Request) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	sessions, err := h.service.ListCustomerSessions(r.Context(), identity)
	if err != nil {
		return h.serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListSessionsResponse{Sessions: dto.SessionsFromModel(sessions)})
}

func (h *chatEndpoints) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	session, err := h.service.GetSession(r.Context(), identity, sessionID)
	if err != nil {
		return h.serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.SessionResponse{Session: dto.SessionFromModel(session)})
}

func (h *chatEndpoints) handleUpdateSession(w http.ResponseWriter, r *http.Request, sessionID string) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.UpdateSessionRequest
	if err := decodeJSON(r, &req, "update session request"); err != nil {
		return err
	}

	session, err := h.service.UpdateSession(r.Context(), identity, sessionID, chat.UpdateSessionParams{
		Status:       req.Status,
		AssigneeName: req.AssigneeName,
		AssignToMe:   req.AssignToMe,
	})
	if err != nil {
		return h.serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.SessionResponse{Session: dto.SessionFromModel(session)})
}

func (h *chatEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request, sessionID string) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := h.service.ListMessages(r.Context(), identity, sessionID, limit)
	if err != nil {
		return h.serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{Messages: dto.MessagesFromModel(result.Messages)})
}

func (h *chatEndpoints) handlePostMessage(w http.ResponseWriter, r *http.Request, sessionID string) error {
	identity, err := identityFrom(r)
	if err != nil {
		return err
	}

	var req dto.PostMessageRequest
	if err := decodeJSON(r, &req, "post message request"); err != nil {
		return err
	}

	result, err := h.service.PostMessage(r.Context(), identity, sessionID, chat.PostMessageParams{
		Content:         req.Content,
		Type:            req.Type,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		return h.serviceError(err)
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	return WriteJSON(w, status, dto.MessageResponse{Message: dto.MessageFromModel(result.Message)})
}

func (h *chatEndpoints) handleAvailability(w http.ResponseWriter, r *http.Request) error {
	availability := h.service.Availability()

	hours := make([]dto.WorkingDay, 0, len(availability.WorkingHours))
	for _, wd := range availability.WorkingHours {
		hours = append(hours, dto.WorkingDay{Day: wd.Day, Open: wd.Open, Close: wd.Close})
	}

	return WriteJSON(w, http.StatusOK, dto.Availability{
		Online:       availability.Online,
		Timezone:     availability.Timezone,
		WorkingHours: hours,
	})
}

func (h *chatEndpoints) parseSessionPath(path string) (string, string, error) {
	trimmed := strings.TrimPrefix(path, h.sessionPrefix)
	if trimmed == path {
		return "", "", &api.HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("path mismatch: %s", path)}
	}

	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if parts[0] == "" || len(parts) > 2 {
		return "", "", &api.HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("bad session path: %s", path)}
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

func identityFrom(r *http.Request) (chat.Identity, error) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return chat.Identity{}, &api.HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   errors.New("identity missing from request context"),
		}
	}
	return identity, nil
}

func (h *chatEndpoints) serviceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *chat.Error
	if !errors.As(err, &svcErr) {
		return &api.HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("chat service: %w", err),
		}
	}

	var logErr error
	if svcErr.Err != nil {
		logErr = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		logErr = svcErr
	}

	switch svcErr.Code {
	case chat.ErrorCodeValidation:
		return &api.HTTPError{StatusCode: http.StatusBadRequest, Code: string(svcErr.Code), Message: svcErr.Message, ErrorLog: logErr}
	case chat.ErrorCodeUnauthorized:
		return &api.HTTPError{StatusCode: http.StatusUnauthorized, Code: string(svcErr.Code), Message: svcErr.Message, ErrorLog: logErr}
	case chat.ErrorCodeForbidden:
		return &api.HTTPError{StatusCode: http.StatusForbidden, Code: string(svcErr.Code), Message: svcErr.Message, ErrorLog: logErr}
	case chat.ErrorCodeNotFound:
		return &api.HTTPError{StatusCode: http.StatusNotFound, Code: string(svcErr.Code), Message: svcErr.Message, ErrorLog: logErr}
	case chat.ErrorCodeConflict:
		return &api.HTTPError{StatusCode: http.StatusConflict, Code: string(svcErr.Code), Message: svcErr.Message, ErrorLog: logErr}
	default:
		return &api.HTTPError{StatusCode: http.StatusInternalServerError, Code: string(svcErr.Code), Message: "Internal server error", ErrorLog: logErr}
	}
}
