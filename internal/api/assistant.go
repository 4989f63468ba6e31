package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cashplan/cashplan/internal/assistant"
	"github.com/cashplan/cashplan/internal/auth"
	"github.com/cashplan/cashplan/internal/config"
	"github.com/cashplan/cashplan/internal/observability"
	"github.com/cashplan/cashplan/internal/store"
)

const (
	maxChatBodyBytes = 64 << 10
	userHeader       = "X-User-ID"
)

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func handleAssistantChat(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}

	caller, status, err := callerFromRequest(cfg, deps, r)
	if err != nil {
		writeError(r.Context(), w, status, "CALLER_REQUIRED", err.Error(), false, nil)
		return
	}

	prompt := strings.TrimSpace(r.URL.Query().Get("prompt"))
	if prompt == "" {
		var request chatRequest
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil && !errors.Is(err, io.EOF) {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
			return
		}
		prompt = strings.TrimSpace(request.Prompt)
	}
	if prompt == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}

	writeJSON(w, http.StatusOK, deps.Assistant.Chat(r.Context(), assistant.ChatRequest{
		Prompt: prompt,
		Caller: caller,
	}))
}

func handleAssistantSchema(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema describer is not configured", false, nil)
		return
	}
	if _, status, err := callerFromRequest(cfg, deps, r); err != nil {
		writeError(r.Context(), w, status, "CALLER_REQUIRED", err.Error(), false, nil)
		return
	}

	schema, err := deps.Schema.DescribeSchema(r.Context())
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "describe schema failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.Any("error", err),
			)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_UNAVAILABLE", "failed to describe schema", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schema})
}

// callerFromRequest prefers the authenticated identity. When authentication is
// not required the X-User-ID header selects the caller.
func callerFromRequest(cfg config.Config, deps Dependencies, r *http.Request) (auth.Identity, int, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Valid() {
		if identity.Name == "" {
			identity.Name = lookupDisplayName(deps, r, identity.UserID)
		}
		return identity, http.StatusOK, nil
	}
	if cfg.Auth.Required {
		return auth.Identity{}, http.StatusUnauthorized, errors.New("authenticated caller is required")
	}

	raw := strings.TrimSpace(r.Header.Get(userHeader))
	if raw == "" {
		return auth.Identity{}, http.StatusUnauthorized, fmt.Errorf("%s header is required", userHeader)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return auth.Identity{}, http.StatusBadRequest, fmt.Errorf("%s must be a positive integer", userHeader)
	}
	if deps.Users == nil {
		return auth.Identity{UserID: userID}, http.StatusOK, nil
	}

	user, err := deps.Users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.Identity{}, http.StatusUnauthorized, fmt.Errorf("user %d does not exist", userID)
		}
		return auth.Identity{}, http.StatusServiceUnavailable, errors.New("failed to load caller")
	}
	if !user.IsActive {
		return auth.Identity{}, http.StatusForbidden, fmt.Errorf("user %d is inactive", userID)
	}
	return auth.Identity{UserID: user.ID, Name: user.DisplayName()}, http.StatusOK, nil
}

func lookupDisplayName(deps Dependencies, r *http.Request, userID int64) string {
	if deps.Users == nil {
		return ""
	}
	user, err := deps.Users.GetUser(r.Context(), userID)
	if err != nil {
		return ""
	}
	return user.DisplayName()
}
