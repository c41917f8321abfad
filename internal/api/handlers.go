package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/iamvkosarev/wellness-bot/internal/usecase"
)

type TokenValidator interface {
	Validate(tokenString string) (model.User, error)
}

type HandlerDeps struct {
	Session  *usecase.SessionUsecase
	ChatLog  *usecase.ChatLogUsecase
	Wellness *usecase.WellnessUsecase
	Tokens   TokenValidator
}

type Handler struct {
	HandlerDeps
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{HandlerDeps: deps}
}

type contextKey int

const userContextKey contextKey = iota

func userFromContext(ctx context.Context) model.User {
	user, _ := ctx.Value(userContextKey).(model.User)
	return user
}

func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			user, err := h.Tokens.Validate(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		},
	)
}

type messageResponse struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func toMessageResponse(msg model.ChatMessage) messageResponse {
	return messageResponse{
		ID:        msg.ID,
		Sender:    string(msg.Sender),
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}
}

func toMessageResponses(messages []model.ChatMessage) []messageResponse {
	resp := make([]messageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, toMessageResponse(msg))
	}
	return resp
}

type sessionResponse struct {
	Day          string            `json:"day"`
	Remaining    int               `json:"remaining"`
	Limit        int               `json:"limit"`
	Usage        string            `json:"usage"`
	Greeting     string            `json:"greeting,omitempty"`
	Tip          string            `json:"tip"`
	QuickReplies []string          `json:"quick_replies"`
	History      []messageResponse `json:"history"`
}

func (h *Handler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	history := session.History()
	resp := sessionResponse{
		Day:          session.Day().String(),
		Remaining:    session.Remaining(),
		Limit:        h.Session.Quota.Limit(),
		Usage:        h.Wellness.UsageLine(session.Remaining(), h.Session.Quota.Limit()),
		Tip:          h.Wellness.DailyTip(session.Day()),
		QuickReplies: h.Wellness.QuickReplies(),
		History:      toMessageResponses(history),
	}
	if len(history) == 0 {
		resp.Greeting = h.Wellness.Greeting(session.User)
	}
	writeJSON(w, http.StatusOK, resp)
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type exchangeResponse struct {
	UserMessage      *messageResponse `json:"user_message,omitempty"`
	AssistantMessage *messageResponse `json:"assistant_message,omitempty"`
	Remaining        int              `json:"remaining"`
	Limit            int              `json:"limit"`
	ChargedDay       string           `json:"charged_day,omitempty"`
	Redirected       bool             `json:"redirected"`
	Fallback         bool             `json:"fallback"`
	QuotaExhausted   bool             `json:"quota_exhausted"`
	Notice           string           `json:"notice,omitempty"`
}

func (h *Handler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	exchange, err := h.Session.SubmitMessage(r.Context(), session, req.Text)
	h.writeExchange(w, session, exchange, err)
}

func (h *Handler) ListQuickRepliesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Wellness.QuickReplies())
}

type postQuickReplyRequest struct {
	Index int `json:"index"`
}

func (h *Handler) PostQuickReplyHandler(w http.ResponseWriter, r *http.Request) {
	var req postQuickReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	presets := h.Wellness.QuickReplies()
	if req.Index < 0 || req.Index >= len(presets) {
		http.Error(w, "Unknown quick reply", http.StatusBadRequest)
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	exchange, err := h.Session.SubmitQuickReply(r.Context(), session, presets[req.Index])
	h.writeExchange(w, session, exchange, err)
}

// HistoryStreamHandler streams the chat log of one day as server-sent events.
// Each event carries the full ordered history.
func (h *Handler) HistoryStreamHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming is not supported", http.StatusInternalServerError)
		return
	}

	day := h.Session.Clock.Today()
	if raw := r.URL.Query().Get("day"); raw != "" {
		if _, err := time.Parse(model.DayKeyLayout, raw); err != nil {
			http.Error(w, "Invalid day", http.StatusBadRequest)
			return
		}
		day = model.DayKey(raw)
	}

	sub, err := h.ChatLog.Subscribe(r.Context(), user.UserID, day)
	if err != nil {
		log.Printf("[api] failed to subscribe to history of %s: %v", user.UserID, err)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := sub.Close(); err != nil {
			log.Printf("[api] failed to close history subscription of %s: %v", user.UserID, err)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-sub.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(toMessageResponses(snapshot))
			if err != nil {
				log.Printf("[api] failed to encode history of %s: %v", user.UserID, err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: history\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if session, ok := h.Session.Session(user.UserID); ok {
		h.Session.Logout(session)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*usecase.Session, bool) {
	user := userFromContext(r.Context())
	if session, ok := h.Session.Session(user.UserID); ok {
		return session, true
	}
	session, err := h.Session.StartSession(r.Context(), user, nil)
	if err != nil {
		log.Printf("[api] failed to start session of %s: %v", user.UserID, err)
		http.Error(w, h.Wellness.InitErrorBanner(), http.StatusServiceUnavailable)
		return nil, false
	}
	return session, true
}

func (h *Handler) writeExchange(w http.ResponseWriter, session *usecase.Session, exchange usecase.Exchange, err error) {
	resp := exchangeResponse{
		Remaining:      session.Remaining(),
		Limit:          h.Session.Quota.Limit(),
		Redirected:     exchange.Redirected,
		Fallback:       exchange.Fallback,
		QuotaExhausted: exchange.QuotaExhausted,
		Notice:         exchange.Notice,
	}
	switch {
	case err == nil:
	case errors.Is(err, model.ErrQuotaExhausted):
		writeJSON(w, http.StatusTooManyRequests, resp)
		return
	case errors.Is(err, model.ErrEmptyMessage), errors.Is(err, model.ErrMessageTooLong):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, model.ErrExchangeInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, model.ErrSessionClosed):
		http.Error(w, err.Error(), http.StatusGone)
		return
	default:
		log.Printf("[api] failed to submit message of %s: %v", session.User.UserID, err)
		http.Error(w, "Failed to submit message", http.StatusInternalServerError)
		return
	}

	userMsg := toMessageResponse(exchange.UserMessage)
	assistantMsg := toMessageResponse(exchange.AssistantMessage)
	resp.UserMessage = &userMsg
	resp.AssistantMessage = &assistantMsg
	resp.Remaining = exchange.Remaining
	resp.ChargedDay = exchange.ChargedDay.String()
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}
