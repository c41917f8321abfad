package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/auth"
	"github.com/iamvkosarev/wellness-bot/internal/clock"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	in_memory "github.com/iamvkosarev/wellness-bot/internal/storage/in-memory"
	"github.com/iamvkosarev/wellness-bot/internal/usecase"
	"github.com/iamvkosarev/wellness-bot/pkg/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReply = "Take a slow breath with me 🧘"

type staticSource struct{}

func (staticSource) Complete(context.Context, string, string) (string, error) {
	return testReply, nil
}

type testAPI struct {
	server   *httptest.Server
	token    string
	session  *usecase.SessionUsecase
	wellness *usecase.WellnessUsecase
}

func newTestAPI(t *testing.T, limit int) *testAPI {
	t.Helper()
	wellness := usecase.NewWellnessUsecase(local.Eng)
	chatLog := usecase.NewChatLogUsecase(usecase.ChatLogUsecaseDeps{ChatLogStorage: in_memory.NewChatLogStorage()})
	session := usecase.NewSessionUsecase(
		usecase.SessionUsecaseDeps{
			Quota: usecase.NewQuotaUsecase(
				usecase.QuotaUsecaseDeps{QuotaStorage: in_memory.NewQuotaStorage()},
				config.Quota{DailyLimit: limit},
			),
			Gate:     usecase.NewTopicGate(config.Gate{}, wellness.Redirect()),
			Source:   staticSource{},
			ChatLog:  chatLog,
			Wellness: wellness,
			Clock:    clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		},
		config.Session{MaxMessageRunes: 1000, PersistQueueSize: 16, DayCheckInterval: time.Minute},
	)
	tokens, err := auth.NewJWT("secret")
	require.NoError(t, err)
	token, err := tokens.Generate(model.User{UserID: "u1", DisplayName: "Maya Lin"})
	require.NoError(t, err)

	server := httptest.NewServer(
		NewRouter(
			NewHandler(
				HandlerDeps{
					Session:  session,
					ChatLog:  chatLog,
					Wellness: wellness,
					Tokens:   tokens,
				},
			),
		),
	)
	t.Cleanup(
		func() {
			server.Close()
			session.Shutdown()
		},
	)
	return &testAPI{server: server, token: token, session: session, wellness: wellness}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	a := newTestAPI(t, 20)

	resp, err := http.Get(a.server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthenticationIsRequired(t *testing.T) {
	a := newTestAPI(t, 20)

	resp, err := http.Post(a.server.URL+"/api/session", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	a.token = "broken"
	resp = a.do(t, http.MethodPost, "/api/session", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStartSession(t *testing.T) {
	a := newTestAPI(t, 20)

	resp := a.do(t, http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[sessionResponse](t, resp)

	assert.Equal(t, "2026-03-01", body.Day)
	assert.Equal(t, 20, body.Remaining)
	assert.Equal(t, 20, body.Limit)
	assert.Equal(t, "Chats left today: 20/20", body.Usage)
	assert.Contains(t, body.Greeting, "Maya")
	assert.Equal(t, a.wellness.DailyTip("2026-03-01"), body.Tip)
	assert.Len(t, body.QuickReplies, len(usecase.QuickReplies))
	assert.Empty(t, body.History)
}

func TestPostMessage(t *testing.T) {
	a := newTestAPI(t, 20)

	resp := a.do(t, http.MethodPost, "/api/messages", postMessageRequest{Text: "I feel stressed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[exchangeResponse](t, resp)

	require.NotNil(t, body.UserMessage)
	require.NotNil(t, body.AssistantMessage)
	assert.Equal(t, "I feel stressed", body.UserMessage.Text)
	assert.Equal(t, "user", body.UserMessage.Sender)
	assert.Equal(t, testReply, body.AssistantMessage.Text)
	assert.Equal(t, "assistant", body.AssistantMessage.Sender)
	assert.Equal(t, 19, body.Remaining)
	assert.Equal(t, "2026-03-01", body.ChargedDay)

	resp = a.do(t, http.MethodPost, "/api/session", nil)
	session := decode[sessionResponse](t, resp)
	assert.Len(t, session.History, 2)
	assert.Empty(t, session.Greeting)
}

func TestPostMessageRejectsInvalidText(t *testing.T) {
	a := newTestAPI(t, 20)

	resp := a.do(t, http.MethodPost, "/api/messages", postMessageRequest{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/messages", postMessageRequest{Text: strings.Repeat("я", 1001)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/messages", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+a.token)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestPostMessageQuotaExhausted(t *testing.T) {
	a := newTestAPI(t, 1)

	resp := a.do(t, http.MethodPost, "/api/messages", postMessageRequest{Text: "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/messages", postMessageRequest{Text: "hello again"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decode[exchangeResponse](t, resp)

	assert.True(t, body.QuotaExhausted)
	assert.Equal(t, a.wellness.QuotaExhausted(), body.Notice)
	assert.Equal(t, 0, body.Remaining)
	assert.Nil(t, body.AssistantMessage)
}

func TestQuickReplies(t *testing.T) {
	a := newTestAPI(t, 20)

	resp := a.do(t, http.MethodGet, "/api/quick-replies", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, usecase.QuickReplies, decode[[]string](t, resp))

	resp = a.do(t, http.MethodPost, "/api/quick-replies", postQuickReplyRequest{Index: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[exchangeResponse](t, resp)
	require.NotNil(t, body.UserMessage)
	assert.Equal(t, usecase.QuickReplies[1], body.UserMessage.Text)

	resp = a.do(t, http.MethodPost, "/api/quick-replies", postQuickReplyRequest{Index: 42})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	a := newTestAPI(t, 20)
	resp := a.do(t, http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok := a.session.Session("u1")
	assert.False(t, ok)
}

func TestHistoryStream(t *testing.T) {
	a := newTestAPI(t, 20)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.server.URL+"/api/history/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+a.token)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	events := make(chan []messageResponse)
	go func() {
		defer close(events)
		reader := bufio.NewReader(stream.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
			if !ok {
				continue
			}
			var snapshot []messageResponse
			if json.Unmarshal([]byte(data), &snapshot) != nil {
				return
			}
			select {
			case events <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()

	assert.Empty(t, <-events)

	resp := a.do(t, http.MethodPost, "/api/messages", postMessageRequest{Text: "I feel stressed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var last []messageResponse
	for snapshot := range events {
		last = snapshot
		if len(snapshot) == 2 {
			break
		}
	}
	require.Len(t, last, 2)
	assert.Equal(t, "I feel stressed", last[0].Text)
	assert.Equal(t, testReply, last[1].Text)
}

func TestHistoryStreamRejectsBadDay(t *testing.T) {
	a := newTestAPI(t, 20)

	resp := a.do(t, http.MethodGet, "/api/history/stream?day=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
