package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/clock"
	"github.com/iamvkosarev/wellness-bot/internal/model"
)

// ResponseSource produces one assistant reply for one user utterance.
type ResponseSource interface {
	Complete(ctx context.Context, instructions string, userText string) (string, error)
}

// SessionListener receives display updates of a session. Callbacks run on the
// goroutine that caused the change and must not block for long.
type SessionListener interface {
	OnMessageAppended(msg model.ChatMessage)
	OnTypingStarted()
	OnTypingStopped()
	OnQuotaChanged(remaining, limit int)
	OnHistoryReset(day model.DayKey)
	OnNotice(text string)
	OnErrorBanner(text string)
}

type NopListener struct{}

func (NopListener) OnMessageAppended(model.ChatMessage) {}
func (NopListener) OnTypingStarted()                    {}
func (NopListener) OnTypingStopped()                    {}
func (NopListener) OnQuotaChanged(int, int)             {}
func (NopListener) OnHistoryReset(model.DayKey)         {}
func (NopListener) OnNotice(string)                     {}
func (NopListener) OnErrorBanner(string)                {}

// Exchange describes the outcome of one SubmitMessage call.
type Exchange struct {
	UserMessage      model.ChatMessage
	AssistantMessage model.ChatMessage
	Remaining        int
	ChargedDay       model.DayKey
	Redirected       bool
	Fallback         bool
	QuotaExhausted   bool
	Notice           string
}

// Session is the per-user conversation state. All fields behind mu are owned
// by the SessionUsecase that created the session.
type Session struct {
	User model.User

	writer *ChatLogWriter

	mu        sync.Mutex
	listener  SessionListener
	day       model.DayKey
	remaining int
	awaiting  bool
	closed    bool
	history   []model.ChatMessage
	lastStamp time.Time
}

func (s *Session) Day() model.DayKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day
}

func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *Session) IsAwaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

func (s *Session) History() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *Session) SetListener(listener SessionListener) {
	if listener == nil {
		listener = NopListener{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// appendLocked adds a message to the visible history. Timestamps are forced
// to grow strictly so that history order equals append order.
func (s *Session) appendLocked(sender model.MessageSender, text string, now time.Time) model.ChatMessage {
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = now
	msg := model.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: now,
	}
	s.history = append(s.history, msg)
	return msg
}

type SessionUsecaseDeps struct {
	Quota    *QuotaUsecase
	Gate     *TopicGate
	Source   ResponseSource
	ChatLog  *ChatLogUsecase
	Wellness *WellnessUsecase
	Clock    clock.Clock
}

type SessionUsecase struct {
	SessionUsecaseDeps
	cfg config.Session

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewSessionUsecase(deps SessionUsecaseDeps, cfg config.Session) *SessionUsecase {
	return &SessionUsecase{
		SessionUsecaseDeps: deps,
		cfg:                cfg,
		sessions:           make(map[string]*Session),
	}
}

// StartSession opens (or re-attaches to) the session of an authenticated user.
// Storage failures do not fail the start: the quota falls back to the full
// limit and the history to empty.
func (u *SessionUsecase) StartSession(ctx context.Context, user model.User, listener SessionListener) (*Session, error) {
	if listener == nil {
		listener = NopListener{}
	}
	if strings.TrimSpace(user.UserID) == "" {
		listener.OnErrorBanner(u.Wellness.InitErrorBanner())
		return nil, fmt.Errorf("%w: empty user id", model.ErrInitialization)
	}

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		listener.OnErrorBanner(u.Wellness.InitErrorBanner())
		return nil, fmt.Errorf("%w: %w", model.ErrInitialization, model.ErrSessionClosed)
	}
	if existing, ok := u.sessions[user.UserID]; ok {
		u.mu.Unlock()
		return u.attach(existing, listener), nil
	}
	u.mu.Unlock()

	day := u.Clock.Today()
	remaining, err := u.Quota.Load(ctx, user.UserID, day)
	if err != nil {
		log.Printf("[session] failed to load quota of %s: %v", user.UserID, err)
		remaining = u.Quota.Limit()
	}
	history, err := u.ChatLog.History(ctx, user.UserID, day)
	if err != nil {
		log.Printf("[session] failed to load history of %s: %v", user.UserID, err)
		history = nil
	}

	session := &Session{
		User:      user,
		listener:  listener,
		day:       day,
		remaining: remaining,
		history:   history,
	}
	if len(history) > 0 {
		session.lastStamp = history[len(history)-1].Timestamp
	}

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		listener.OnErrorBanner(u.Wellness.InitErrorBanner())
		return nil, fmt.Errorf("%w: %w", model.ErrInitialization, model.ErrSessionClosed)
	}
	if existing, ok := u.sessions[user.UserID]; ok {
		u.mu.Unlock()
		return u.attach(existing, listener), nil
	}
	session.writer = u.ChatLog.NewWriter(user.UserID, u.cfg.PersistQueueSize)
	u.sessions[user.UserID] = session
	u.mu.Unlock()

	listener.OnQuotaChanged(remaining, u.Quota.Limit())
	return session, nil
}

func (u *SessionUsecase) attach(session *Session, listener SessionListener) *Session {
	session.SetListener(listener)
	listener.OnQuotaChanged(session.Remaining(), u.Quota.Limit())
	return session
}

func (u *SessionUsecase) Session(userID string) (*Session, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	session, ok := u.sessions[userID]
	return session, ok
}

// Logout tears the session down and waits for its pending messages to be
// persisted. An exchange still in flight completes but is not persisted.
func (u *SessionUsecase) Logout(session *Session) {
	u.mu.Lock()
	if current, ok := u.sessions[session.User.UserID]; ok && current == session {
		delete(u.sessions, session.User.UserID)
	}
	u.mu.Unlock()

	session.mu.Lock()
	session.closed = true
	session.mu.Unlock()
	session.writer.Close()
}

// Shutdown logs out every session and rejects new ones.
func (u *SessionUsecase) Shutdown() {
	u.mu.Lock()
	u.closed = true
	sessions := make([]*Session, 0, len(u.sessions))
	for _, session := range u.sessions {
		sessions = append(sessions, session)
	}
	u.mu.Unlock()

	for _, session := range sessions {
		u.Logout(session)
	}
}

// CheckDay resets the session when the clock moved to a later day. It reports
// whether a reset happened.
func (u *SessionUsecase) CheckDay(ctx context.Context, session *Session) bool {
	today := u.Clock.Today()

	session.mu.Lock()
	if session.closed || !IsNewDay(session.day, today) {
		session.mu.Unlock()
		return false
	}
	session.day = today
	session.history = nil
	session.remaining = u.Quota.Limit()
	listener := session.listener
	session.mu.Unlock()

	remaining, err := u.Quota.Load(ctx, session.User.UserID, today)
	if err != nil {
		log.Printf("[session] failed to load quota of %s for %s: %v", session.User.UserID, today, err)
		remaining = u.Quota.Limit()
	}
	session.mu.Lock()
	// a send may have been charged to today while the load was in flight
	if session.day == today {
		session.remaining = min(session.remaining, remaining)
	}
	remaining = session.remaining
	session.mu.Unlock()

	listener.OnHistoryReset(today)
	listener.OnQuotaChanged(remaining, u.Quota.Limit())
	return true
}

// RunDayWatcher checks every live session for a day rollover until ctx is
// done.
func (u *SessionUsecase) RunDayWatcher(ctx context.Context) {
	ticker := time.NewTicker(u.cfg.DayCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.checkAllDays(ctx)
		}
	}
}

func (u *SessionUsecase) checkAllDays(ctx context.Context) {
	u.mu.Lock()
	sessions := make([]*Session, 0, len(u.sessions))
	for _, session := range u.sessions {
		sessions = append(sessions, session)
	}
	u.mu.Unlock()

	for _, session := range sessions {
		if u.CheckDay(ctx, session) {
			log.Printf("[session] day rolled over for %s", session.User.UserID)
		}
	}
}

func (u *SessionUsecase) SubmitQuickReply(ctx context.Context, session *Session, preset string) (Exchange, error) {
	return u.SubmitMessage(ctx, session, preset)
}

// SubmitMessage runs one exchange: quota, model call, topic gate and
// persistence. Request errors leave the session untouched. Once the user
// message is accepted, the exchange always ends with an assistant message.
func (u *SessionUsecase) SubmitMessage(ctx context.Context, session *Session, text string) (Exchange, error) {
	u.CheckDay(ctx, session)

	text = strings.TrimSpace(text)
	if text == "" {
		return Exchange{}, model.ErrEmptyMessage
	}
	if u.cfg.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > u.cfg.MaxMessageRunes {
		return Exchange{}, model.ErrMessageTooLong
	}

	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return Exchange{}, model.ErrSessionClosed
	}
	if session.awaiting {
		session.mu.Unlock()
		return Exchange{}, model.ErrExchangeInFlight
	}
	listener := session.listener
	if session.remaining <= 0 {
		session.mu.Unlock()
		notice := u.Wellness.QuotaExhausted()
		listener.OnNotice(notice)
		return Exchange{QuotaExhausted: true, Notice: notice}, model.ErrQuotaExhausted
	}
	session.awaiting = true
	day := session.day
	userMsg := session.appendLocked(model.MessageSenderUser, text, u.Clock.Now())
	session.mu.Unlock()

	listener.OnMessageAppended(userMsg)
	session.writer.Enqueue(day, userMsg)
	listener.OnTypingStarted()

	exchange := Exchange{
		UserMessage: userMsg,
		ChargedDay:  day,
	}

	consumption, err := u.Quota.TryConsume(ctx, session.User.UserID, day)
	if err != nil {
		log.Printf("[session] failed to consume quota of %s: %v", session.User.UserID, err)
		consumption = u.consumeLocally(session, day)
	}
	remaining := u.applyConsumption(session, consumption)
	listener.OnQuotaChanged(remaining, u.Quota.Limit())
	exchange.Remaining = remaining

	var reply string
	if !consumption.OK {
		reply = u.Wellness.QuotaExhausted()
		exchange.QuotaExhausted = true
	} else {
		reply, exchange.Fallback = u.complete(ctx, session, text)
		reply = u.Gate.FilterResponse(text, reply)
		exchange.Redirected = !u.Gate.IsInScope(text)
	}

	listener.OnTypingStopped()

	session.mu.Lock()
	replyDay := session.day
	assistantMsg := session.appendLocked(model.MessageSenderAssistant, reply, u.Clock.Now())
	session.awaiting = false
	session.mu.Unlock()

	listener.OnMessageAppended(assistantMsg)
	session.writer.Enqueue(replyDay, assistantMsg)

	exchange.AssistantMessage = assistantMsg
	return exchange, nil
}

func (u *SessionUsecase) complete(ctx context.Context, session *Session, text string) (string, bool) {
	if u.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.ModelTimeout)
		defer cancel()
	}
	reply, err := u.Source.Complete(ctx, u.Wellness.SystemPrompt(), text)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrModelRateLimited):
			log.Printf("[session] model rate limited for %s: %v", session.User.UserID, err)
		default:
			log.Printf("[session] model failed for %s: %v", session.User.UserID, err)
		}
		return u.Wellness.Fallback(), true
	}
	return reply, false
}

// consumeLocally decides a consumption from the in-memory count when the
// quota storage is unreachable.
func (u *SessionUsecase) consumeLocally(session *Session, day model.DayKey) Consumption {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.day != day {
		return Consumption{OK: true, Remaining: u.Quota.Limit() - 1, Day: day}
	}
	if session.remaining <= 0 {
		return Consumption{OK: false, Remaining: 0, Day: day}
	}
	return Consumption{OK: true, Remaining: session.remaining - 1, Day: day}
}

// applyConsumption stores the remaining count when it belongs to the
// session's current day and returns the count to display.
func (u *SessionUsecase) applyConsumption(session *Session, consumption Consumption) int {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.day == consumption.Day {
		session.remaining = consumption.Remaining
	}
	return session.remaining
}
