package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/sourcegraph/conc/pool"
)

const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandQuota  = "quota"
	CommandLogout = "logout"

	quickReplyDataPrefix = "qr:"
	maxButtonsInRow      = 2
)

type TelegramUsecaseDeps struct {
	User     *UserUsecase
	Session  *SessionUsecase
	Wellness *WellnessUsecase
	Bot      *api.BotAPI
}

type TelegramUsecase struct {
	TelegramUsecaseDeps
	cfg config.Telegram
}

func NewTelegramUsecase(cfg config.Telegram, deps TelegramUsecaseDeps) (*TelegramUsecase, error) {
	_, err := deps.Bot.Request(
		api.NewSetMyCommands(
			[]api.BotCommand{
				{
					Command:     CommandHelp,
					Description: "Get help",
				},
				{
					Command:     CommandQuota,
					Description: "Show chats left today",
				},
				{
					Command:     CommandLogout,
					Description: "End the session",
				},
			}...,
		),
	)
	if err != nil {
		return nil, err
	}

	return &TelegramUsecase{
		TelegramUsecaseDeps: deps,
		cfg:                 cfg,
	}, nil
}

// Run handles updates on a bounded pool until ctx is done.
func (t *TelegramUsecase) Run(ctx context.Context) error {
	u := api.NewUpdate(0)
	u.Timeout = 60

	updates := t.Bot.GetUpdatesChan(u)
	p := pool.New().WithMaxGoroutines(max(t.cfg.MaxParallelUpdate, 1))
	defer p.Wait()

	for {
		select {
		case <-ctx.Done():
			t.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.Go(
				func() {
					t.handleUpdate(ctx, update)
				},
			)
		}
	}
}

func (t *TelegramUsecase) handleUpdate(ctx context.Context, update api.Update) {
	if update.Message != nil {
		if err := t.handleMessage(ctx, update); err != nil {
			log.Printf("[telegram] error handling message: %v", err)
		}
	}
	if update.CallbackQuery != nil {
		if err := t.handleCallbackQuery(ctx, update); err != nil {
			log.Printf("[telegram] error handling callback query: %v", err)
		}
	}
}

func (t *TelegramUsecase) handleCallbackQuery(ctx context.Context, update api.Update) error {
	query := update.CallbackQuery
	if _, err := t.Bot.Request(api.NewCallback(query.ID, "")); err != nil {
		return fmt.Errorf("failed to request callback: %w", err)
	}
	if query.Message == nil {
		return nil
	}
	chatID := query.Message.Chat.ID

	preset, ok := parseQuickReplyData(query.Data, t.Wellness.QuickReplies())
	if !ok {
		return nil
	}
	session, err := t.session(ctx, chatID, query.From)
	if err != nil {
		return err
	}
	// Telegram does not echo a pressed button, so the preset is shown first.
	t.sendMessageAndHandleErr(chatID, "💬 "+preset)
	_, err = t.Session.SubmitQuickReply(ctx, session, preset)
	return t.handleSubmitError(chatID, err)
}

func (t *TelegramUsecase) handleMessage(ctx context.Context, update api.Update) error {
	chatID := update.Message.Chat.ID

	if update.Message.IsCommand() {
		return t.handleCommand(ctx, update.Message)
	}
	if update.Message.Text == "" {
		t.sendMessageAndHandleErr(chatID, t.Wellness.Text(TextUnsupported))
		return nil
	}

	session, err := t.session(ctx, chatID, update.Message.From)
	if err != nil {
		return err
	}
	_, err = t.Session.SubmitMessage(ctx, session, update.Message.Text)
	return t.handleSubmitError(chatID, err)
}

func (t *TelegramUsecase) handleCommand(ctx context.Context, msg *api.Message) error {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case CommandStart:
		session, err := t.session(ctx, chatID, msg.From)
		if err != nil {
			return err
		}
		t.sendWelcome(chatID, session)
	case CommandHelp:
		t.sendMessageAndHandleErr(chatID, t.Wellness.Text(TextCommandHelp))
	case CommandQuota:
		session, err := t.session(ctx, chatID, msg.From)
		if err != nil {
			return err
		}
		t.sendMessageAndHandleErr(chatID, t.Wellness.UsageLine(session.Remaining(), t.Session.Quota.Limit()))
	case CommandLogout:
		user, err := t.user(ctx, chatID, msg.From)
		if err != nil {
			return err
		}
		if session, ok := t.Session.Session(user.UserID); ok {
			t.Session.Logout(session)
		}
		t.sendMessageAndHandleErr(chatID, t.Wellness.Text(TextLoggedOut))
	default:
		t.sendMessageAndHandleErr(chatID, t.Wellness.Text(TextCommandUnknown))
	}
	return nil
}

func (t *TelegramUsecase) handleSubmitError(chatID int64, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrQuotaExhausted), errors.Is(err, model.ErrEmptyMessage):
		// the listener already showed the notice
		return nil
	case errors.Is(err, model.ErrExchangeInFlight):
		t.sendMessageAndHandleErr(chatID, t.Wellness.Text(TextExchangeInFlight))
		return nil
	case errors.Is(err, model.ErrMessageTooLong):
		t.sendMessageAndHandleErr(chatID, t.Wellness.Text(TextMessageTooLong))
		return nil
	default:
		t.sendMessageAndHandleErr(chatID, t.Wellness.Text(TextServerError))
		return fmt.Errorf("failed to submit message: %w", err)
	}
}

func (t *TelegramUsecase) sendWelcome(chatID int64, session *Session) {
	var sb strings.Builder
	if len(session.History()) == 0 {
		sb.WriteString(t.Wellness.Greeting(session.User))
		sb.WriteString("\n\n")
	}
	sb.WriteString(t.Wellness.DailyTip(session.Day()))
	sb.WriteString("\n\n")
	sb.WriteString(t.Wellness.UsageLine(session.Remaining(), t.Session.Quota.Limit()))

	msg := api.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = quickReplyKeyboard(t.Wellness.QuickReplies())
	if _, err := t.Bot.Send(msg); err != nil {
		log.Printf("[telegram] failed to send welcome: %v", err)
	}
}

func (t *TelegramUsecase) user(ctx context.Context, chatID int64, from *api.User) (model.User, error) {
	var displayName string
	if from != nil {
		displayName = strings.TrimSpace(from.FirstName + " " + from.LastName)
	}
	user, err := t.User.GetUserInfoForTelegramUser(ctx, chatID, displayName)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, t.Wellness.Text(TextServerError))
		return model.User{}, fmt.Errorf("failed to get user info for telegram user: %w", err)
	}
	return user, nil
}

func (t *TelegramUsecase) session(ctx context.Context, chatID int64, from *api.User) (*Session, error) {
	user, err := t.user(ctx, chatID, from)
	if err != nil {
		return nil, err
	}
	if session, ok := t.Session.Session(user.UserID); ok {
		return session, nil
	}
	session, err := t.Session.StartSession(ctx, user, &telegramListener{telegram: t, chatID: chatID})
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return session, nil
}

func (t *TelegramUsecase) sendMessageAndHandleErr(chatID int64, message string) api.Message {
	msg, err := t.sendMessage(chatID, message)
	if err != nil {
		log.Printf("[telegram] failed to send new message to bot: %v", err)
	}
	return msg
}

func (t *TelegramUsecase) sendMessage(chatID int64, message string) (api.Message, error) {
	return t.sendToBot(api.NewMessage(chatID, message))
}

func (t *TelegramUsecase) sendToBot(c api.Chattable) (api.Message, error) {
	return t.Bot.Send(c)
}

func quickReplyKeyboard(presets []string) api.InlineKeyboardMarkup {
	inlineRows := make([][]api.InlineKeyboardButton, 0)
	inlineButtons := make([]api.InlineKeyboardButton, 0)
	for i, preset := range presets {
		if len(inlineButtons) == maxButtonsInRow {
			inlineRows = append(inlineRows, inlineButtons)
			inlineButtons = make([]api.InlineKeyboardButton, 0)
		}
		inlineButtons = append(
			inlineButtons, api.NewInlineKeyboardButtonData(preset, quickReplyDataPrefix+strconv.Itoa(i)),
		)
	}
	if len(inlineButtons) > 0 {
		inlineRows = append(inlineRows, inlineButtons)
	}
	return api.NewInlineKeyboardMarkup(inlineRows...)
}

func parseQuickReplyData(data string, presets []string) (string, bool) {
	raw, ok := strings.CutPrefix(data, quickReplyDataPrefix)
	if !ok {
		return "", false
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 || index >= len(presets) {
		return "", false
	}
	return presets[index], true
}

// telegramListener renders session updates into one telegram chat. User
// messages are not echoed since telegram already shows them.
type telegramListener struct {
	telegram *TelegramUsecase
	chatID   int64
}

func (l *telegramListener) OnMessageAppended(msg model.ChatMessage) {
	if msg.Sender != model.MessageSenderAssistant {
		return
	}
	l.telegram.sendMessageAndHandleErr(l.chatID, msg.Text)
}

func (l *telegramListener) OnTypingStarted() {
	if _, err := l.telegram.Bot.Request(api.NewChatAction(l.chatID, api.ChatTyping)); err != nil {
		log.Printf("[telegram] failed to send new action to bot: %v", err)
	}
}

func (l *telegramListener) OnTypingStopped() {}

func (l *telegramListener) OnQuotaChanged(remaining, limit int) {
	if l.telegram.Wellness.IsLowQuota(remaining) {
		l.telegram.sendMessageAndHandleErr(l.chatID, l.telegram.Wellness.UsageLine(remaining, limit))
	}
}

func (l *telegramListener) OnHistoryReset(day model.DayKey) {
	l.telegram.sendMessageAndHandleErr(l.chatID, l.telegram.Wellness.DailyTip(day))
}

func (l *telegramListener) OnNotice(text string) {
	l.telegram.sendMessageAndHandleErr(l.chatID, text)
}

func (l *telegramListener) OnErrorBanner(text string) {
	l.telegram.sendMessageAndHandleErr(l.chatID, text)
}
