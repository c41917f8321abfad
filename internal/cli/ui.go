package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/iamvkosarev/wellness-bot/internal/usecase"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1).
			MarginBottom(1)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1).
			Width(72)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	tipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Italic(true)

	usageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	typingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Italic(true)
)

// terminalListener prints session updates. User messages are only printed
// when they are replayed, since the prompt already shows what was typed.
type terminalListener struct {
	mu       sync.Mutex
	out      io.Writer
	wellness *usecase.WellnessUsecase
}

func newTerminalListener(out io.Writer, wellness *usecase.WellnessUsecase) *terminalListener {
	return &terminalListener{
		out:      out,
		wellness: wellness,
	}
}

func (l *terminalListener) println(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, s)
}

func (l *terminalListener) OnMessageAppended(msg model.ChatMessage) {
	if msg.Sender != model.MessageSenderAssistant {
		return
	}
	l.println(renderMessage(msg))
}

func (l *terminalListener) OnTypingStarted() {
	l.println(typingStyle.Render("Wellness companion is typing…"))
}

func (l *terminalListener) OnTypingStopped() {}

func (l *terminalListener) OnQuotaChanged(remaining, limit int) {
	if l.wellness.IsLowQuota(remaining) {
		l.println(usageStyle.Render(l.wellness.UsageLine(remaining, limit)))
	}
}

func (l *terminalListener) OnHistoryReset(day model.DayKey) {
	l.println(titleStyle.Render("🌅 A new day: " + day.String()))
	l.println(tipStyle.Render(l.wellness.DailyTip(day)))
}

func (l *terminalListener) OnNotice(text string) {
	l.println(noticeStyle.Render(text))
}

func (l *terminalListener) OnErrorBanner(text string) {
	l.println(errorStyle.Render(text))
}

func renderMessage(msg model.ChatMessage) string {
	stamp := msg.Timestamp.Format("15:04")
	if msg.Sender == model.MessageSenderUser {
		return userStyle.Render(fmt.Sprintf("you · %s › %s", stamp, msg.Text))
	}
	return assistantStyle.Render(fmt.Sprintf("%s\n%s", msg.Text, usageStyle.Render(stamp)))
}

// renderWelcome replays the day's history, or greets the user when it is
// empty, followed by the daily tip and the usage line.
func renderWelcome(out io.Writer, session *usecase.Session, wellness *usecase.WellnessUsecase, limit int) {
	fmt.Fprintln(out, titleStyle.Render("🌿 Wellness companion"))
	history := session.History()
	if len(history) == 0 {
		fmt.Fprintln(out, assistantStyle.Render(wellness.Greeting(session.User)))
	}
	for _, msg := range history {
		fmt.Fprintln(out, renderMessage(msg))
	}
	fmt.Fprintln(out, tipStyle.Render(wellness.DailyTip(session.Day())))
	fmt.Fprintln(out, usageStyle.Render(wellness.UsageLine(session.Remaining(), limit)))
	fmt.Fprintln(out, usageStyle.Render("Type /quick for quick replies, /quota for today's usage, /quit to leave."))
}
