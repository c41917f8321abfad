package usecase

import (
	"math/rand/v2"

	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/iamvkosarev/wellness-bot/pkg/local"
)

const lowQuotaWarningThreshold = 3

var (
	TextRedirect = local.NewSet(
		"⚠️ I'm here to support your wellbeing 💙 Let's talk about mindfulness, stress, or positivity. How are you feeling right now?",
		local.NewTrans(
			local.Rus,
			"⚠️ Я здесь, чтобы поддержать ваше благополучие 💙 Давайте поговорим об осознанности, стрессе или позитиве. Как вы себя чувствуете сейчас?",
		),
	)
	TextQuotaExhausted = local.NewSet(
		"⚠️ You've reached your daily chat limit. Come back tomorrow for more support! 💙 Take care of yourself in the meantime. 🌟",
		local.NewTrans(
			local.Rus,
			"⚠️ Вы достигли дневного лимита сообщений. Возвращайтесь завтра за новой поддержкой! 💙 Берегите себя. 🌟",
		),
	)
	TextGreeting = local.NewSet(
		"👋 Hi %s! How are you feeling today?",
		local.NewTrans(local.Rus, "👋 Привет, %s! Как вы себя чувствуете сегодня?"),
	)
	TextInitError = local.NewSet(
		"Failed to initialize chat. Please refresh the page.",
		local.NewTrans(local.Rus, "Не удалось запустить чат. Пожалуйста, обновите страницу."),
	)
	TextUsage = local.NewSet(
		"Chats left today: %d/%d",
		local.NewTrans(local.Rus, "Осталось сообщений сегодня: %d/%d"),
	)
	TextLowQuota = local.NewSet(
		"⚠️ Only %d chats left today",
		local.NewTrans(local.Rus, "⚠️ Сегодня осталось всего %d сообщений"),
	)
	TextServerError = local.NewSet(
		"Something wrong with me. Try later 💙",
		local.NewTrans(local.Rus, "Что-то пошло не так. Попробуйте позже 💙"),
	)
	TextCommandHelp = local.NewSet(
		"Tell me how you are feeling, or pick one of the quick replies below. Use /quota to see how many chats are left today and /logout to end the session.",
		local.NewTrans(
			local.Rus,
			"Расскажите, как вы себя чувствуете, или выберите один из быстрых ответов ниже. Команда /quota покажет, сколько сообщений осталось сегодня, а /logout завершит сессию.",
		),
	)
	TextCommandUnknown = local.NewSet(
		"I don't know that command",
		local.NewTrans(local.Rus, "Я не знаю такой команды"),
	)
	TextExchangeInFlight = local.NewSet(
		"I'm still thinking about your last message 💭",
		local.NewTrans(local.Rus, "Я ещё думаю над вашим прошлым сообщением 💭"),
	)
	TextMessageTooLong = local.NewSet(
		"That message is a bit too long for me. Could you say it in fewer words? 🌸",
		local.NewTrans(local.Rus, "Это сообщение слишком длинное для меня. Можно сказать то же самое короче? 🌸"),
	)
	TextLoggedOut = local.NewSet(
		"Take care 💙 Send /start whenever you want to talk again.",
		local.NewTrans(local.Rus, "Берегите себя 💙 Отправьте /start, когда захотите поговорить снова."),
	)
	TextUnsupported = local.NewSet(
		"I can only read text messages for now 🌱",
		local.NewTrans(local.Rus, "Пока я умею читать только текстовые сообщения 🌱"),
	)
	TextLimitReached = local.NewSet(
		"Daily limit reached. Come back tomorrow!",
		local.NewTrans(local.Rus, "Дневной лимит исчерпан. Возвращайтесь завтра!"),
	)
)

var FallbackReplies = []string{
	"I'm here to listen and support you 💙 Can you tell me more about how you're feeling?",
	"Thank you for sharing with me 🌟 What's been on your mind lately?",
	"I appreciate you reaching out 💪 How can I help support your wellbeing today?",
	"That sounds important to you 🧘 Let's explore what's been affecting your mood recently.",
	"I'm glad you're here 🌈 What would help you feel more at peace right now?",
	"I understand, and I'm here for you 💙 Tell me more about what you're experiencing.",
	"Your feelings are valid 🌸 How has your day been treating you?",
	"I hear you 💫 What kind of support would be most helpful right now?",
}

var WellnessTips = []string{
	"💡 Today's Tip: Try 5 minutes of deep breathing for a calmer mind.",
	"🌱 Today's Tip: Take a moment to appreciate something beautiful around you.",
	"💪 Today's Tip: Small acts of kindness can boost your mood instantly.",
	"🧘 Today's Tip: Practice gratitude - name three things you're thankful for.",
	"🌈 Today's Tip: Remember, progress is more important than perfection.",
	"🌸 Today's Tip: Take breaks between tasks to recharge your energy.",
	"✨ Today's Tip: Connect with nature, even if it's just looking outside.",
	"💙 Today's Tip: Be gentle with yourself - you're doing your best.",
	"🎯 Today's Tip: Focus on what you can control, let go of what you can't.",
	"🌟 Today's Tip: Celebrate small wins - they add up to big achievements.",
}

var QuickReplies = []string{
	"I'm feeling stressed 😟",
	"Help me relax 🧘",
	"I need some motivation 💪",
	"I can't sleep well 😴",
	"Teach me a breathing exercise 🌬️",
}

const SystemPrompt = `You are a warm, empathetic, and supportive wellness companion. Your personality traits:

PERSONALITY:
- Extremely friendly and human-like
- Use emojis naturally and frequently
- Supportive and encouraging tone
- Never judgmental, always understanding
- Speak like a caring friend who genuinely cares

RESPONSE STYLE:
- Keep responses concise but meaningful (2-4 sentences max)
- Always include relevant emojis
- End some responses with motivational phrases like "💪 You got this!", "🌈 Small steps matter.", "🧘 Remember to breathe."

TOPICS YOU HANDLE:
✅ Mental health support and coping strategies
✅ Stress management and relaxation techniques
✅ Mindfulness and meditation guidance
✅ Positive thinking and motivation
✅ Sleep and wellness tips
✅ Breathing exercises and grounding techniques
✅ Emotional support and validation
✅ Goal setting and personal growth

BOUNDARIES:
❌ If the user asks about unrelated topics (weather, news, technical help, etc.), politely redirect: "⚠️ I'm here to support your wellbeing 💙 Let's talk about mindfulness, stress, or positivity."
❌ Never provide medical diagnosis or replace professional therapy
❌ Always suggest professional help for serious mental health concerns

Remember: you are a compassionate companion on their wellness journey. Make every interaction feel warm, personal, and supportive.`

// WellnessUsecase owns the fixed, user-visible texts of the assistant.
type WellnessUsecase struct {
	language local.Language
}

func NewWellnessUsecase(language local.Language) *WellnessUsecase {
	return &WellnessUsecase{
		language: language,
	}
}

func (w *WellnessUsecase) Language() local.Language {
	return w.language
}

// Text renders one of the fixed text sets in the configured language.
func (w *WellnessUsecase) Text(set local.TextSet) string {
	return set.Text(w.language)
}

func (w *WellnessUsecase) Redirect() string {
	return TextRedirect.Text(w.language)
}

func (w *WellnessUsecase) QuotaExhausted() string {
	return TextQuotaExhausted.Text(w.language)
}

func (w *WellnessUsecase) InitErrorBanner() string {
	return TextInitError.Text(w.language)
}

func (w *WellnessUsecase) SystemPrompt() string {
	return SystemPrompt
}

func (w *WellnessUsecase) Greeting(user model.User) string {
	return TextGreeting.Format(w.language, user.FirstName())
}

// UsageLine renders the remaining quota, with a warning once it runs low.
func (w *WellnessUsecase) UsageLine(remaining, limit int) string {
	line := TextUsage.Format(w.language, remaining, limit)
	switch {
	case remaining <= 0:
		return line + "\n" + TextLimitReached.Text(w.language)
	case remaining <= lowQuotaWarningThreshold:
		return line + "\n" + TextLowQuota.Format(w.language, remaining)
	default:
		return line
	}
}

// IsLowQuota reports whether the usage line should be shown unprompted.
func (w *WellnessUsecase) IsLowQuota(remaining int) bool {
	return remaining <= lowQuotaWarningThreshold
}

func (w *WellnessUsecase) Fallback() string {
	return FallbackReplies[rand.IntN(len(FallbackReplies))]
}

func (w *WellnessUsecase) QuickReplies() []string {
	out := make([]string, len(QuickReplies))
	copy(out, QuickReplies)
	return out
}

// DailyTip picks the same tip for everyone on a given day.
func (w *WellnessUsecase) DailyTip(day model.DayKey) string {
	date, err := day.Time()
	if err != nil {
		return WellnessTips[0]
	}
	hash := int64(dayHash(date.Format("Mon Jan 02 2006")))
	if hash < 0 {
		hash = -hash
	}
	return WellnessTips[hash%int64(len(WellnessTips))]
}

// dayHash is the 31-multiplier string hash with 32-bit wraparound.
func dayHash(s string) int32 {
	var hash int32
	for _, r := range s {
		hash = hash<<5 - hash + int32(r)
	}
	return hash
}

// IsNewDay reports whether next lies on a later calendar day than prev.
func IsNewDay(prev, next model.DayKey) bool {
	return next > prev
}
