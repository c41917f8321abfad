package usecase

import (
	"testing"

	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/iamvkosarev/wellness-bot/pkg/local"
	"github.com/stretchr/testify/assert"
)

func TestWellnessDailyTipIsStablePerDay(t *testing.T) {
	wellness := NewWellnessUsecase(local.Eng)

	assert.Equal(t, WellnessTips[9], wellness.DailyTip("2026-03-01"))
	assert.Equal(t, WellnessTips[2], wellness.DailyTip("2026-03-02"))
	assert.Equal(t, wellness.DailyTip("2026-03-02"), wellness.DailyTip("2026-03-02"))
	assert.Equal(t, WellnessTips[0], wellness.DailyTip("not-a-day"))
}

func TestWellnessUsageLine(t *testing.T) {
	wellness := NewWellnessUsecase(local.Eng)

	assert.Equal(t, "Chats left today: 20/20", wellness.UsageLine(20, 20))
	assert.Equal(t, "Chats left today: 3/20\n⚠️ Only 3 chats left today", wellness.UsageLine(3, 20))
	assert.Equal(t, "Chats left today: 0/20\nDaily limit reached. Come back tomorrow!", wellness.UsageLine(0, 20))
}

func TestWellnessGreetingUsesFirstName(t *testing.T) {
	wellness := NewWellnessUsecase(local.Eng)

	assert.Equal(t, "👋 Hi Maya! How are you feeling today?", wellness.Greeting(model.User{DisplayName: "Maya Lin"}))
	assert.Equal(t, "👋 Hi sam! How are you feeling today?", wellness.Greeting(model.User{Email: "sam@example.com"}))
	assert.Equal(t, "👋 Hi User! How are you feeling today?", wellness.Greeting(model.User{}))
}

func TestWellnessFallbackIsOneOfSet(t *testing.T) {
	wellness := NewWellnessUsecase(local.Eng)

	for i := 0; i < 50; i++ {
		assert.Contains(t, FallbackReplies, wellness.Fallback())
	}
}

func TestWellnessTranslations(t *testing.T) {
	wellness := NewWellnessUsecase(local.Rus)

	assert.Equal(t, TextRedirect.Text(local.Rus), wellness.Redirect())
	assert.NotEqual(t, TextRedirect.Default, wellness.Redirect())
	assert.Equal(t, TextQuotaExhausted.Text(local.Rus), wellness.QuotaExhausted())
	assert.Equal(t, TextInitError.Text(local.Rus), wellness.InitErrorBanner())
}

func TestWellnessQuickRepliesAreCopied(t *testing.T) {
	wellness := NewWellnessUsecase(local.Eng)

	replies := wellness.QuickReplies()
	replies[0] = "changed"
	assert.NotEqual(t, "changed", wellness.QuickReplies()[0])
}

func TestIsNewDay(t *testing.T) {
	assert.True(t, IsNewDay("2026-03-01", "2026-03-02"))
	assert.True(t, IsNewDay("2026-12-31", "2027-01-01"))
	assert.False(t, IsNewDay("2026-03-02", "2026-03-02"))
	assert.False(t, IsNewDay("2026-03-02", "2026-03-01"))
}
