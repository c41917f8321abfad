package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/wellness-bot/config"
	httpapi "github.com/iamvkosarev/wellness-bot/internal/api"
	"github.com/iamvkosarev/wellness-bot/internal/auth"
	"github.com/iamvkosarev/wellness-bot/internal/clock"
	in_memory "github.com/iamvkosarev/wellness-bot/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/wellness-bot/internal/storage/key-value"
	"github.com/iamvkosarev/wellness-bot/internal/storage/sqlite"
	"github.com/iamvkosarev/wellness-bot/internal/usecase"
	"github.com/iamvkosarev/wellness-bot/pkg/local"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"
)

const shutdownTimeout = 30 * time.Second

// App holds the usecases shared by every surface.
type App struct {
	Session  *usecase.SessionUsecase
	ChatLog  *usecase.ChatLogUsecase
	User     *usecase.UserUsecase
	Wellness *usecase.WellnessUsecase

	closers []func() error
}

type storages struct {
	user    usecase.UserStorage
	quota   usecase.QuotaStorage
	chatLog usecase.ChatLogStorage
	close   func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	clk, err := clock.LoadSystem(cfg.Session.Timezone)
	if err != nil {
		return nil, err
	}

	st, err := newStorages(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.close)

	source, err := newResponseSource(ctx, cfg, a)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Wellness = usecase.NewWellnessUsecase(local.ParseLanguage(cfg.Language))
	a.ChatLog = usecase.NewChatLogUsecase(
		usecase.ChatLogUsecaseDeps{
			ChatLogStorage: st.chatLog,
		},
	)
	a.User = usecase.NewUserUsecase(
		usecase.UserUsecaseDeps{
			UserStorage: st.user,
		},
	)
	a.Session = usecase.NewSessionUsecase(
		usecase.SessionUsecaseDeps{
			Quota: usecase.NewQuotaUsecase(
				usecase.QuotaUsecaseDeps{
					QuotaStorage: st.quota,
				}, cfg.Quota,
			),
			Gate:     usecase.NewTopicGate(cfg.Gate, a.Wellness.Redirect()),
			Source:   source,
			ChatLog:  a.ChatLog,
			Wellness: a.Wellness,
			Clock:    clk,
		}, cfg.Session,
	)
	return a, nil
}

func newStorages(ctx context.Context, cfg *config.Config) (storages, error) {
	switch cfg.Storage.Backend {
	case config.StorageRedis:
		rdb := redis.NewClient(
			&redis.Options{
				Addr:     cfg.Redis.Endpoint,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
		)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return storages{}, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Printf("[app] using redis storage at %s", cfg.Redis.Endpoint)
		return storages{
			user:    key_value.NewUserStorage(rdb),
			quota:   key_value.NewQuotaStorage(rdb),
			chatLog: key_value.NewChatLogStorage(rdb),
			close:   rdb.Close,
		}, nil
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return storages{}, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		log.Printf("[app] using sqlite storage at %s", cfg.SQLite.Path)
		return storages{
			user:    store,
			quota:   store,
			chatLog: store,
			close:   store.Close,
		}, nil
	default:
		chatLog := in_memory.NewChatLogStorage()
		log.Printf("[app] using in-memory storage, nothing survives a restart")
		return storages{
			user:    in_memory.NewUserStorage(),
			quota:   in_memory.NewQuotaStorage(),
			chatLog: chatLog,
			close:   chatLog.Close,
		}, nil
	}
}

func newResponseSource(ctx context.Context, cfg *config.Config, a *App) (usecase.ResponseSource, error) {
	switch cfg.Session.Provider {
	case config.ProviderGemini:
		gemini, err := usecase.NewGeminiUsecase(ctx, cfg.Gemini, cfg.Decoding)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		a.closers = append(a.closers, gemini.Close)
		return gemini, nil
	default:
		return usecase.NewOpenAIUsecase(cfg.OpenAI, cfg.Decoding), nil
	}
}

// Close logs out every session, flushing pending chat log writes, and then
// releases storage and model clients.
func (a *App) Close() error {
	if a.Session != nil {
		a.Session.Shutdown()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Go runs fn next to the day watcher and returns once both are done.
func (a *App) Go(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(
		func() {
			a.Session.RunDayWatcher(ctx)
		},
	)
	err := fn(ctx)
	cancel()
	wg.Wait()
	return err
}

func RunHTTP(ctx context.Context, cfg *config.Config) error {
	tokens, err := auth.NewJWT(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("[app] failed to close: %v", err)
		}
	}()

	router := httpapi.NewRouter(
		httpapi.NewHandler(
			httpapi.HandlerDeps{
				Session:  a.Session,
				ChatLog:  a.ChatLog,
				Wellness: a.Wellness,
				Tokens:   tokens,
			},
		),
	)
	srv := &http.Server{
		Addr:        ":" + cfg.HTTP.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return a.Go(
		ctx, func(ctx context.Context) error {
			serveErr := make(chan error, 1)
			go func() {
				log.Printf("[app] starting server on %s", srv.Addr)
				serveErr <- srv.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			log.Printf("[app] shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	)
}

func RunTelegram(ctx context.Context, cfg *config.Config) error {
	bot, err := api.NewBotAPI(cfg.Telegram.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("failed to create new bot: %w", err)
	}
	log.Printf("[app] authorized on account %s", bot.Self.UserName)

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("[app] failed to close: %v", err)
		}
	}()

	telegramUsecase, err := usecase.NewTelegramUsecase(
		cfg.Telegram, usecase.TelegramUsecaseDeps{
			User:     a.User,
			Session:  a.Session,
			Wellness: a.Wellness,
			Bot:      bot,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create telegram usecase: %w", err)
	}

	return a.Go(ctx, telegramUsecase.Run)
}
