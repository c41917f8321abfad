package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/iamvkosarev/wellness-bot/config"
	"github.com/iamvkosarev/wellness-bot/internal/app"
	"github.com/iamvkosarev/wellness-bot/internal/model"
	"github.com/iamvkosarev/wellness-bot/internal/usecase"
	"github.com/spf13/cobra"
)

const (
	commandQuit  = "/quit"
	commandQuick = "/quick"
	commandQuota = "/quota"
)

type configLoader func() (*config.Config, error)

func NewRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "wellness",
		Short: "Wellness companion chat assistant",
		Long: `A wellness-focused chat assistant with a daily message quota.
It can run as an HTTP API, as a telegram bot or as a terminal chat.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("CONFIG_PATH"), "Configuration file path")

	load := func() (*config.Config, error) {
		return config.LoadConfig(cfgPath)
	}
	rootCmd.AddCommand(newServeCmd(load))
	rootCmd.AddCommand(newTelegramCmd(load))
	rootCmd.AddCommand(newChatCmd(load))

	return rootCmd
}

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return app.RunHTTP(cmd.Context(), cfg)
		},
	}
}

func newTelegramCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Run the telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return app.RunTelegram(cmd.Context(), cfg)
		},
	}
}

func newChatCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Long: `Start an interactive wellness chat in the terminal.
Example: wellness chat --user maya --name "Maya Lin"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")

			if name == "" {
				var err error
				if name, err = PromptForName(os.Getenv("USER")); err != nil {
					return err
				}
			}
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			user := model.User{
				UserID:      userID,
				DisplayName: name,
				Email:       email,
			}
			return runChat(cmd.Context(), cfg, user, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("user", "local", "User id the quota and history are kept under")
	cmd.Flags().String("name", "", "Display name (asked for when empty)")
	cmd.Flags().String("email", "", "Email, used for the greeting when the name is empty")

	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, user model.User, out io.Writer) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
	}()

	listener := newTerminalListener(out, a.Wellness)
	return a.Go(
		ctx, func(ctx context.Context) error {
			session, err := a.Session.StartSession(ctx, user, listener)
			if err != nil {
				return err
			}
			defer a.Session.Logout(session)

			renderWelcome(out, session, a.Wellness, a.Session.Quota.Limit())
			return chatLoop(ctx, a.Session, session, listener, PromptForMessage, PromptForQuickReply)
		},
	)
}

// chatLoop reads input until the user quits, interrupts or ctx is done.
func chatLoop(
	ctx context.Context,
	sessions *usecase.SessionUsecase,
	session *usecase.Session,
	listener *terminalListener,
	readMessage func() (string, error),
	pickQuickReply func(presets []string) (string, error),
) error {
	for ctx.Err() == nil {
		text, err := readMessage()
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch strings.TrimSpace(text) {
		case "":
			continue
		case commandQuit:
			return nil
		case commandQuota:
			listener.println(usageStyle.Render(sessions.Wellness.UsageLine(session.Remaining(), sessions.Quota.Limit())))
			continue
		case commandQuick:
			preset, err := pickQuickReply(sessions.Wellness.QuickReplies())
			if err != nil {
				if errors.Is(err, terminal.InterruptErr) {
					continue
				}
				return err
			}
			_, err = sessions.SubmitQuickReply(ctx, session, preset)
			reportSubmitError(listener, err)
		default:
			_, err = sessions.SubmitMessage(ctx, session, text)
			reportSubmitError(listener, err)
		}
	}
	return nil
}

func reportSubmitError(listener *terminalListener, err error) {
	switch {
	case err == nil, errors.Is(err, model.ErrQuotaExhausted), errors.Is(err, model.ErrEmptyMessage):
	case errors.Is(err, model.ErrMessageTooLong):
		listener.println(noticeStyle.Render(listener.wellness.Text(usecase.TextMessageTooLong)))
	default:
		listener.println(errorStyle.Render(err.Error()))
	}
}
