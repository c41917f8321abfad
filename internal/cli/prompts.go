package cli

import (
	"errors"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

// PromptForName asks for the display name used in the greeting.
func PromptForName(defaultName string) (string, error) {
	var name string
	prompt := &survey.Input{
		Message: "What should I call you?",
		Default: defaultName,
	}
	err := survey.AskOne(
		prompt, &name, survey.WithValidator(
			func(val interface{}) error {
				if strings.TrimSpace(val.(string)) == "" {
					return errors.New("name cannot be empty")
				}
				return nil
			},
		),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func PromptForMessage() (string, error) {
	var text string
	prompt := &survey.Input{
		Message: "You:",
	}
	if err := survey.AskOne(prompt, &text); err != nil {
		return "", err
	}
	return text, nil
}

func PromptForQuickReply(presets []string) (string, error) {
	var selected string
	prompt := &survey.Select{
		Message: "Pick a quick reply:",
		Options: presets,
		Help:    "The selected text is sent as your message.",
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}
