package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"live-service/internal/adapter/telegram"
)

func newTelegramCmd() *cobra.Command {
	var token, apiBase, secret string
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Manage the Telegram bot webhook",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("--token or TELEGRAM_BOT_TOKEN is required")
			}
			if secret == "" {
				secret = telegram.WebhookSecret(token)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&token, "token", os.Getenv("TELEGRAM_BOT_TOKEN"), "bot token")
	cmd.PersistentFlags().StringVar(&apiBase, "api", envOr("TELEGRAM_API_BASE", telegram.DefaultAPIBase), "Bot API base URL")
	cmd.PersistentFlags().StringVar(&secret, "secret-token", os.Getenv("TELEGRAM_WEBHOOK_SECRET"), "webhook secret_token (derived from the bot token when empty)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set-webhook <public-base-url>",
			Short: "Point the bot's updates at this service",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				hook := strings.TrimRight(args[0], "/") + telegram.WebhookPath
				c := telegram.NewClient(apiBase, token, nil)
				if err := c.SetWebhook(hook, secret); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "webhook set")
				return nil
			},
		},
		&cobra.Command{
			Use:   "webhook-info <public-base-url>",
			Short: "Check that the bot's webhook points at this service",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := telegram.NewClient(apiBase, token, nil)
				got, err := c.WebhookURL()
				if err != nil {
					return err
				}
				want := strings.TrimRight(args[0], "/") + telegram.WebhookPath
				if got != want {
					return fmt.Errorf("webhook is %q, expected this service's endpoint", got)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "webhook ok")
				return nil
			},
		},
	)
	return cmd
}
