package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

type globals struct {
	server  string
	secret  string
	subject string
	jsonOut bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "livectl",
		Short:         "Operate a live-service instance",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().StringVar(&g.server, "server", envOr("LIVE_SERVER", "http://localhost:8080"), "live-service base URL")
	cmd.PersistentFlags().StringVar(&g.secret, "secret", os.Getenv("JWT_SECRET"), "HS256 secret used to mint operator tokens")
	cmd.PersistentFlags().StringVar(&g.subject, "as", "livectl", "token subject")
	cmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "print raw JSON responses")

	cmd.AddCommand(
		newPagesCmd(g),
		newPostsCmd(g),
		newSeedCmd(g),
		newTailCmd(g),
		newTelegramCmd(),
	)
	return cmd
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
