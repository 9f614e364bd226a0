package main

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"live-service/internal/admin"
)

func newPagesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Manage live pages",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <channel-id>",
			Short: "Create a live page bound to a channel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := g.client()
				if err != nil {
					return err
				}
				var out admin.PageView
				if err := c.do(cmd.Context(), http.MethodPost, "/pages", admin.CreatePageReq{ChannelID: args[0]}, &out); err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", out.ChannelID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List live pages",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := g.client()
				if err != nil {
					return err
				}
				var out struct {
					Items []admin.PageView `json:"items"`
				}
				if err := c.do(cmd.Context(), http.MethodGet, "/pages", nil, &out); err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				for _, p := range out.Items {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.ChannelID, watermark(p.LastUpdateTimestamp))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <channel-id>",
			Short: "Show a page and its posts",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := g.client()
				if err != nil {
					return err
				}
				var out admin.PageView
				if err := c.do(cmd.Context(), http.MethodGet, "/pages/"+url.PathEscape(args[0]), nil, &out); err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (updated %s)\n", out.ChannelID, watermark(out.LastUpdateTimestamp))
				for _, p := range out.Posts {
					state := "visible"
					if !p.Visible {
						state = "hidden"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\tmsg=%s\t%s\t%d blocks\n", p.ID, p.MessageID, state, len(p.Content))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <channel-id>",
			Short: "Delete a live page",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := g.client()
				if err != nil {
					return err
				}
				if err := c.do(cmd.Context(), http.MethodDelete, "/pages/"+url.PathEscape(args[0]), nil, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func watermark(ts float64) string {
	return time.UnixMicro(int64(ts * 1e6)).UTC().Format(time.RFC3339Nano)
}
