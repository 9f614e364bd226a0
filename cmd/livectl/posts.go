package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"live-service/internal/livepost"
)

func newPostsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Moderate live posts",
	}
	postPath := func(channelID, postID string) string {
		return "/pages/" + url.PathEscape(channelID) + "/posts/" + url.PathEscape(postID)
	}
	visibility := func(action string) *cobra.Command {
		return &cobra.Command{
			Use:   action + " <channel-id> <post-id>",
			Short: action + " a post",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := g.client()
				if err != nil {
					return err
				}
				var out livepost.Post
				if err := c.do(cmd.Context(), http.MethodPost, postPath(args[0], args[1])+"/"+action, nil, &out); err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s visible=%t\n", out.ID, out.Visible)
				return nil
			},
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <channel-id> <post-id>",
			Short: "Print a post",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := g.client()
				if err != nil {
					return err
				}
				var out livepost.Post
				if err := c.do(cmd.Context(), http.MethodGet, postPath(args[0], args[1]), nil, &out); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			},
		},
		&cobra.Command{
			Use:   "delete <channel-id> <post-id>",
			Short: "Delete a post",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := g.client()
				if err != nil {
					return err
				}
				if err := c.do(cmd.Context(), http.MethodDelete, postPath(args[0], args[1]), nil, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[1])
				return nil
			},
		},
		visibility("hide"),
		visibility("show"),
	)
	return cmd
}
