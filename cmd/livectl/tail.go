package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"live-service/internal/bus"
	"live-service/internal/polling"
)

func newTailCmd(g *globals) *cobra.Command {
	var longPoll bool
	cmd := &cobra.Command{
		Use:   "tail <channel-id>",
		Short: "Follow the deltas of a live page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if longPoll {
				return tailLongPoll(cmd, g.server, args[0])
			}
			return tailWebsocket(cmd, g.server, args[0])
		},
	}
	cmd.Flags().BoolVar(&longPoll, "long-poll", false, "use long polling instead of the websocket")
	return cmd
}

func tailWebsocket(cmd *cobra.Command, server, channelID string) error {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws/channel/" + channelID + "/"

	conn, resp, err := websocket.DefaultDialer.DialContext(cmd.Context(), u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s", u, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()
	go func() {
		<-cmd.Context().Done()
		_ = conn.Close()
	}()

	out := cmd.OutOrStdout()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if cmd.Context().Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		var d bus.Delta
		if err := json.Unmarshal(msg, &d); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "undecodable frame: %v\n", err)
			continue
		}
		printDelta(out, d.Renders, d.Removals)
	}
}

func tailLongPoll(cmd *cobra.Command, server, channelID string) error {
	base := strings.TrimRight(server, "/") + "/long-polling/" + url.PathEscape(channelID) + "/"
	hc := &http.Client{Timeout: 2 * time.Minute}
	ctx := cmd.Context()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	var hs polling.Handshake
	if err := decodeOK(resp, &hs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d posts on page\n", len(hs.LivePosts))
	since := hs.LastUpdateTimestamp
	known := make(map[string]bool, len(hs.LivePosts))
	for _, id := range hs.LivePosts {
		known[id] = true
	}

	for ctx.Err() == nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			base+"?last_update_ts="+strconv.FormatFloat(since, 'f', -1, 64), nil)
		if err != nil {
			return err
		}
		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var u struct {
			polling.Updates
			TimeOutReached string `json:"timeOutReached"`
		}
		if err := decodeOK(resp, &u); err != nil {
			return err
		}
		if u.TimeOutReached != "" {
			continue
		}
		current := make(map[string]bool, len(u.CurrentPosts))
		for _, id := range u.CurrentPosts {
			current[id] = true
		}
		var removed []string
		for id := range known {
			if !current[id] {
				removed = append(removed, id)
			}
		}
		printDelta(cmd.OutOrStdout(), u.Updates.Updates, removed)
		known = current
		since = u.LastUpdateTimestamp
	}
	return nil
}

func decodeOK(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printDelta(w io.Writer, renders map[string]string, removals []string) {
	for id, html := range renders {
		fmt.Fprintf(w, "render %s %s\n", id, html)
	}
	for _, id := range removals {
		fmt.Fprintf(w, "remove %s\n", id)
	}
}
