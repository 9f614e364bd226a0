package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"live-service/internal/adapter/webapp"
	"live-service/internal/engine"
	"live-service/internal/kafka"
)

var embedSamples = []string{
	"https://youtu.be/dQw4w9WgXcQ",
	"https://twitter.com/wagtail/status/1",
	"https://vimeo.com/76979871",
}

type seedOptions struct {
	count       int
	via         string
	brokers     string
	topic       string
	interval    time.Duration
	editRatio   float64
	deleteRatio float64
	seed        int64
}

// generate produces a plausible stream of events for one channel: mostly
// new messages, some edits and deletions of earlier ones.
func generate(f *gofakeit.Faker, channelID string, o seedOptions) []engine.Event {
	var (
		out  []engine.Event
		live []string
		next int
	)
	for len(out) < o.count {
		r := f.Float64()
		switch {
		case len(live) > 0 && r < o.deleteRatio:
			i := f.Number(0, len(live)-1)
			out = append(out, engine.Event{Type: engine.KindDelete, ChannelID: channelID, MessageID: live[i]})
			live = append(live[:i], live[i+1:]...)
		case len(live) > 0 && r < o.deleteRatio+o.editRatio:
			id := live[f.Number(0, len(live)-1)]
			out = append(out, engine.Event{Type: engine.KindChange, ChannelID: channelID, MessageID: id, Text: text(f)})
		default:
			next++
			id := strconv.Itoa(next)
			live = append(live, id)
			out = append(out, engine.Event{Type: engine.KindAdd, ChannelID: channelID, MessageID: id, Text: text(f)})
		}
	}
	return out
}

func text(f *gofakeit.Faker) string {
	s := f.Sentence(f.Number(4, 14))
	if f.Number(0, 4) == 0 {
		s += "\n" + f.RandomString(embedSamples)
	}
	if f.Bool() {
		s += "\n" + f.Sentence(f.Number(3, 8))
	}
	return s
}

func newSeedCmd(g *globals) *cobra.Command {
	o := seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed <channel-id>",
		Short: "Feed fake message events into a channel",
		Long:  "Generates add, change and delete events and sends them through the webapp adapter or a Kafka topic.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.editRatio < 0 || o.deleteRatio < 0 || o.editRatio+o.deleteRatio >= 1 {
				return errors.New("--edit-ratio and --delete-ratio must be non-negative and sum below 1")
			}
			seed := o.seed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			events := generate(gofakeit.New(seed), args[0], o)

			var send func(context.Context, engine.Event) error
			switch o.via {
			case "webapp":
				c, err := g.client()
				if err != nil {
					return err
				}
				send = func(ctx context.Context, ev engine.Event) error {
					return c.do(ctx, http.MethodPost, "/webapp/events", toWebapp(ev), nil)
				}
			case "kafka":
				if o.brokers == "" {
					return errors.New("--brokers or KAFKA_BOOTSTRAP_SERVERS is required")
				}
				w := kafka.NewWriter(o.brokers, o.topic)
				defer w.Close()
				send = func(ctx context.Context, ev engine.Event) error {
					b, err := json.Marshal(ev)
					if err != nil {
						return err
					}
					return w.Publish(ctx, ev.ChannelID, b)
				}
			default:
				return fmt.Errorf("unknown --via %q", o.via)
			}

			for i, ev := range events {
				if err := send(cmd.Context(), ev); err != nil {
					return fmt.Errorf("event %d (%s %s): %w", i, ev.Type, ev.MessageID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ev.Type, ev.MessageID)
				if o.interval > 0 && i < len(events)-1 {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(o.interval):
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&o.count, "count", "n", 20, "number of events")
	cmd.Flags().StringVar(&o.via, "via", "webapp", "transport: webapp or kafka")
	cmd.Flags().StringVar(&o.brokers, "brokers", envOr("KAFKA_BOOTSTRAP_SERVERS", ""), "Kafka bootstrap servers")
	cmd.Flags().StringVar(&o.topic, "topic", envOr("LIVE_KAFKA_TOPIC", "live.events"), "Kafka topic")
	cmd.Flags().DurationVar(&o.interval, "interval", 500*time.Millisecond, "pause between events")
	cmd.Flags().Float64Var(&o.editRatio, "edit-ratio", 0.15, "share of events that edit an earlier message")
	cmd.Flags().Float64Var(&o.deleteRatio, "delete-ratio", 0.05, "share of events that delete an earlier message")
	cmd.Flags().Int64Var(&o.seed, "seed", 0, "random seed, 0 for a fresh one")
	return cmd
}

func toWebapp(ev engine.Event) webapp.Payload {
	p := webapp.Payload{Channel: ev.ChannelID, ID: webapp.MessageID(ev.MessageID), Content: ev.Text, Files: ev.Files}
	switch ev.Type {
	case engine.KindAdd:
		p.UpdateType = webapp.MessageCreated
	case engine.KindChange:
		p.UpdateType = webapp.MessageEdited
	case engine.KindDelete:
		p.UpdateType = webapp.MessageDeleted
	}
	return p
}
