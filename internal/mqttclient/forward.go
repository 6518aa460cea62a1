package mqttclient

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/events"
)

// Publisher is the subset of Client used by Forward.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
	EventTopic(typ string) string
}

// Subscriber is the subset of events.Bus used by Forward.
type Subscriber interface {
	Subscribe(filter events.Filter) (<-chan events.Event, func())
}

// Forward publishes every result, error, cancelled and enabled event as
// JSON until ctx is done. Status chatter stays local.
func Forward(ctx context.Context, bus Subscriber, pub Publisher, log zerolog.Logger) {
	ch, cancel := bus.Subscribe(events.Filter{Types: []string{
		events.TypeResult, events.TypeError, events.TypeCancelled, events.TypeEnabled, events.TypeRecording,
	}})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Warn().Err(err).Msg("marshal event for mqtt")
				continue
			}
			// The latest enabled/recording state is retained for late subscribers.
			retained := ev.Type == events.TypeEnabled || ev.Type == events.TypeRecording
			if err := pub.Publish(pub.EventTopic(ev.Type), retained, data); err != nil {
				log.Warn().Err(err).Str("type", ev.Type).Msg("mqtt publish failed")
			}
		}
	}
}
