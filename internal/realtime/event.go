package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// Envelope is the wire shape of every broadcast.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event, err)
	}
	return raw, nil
}

// Sink receives events. Delivery is best effort: sinks log and count their
// own failures and never report them back.
type Sink interface {
	Broadcast(ctx context.Context, event string, payload any)
}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Broadcast(ctx context.Context, event string, payload any) {
	for _, s := range f {
		s.Broadcast(ctx, event, payload)
	}
}
