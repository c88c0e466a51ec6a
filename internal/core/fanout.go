package core

import (
	"github.com/rs/zerolog"
)

// Fanout delivers events to every live session of a target identity.
//
// Delivery is best-effort: an offline identity or a slow session is not an
// error, the event is simply not pushed and stays observable through history.
type Fanout struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewFanout builds a fanout over the given registry.
func NewFanout(registry *Registry, logger *zerolog.Logger) *Fanout {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Fanout{registry: registry, log: logger}
}

// Registry returns the registry the fanout resolves sessions from.
func (f *Fanout) Registry() *Registry {
	return f.registry
}

// Publish pushes the event to all live sessions of userID and returns how many
// sessions accepted it.
func (f *Fanout) Publish(userID int64, event *Event) int {
	delivered := 0
	for _, c := range f.registry.ClientsFor(userID) {
		if f.Reply(c, event) {
			delivered++
		}
	}
	return delivered
}

// PublishTo publishes the event once to each distinct identity in userIDs.
// It returns the number of sessions reached per identity.
func (f *Fanout) PublishTo(event *Event, userIDs ...int64) map[int64]int {
	reached := make(map[int64]int, len(userIDs))
	for _, id := range userIDs {
		if _, seen := reached[id]; seen {
			continue
		}
		reached[id] = f.Publish(id, event)
	}
	return reached
}

// Reply pushes the event to a single session without blocking.
func (f *Fanout) Reply(c *Client, event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		// Drop if slow consumer.
		f.log.Debug().Str("client_id", c.ID).Int("event_kind", int(event.Kind)).Msg("dropping event for slow client")
		return false
	}
}
