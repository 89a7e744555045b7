// Package events carries block outputs from the blocks that produce them to
// whoever is listening: the MCP server log, the CLI, or tests.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TopicBlockOutput is the bus topic every block output is published on.
const TopicBlockOutput = "block.output"

// Event is a single output emitted by a block.
type Event struct {
	ID        string    `json:"id"`
	Block     string    `json:"block"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// New returns an Event for block carrying payload, stamped with a fresh id
// and the current time.
func New(block string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Block:     block,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Emitter receives block outputs.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, e Event) error

// Emit calls f(ctx, e).
func (f EmitterFunc) Emit(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Handler is called for every event published on a Bus.
type Handler func(ctx context.Context, e Event)

// ErrNilHandler is returned by Bus.Subscribe for a nil handler.
var ErrNilHandler = errors.New("events: handler is nil")

// Bus is an in-process Emitter fanning events out to subscribers. Handlers
// run synchronously on the emitting goroutine.
type Bus struct {
	bus    evbus.Bus
	logger zerolog.Logger
}

// NewBus returns an empty Bus logging through logger.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{bus: evbus.New(), logger: logger}
}

// Subscribe registers h for every event emitted on b.
func (b *Bus) Subscribe(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if err := b.bus.Subscribe(TopicBlockOutput, func(ctx context.Context, e Event) { h(ctx, e) }); err != nil {
		return fmt.Errorf("events: subscribe: %w", err)
	}
	return nil
}

// Emit publishes e to all subscribers. Missing ids and timestamps are filled
// in. Emit fails without publishing if ctx is already done.
func (b *Bus) Emit(ctx context.Context, e Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("events: emit %s: %w", e.Block, err)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.logger.Debug().Str("event_id", e.ID).Str("block", e.Block).Msg("emitting block output")
	b.bus.Publish(TopicBlockOutput, ctx, e)
	return nil
}

// HasSubscribers reports whether any handler is registered on b.
func (b *Bus) HasSubscribers() bool {
	return b.bus.HasCallback(TopicBlockOutput)
}
