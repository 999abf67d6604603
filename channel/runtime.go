// Package channel defines the uniform runtime contract every protocol
// implementation satisfies, plus the event envelope and fan-out broadcaster
// used by event-driven channels.
package channel

import (
	"context"

	"github.com/fieldgw/igw/core"
)

// Runtime is the object-safe, uniform interface the gateway, router, and
// CLI drive every protocol channel through. Unlike a trait-object design
// built around internal locking, a Go ChannelRuntime is expected to own a
// single goroutine (or goroutine pair) processing its requests serially -
// the interface itself carries no locking requirement because nothing
// calls it concurrently against the same instance.
type Runtime interface {
	// ID returns the channel's unique identifier.
	ID() uint32
	// Name returns the channel's display name.
	Name() string
	// Protocol returns the short protocol tag ("modbus", "iec104", ...).
	Protocol() string
	// IsEventDriven reports whether the channel pushes updates via
	// Subscribe rather than (or in addition to) Poll.
	IsEventDriven() bool
	// Modes returns the communication modes this channel supports.
	Modes() []core.CommunicationMode

	// Connect establishes the underlying connection. On failure it
	// returns a GatewayError and leaves ConnectionState in ConnError.
	Connect(ctx context.Context) error
	// Disconnect tears down the underlying connection.
	Disconnect(ctx context.Context) error
	// ConnectionState reports the current lifecycle state.
	ConnectionState() core.ConnectionState

	// PollOnce runs a single acquisition cycle. On a disconnected
	// channel it fails with NotConnected. Event-driven-only channels
	// return their latest-value cache rather than performing I/O.
	PollOnce(ctx context.Context, req core.ReadRequest) (core.ReadResponse, error)
	// WriteControl writes a batch of Signal/Control commands. A failure
	// on one command does not abort the rest of the batch.
	WriteControl(ctx context.Context, commands []core.ControlCommand) (core.WriteResult, error)
	// WriteAdjustment writes a batch of Telemetry/Adjustment setpoints.
	WriteAdjustment(ctx context.Context, adjustments []core.AdjustmentCommand) (core.WriteResult, error)

	// Subscribe returns a channel of data events and an unsubscribe
	// func, or ok=false for a polling-only channel.
	Subscribe() (events <-chan Event, unsubscribe func(), ok bool)
	// StartEvents begins pushing events to subscribers. No-op (returns
	// nil) on a polling-only channel.
	StartEvents(ctx context.Context) error
	// StopEvents stops pushing events. No-op on a polling-only channel.
	StopEvents(ctx context.Context) error

	// Diagnostics returns a snapshot of the channel's health counters.
	Diagnostics(ctx context.Context) (core.Diagnostics, error)
}
