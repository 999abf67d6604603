package channel

import "github.com/fieldgw/igw/core"

// EventKind tags the variant held by an Event.
type EventKind int

const (
	EventDataUpdate EventKind = iota
	EventConnectionChanged
	EventError
	EventHeartbeat
)

func (k EventKind) String() string {
	switch k {
	case EventDataUpdate:
		return "DataUpdate"
	case EventConnectionChanged:
		return "ConnectionChanged"
	case EventError:
		return "Error"
	case EventHeartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}

// Event is the envelope every event-driven channel pushes to its
// subscribers. SourceChannel always identifies which channel produced the
// event, so a router fed from multiple channels can disambiguate without
// inspecting point IDs.
type Event struct {
	Kind          EventKind
	SourceChannel uint32
	Batch         core.DataBatch
	State         core.ConnectionState
	ErrorMessage  string
}

func DataUpdateEvent(sourceChannel uint32, batch core.DataBatch) Event {
	return Event{Kind: EventDataUpdate, SourceChannel: sourceChannel, Batch: batch}
}

func ConnectionChangedEvent(sourceChannel uint32, state core.ConnectionState) Event {
	return Event{Kind: EventConnectionChanged, SourceChannel: sourceChannel, State: state}
}

func ErrorEvent(sourceChannel uint32, message string) Event {
	return Event{Kind: EventError, SourceChannel: sourceChannel, ErrorMessage: message}
}

func HeartbeatEvent(sourceChannel uint32) Event {
	return Event{Kind: EventHeartbeat, SourceChannel: sourceChannel}
}
