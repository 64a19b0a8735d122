package engine

// ChannelName is the application-facing channel label used in PacketRecord
// and LogEvent, matching spec §6's "RELIABLE"|"UNRELIABLE" strings.
type ChannelName string

const (
	ChannelReliable   ChannelName = "RELIABLE"
	ChannelUnreliable ChannelName = "UNRELIABLE"
)

// PacketRecord is delivered to the application's receive callback for every
// accepted inbound payload (spec §6).
type PacketRecord struct {
	Channel ChannelName
	Seq     uint16
	// TsMs is the sender's original timestamp, carried through the reorder
	// buffer and preserved on every delivery, including out-of-order and
	// gap-skipped ones.
	TsMs    uint32
	RTTMs   *float64 // always nil on receives; reserved for symmetry with §6
	Payload []byte
	Skipped bool
}

// RecvFunc delivers a PacketRecord to the application. Implementations must
// not block, per spec §5.
type RecvFunc func(PacketRecord)

// EventKind enumerates the log_cb event taxonomy from spec §6.
type EventKind string

const (
	EventTxData       EventKind = "tx_data"
	EventRxData       EventKind = "rx_data"
	EventAckTx        EventKind = "ack_tx"
	EventAckRx        EventKind = "ack_rx"
	EventRetx         EventKind = "retx"
	EventDropMaxRetx  EventKind = "drop_max_retx"
	EventSkipGap      EventKind = "skip_gap"
	EventDeliver      EventKind = "deliver"
	EventError        EventKind = "error"
)

// Event is one occurrence of the log_cb taxonomy.
type Event struct {
	Kind    EventKind
	Channel ChannelName
	Seq     uint16
	Peer    string
	RetxN   int   // populated for EventRetx / EventDropMaxRetx
	Err     error // populated for EventError
}

// EventSink receives Events. log_cb is optional per spec §6; NoopSink is
// the zero-cost default.
type EventSink interface {
	OnEvent(Event)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) OnEvent(e Event) { f(e) }

// NoopSink discards every event.
var NoopSink EventSink = EventSinkFunc(func(Event) {})
