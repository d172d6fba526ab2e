package messages

// Subscribe is sent by an observer after connecting to start receiving
// replication traffic. Datagram observers resend it as a keepalive.
type Subscribe struct {
	Version      string
	ObserverName string
}

// SubscribeAccepted is sent by the origin when a websocket subscription is
// accepted.
type SubscribeAccepted struct {
	ServerName            string
	TickRate              int
	ClockSampleIntervalMs uint64
	SnapshotIntervalMs    uint64
}

// SubscribeRejected is sent by the origin when a subscription is refused.
type SubscribeRejected struct {
	Reason string
}

// Unsubscribe tells the origin to stop sending to this observer.
type Unsubscribe struct{}
