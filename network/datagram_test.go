package network

import (
	"net"
	"testing"
	"time"

	"github.com/automoto/physrep/config"
	"github.com/automoto/physrep/shared/messages"
	"github.com/automoto/physrep/shared/protocol"
)

// waitInbox drains src until pred is satisfied or the deadline passes.
func waitInbox(t *testing.T, src Source, pred func(Inbox) bool) Inbox {
	t.Helper()
	var acc Inbox
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		in := src.Drain()
		acc.Samples = append(acc.Samples, in.Samples...)
		acc.Snapshots = append(acc.Snapshots, in.Snapshots...)
		acc.Removed = append(acc.Removed, in.Removed...)
		if pred(acc) {
			return acc
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out; inbox so far %+v", acc)
	return acc
}

func TestDatagramClientOverPipe(t *testing.T) {
	clientConn, originConn := net.Pipe()
	origin := protocol.NewStreamLink(originConn)
	defer origin.Close()

	c := newDatagramClient(config.TransportKCP, "pipe")
	c.dial = func() (protocol.Link, error) {
		return protocol.NewStreamLink(clientConn), nil
	}

	received := make(chan any, 8)
	go func() {
		for {
			msg, err := origin.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			received <- msg
		}
	}()

	if err := c.Connect(config.Version, "test"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if msg := <-received; msg != (messages.Subscribe{Version: config.Version, ObserverName: "test"}) {
		t.Fatalf("first message = %#v, want subscribe", msg)
	}

	go func() {
		_ = origin.WriteMessage(messages.NewTimeSample(300 * time.Millisecond))
		_ = origin.WriteMessage(messages.PhysicsSnapshot{TimeMs: 250})
		_ = origin.WriteMessage(messages.BodyRemoved{ID: 3})
	}()

	in := waitInbox(t, c, func(in Inbox) bool {
		return len(in.Samples) == 1 && len(in.Snapshots) == 1 && len(in.Removed) == 1
	})
	if in.Samples[0].TimeMs != 300 || in.Snapshots[0].TimeMs != 250 || in.Removed[0].ID != 3 {
		t.Errorf("inbox = %+v", in)
	}
	if c.State() != StateSubscribed {
		t.Errorf("State = %v, want subscribed", c.State())
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	for msg := range received {
		if _, ok := msg.(messages.Unsubscribe); ok {
			return
		}
	}
	t.Error("no unsubscribe sent on close")
}

func TestDatagramClientUDPLoopback(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp loopback unavailable: %v", err)
	}
	defer pc.Close()

	c, err := NewDatagramClient(config.TransportUDP, pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewDatagramClient: %v", err)
	}
	if err := c.Connect(config.Version, "loopback"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	buf := make([]byte, protocol.MaxPacketSize)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, from, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("origin read: %v", err)
	}
	msg, err := protocol.Unmarshal(buf[:n])
	if err != nil {
		t.Fatalf("decode subscribe: %v", err)
	}
	if sub, ok := msg.(messages.Subscribe); !ok || sub.ObserverName != "loopback" {
		t.Fatalf("got %#v, want subscribe", msg)
	}

	// A garbage datagram is dropped without ending the receive loop.
	if _, err := pc.WriteTo([]byte{0xff, 1, 2}, from); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	data, err := protocol.Marshal(messages.PhysicsSnapshot{TimeMs: 42})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pc.WriteTo(data, from); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	in := waitInbox(t, c, func(in Inbox) bool { return len(in.Snapshots) == 1 })
	if in.Snapshots[0].TimeMs != 42 {
		t.Errorf("snapshot time = %d", in.Snapshots[0].TimeMs)
	}
}

func TestNewDatagramClientRejectsWebSocket(t *testing.T) {
	if _, err := NewDatagramClient(config.TransportWebSocket, "localhost:1"); err == nil {
		t.Fatal("expected error for ws transport")
	}
}
