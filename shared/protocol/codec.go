// Package protocol implements the datagram encoding used by the udp and kcp
// transports. Each packet is one kind byte followed by protobuf wire-format
// fields. Times are fixed64 milliseconds and floats are fixed32, so a body
// entry has a fixed size regardless of its values.
package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/automoto/physrep/shared/messages"
	"github.com/go-gl/mathgl/mgl32"
	"google.golang.org/protobuf/encoding/protowire"
)

// Kind identifies the message carried by a packet.
type Kind byte

const (
	KindUnknown Kind = iota
	KindTimeSample
	KindPhysicsSnapshot
	KindBodyRemoved
	KindSubscribe
	KindUnsubscribe
)

func (k Kind) String() string {
	switch k {
	case KindTimeSample:
		return "time_sample"
	case KindPhysicsSnapshot:
		return "physics_snapshot"
	case KindBodyRemoved:
		return "body_removed"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// MaxPacketSize bounds a single encoded message. A snapshot of ~1000 bodies
// fits; larger worlds should shard snapshots.
const MaxPacketSize = 64 * 1024

var (
	ErrShortPacket   = errors.New("protocol: short packet")
	ErrUnknownKind   = errors.New("protocol: unknown message kind")
	ErrMalformed     = errors.New("protocol: malformed field")
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// Field numbers.
const (
	fieldTime    protowire.Number = 1
	fieldBody    protowire.Number = 2
	fieldID      protowire.Number = 1
	fieldPose    protowire.Number = 2
	fieldVersion protowire.Number = 1
	fieldName    protowire.Number = 2
)

// poseFloats is the number of fixed32 values in an encoded pose:
// position[3], velocity[3], rotation[4] (w, x, y, z).
const poseFloats = 10

// Marshal encodes a replication message. Supported types are TimeSample,
// PhysicsSnapshot, BodyRemoved, Subscribe and Unsubscribe (values or
// pointers).
func Marshal(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case messages.TimeSample:
		return appendTimeSample(nil, m), nil
	case *messages.TimeSample:
		return appendTimeSample(nil, *m), nil
	case messages.PhysicsSnapshot:
		return appendSnapshot(nil, m)
	case *messages.PhysicsSnapshot:
		return appendSnapshot(nil, *m)
	case messages.BodyRemoved:
		return appendBodyRemoved(nil, m), nil
	case *messages.BodyRemoved:
		return appendBodyRemoved(nil, *m), nil
	case messages.Subscribe:
		return appendSubscribe(nil, m), nil
	case *messages.Subscribe:
		return appendSubscribe(nil, *m), nil
	case messages.Unsubscribe, *messages.Unsubscribe:
		return []byte{byte(KindUnsubscribe)}, nil
	default:
		return nil, fmt.Errorf("marshal %T: %w", msg, ErrUnknownKind)
	}
}

// Unmarshal decodes a packet into one of the message value types.
func Unmarshal(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, ErrShortPacket
	}
	kind, body := Kind(data[0]), data[1:]

	switch kind {
	case KindTimeSample:
		return parseTimeSample(body)
	case KindPhysicsSnapshot:
		return parseSnapshot(body)
	case KindBodyRemoved:
		return parseBodyRemoved(body)
	case KindSubscribe:
		return parseSubscribe(body)
	case KindUnsubscribe:
		return messages.Unsubscribe{}, nil
	default:
		return nil, fmt.Errorf("kind %d: %w", kind, ErrUnknownKind)
	}
}

func appendTimeSample(b []byte, m messages.TimeSample) []byte {
	b = append(b, byte(KindTimeSample))
	b = protowire.AppendTag(b, fieldTime, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, m.TimeMs)
}

func appendSnapshot(b []byte, m messages.PhysicsSnapshot) ([]byte, error) {
	b = append(b, byte(KindPhysicsSnapshot))
	b = protowire.AppendTag(b, fieldTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, m.TimeMs)

	entry := make([]byte, 0, 64)
	for _, body := range m.Bodies {
		entry = appendBodyEntry(entry[:0], body)
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	if len(b) > MaxPacketSize {
		return nil, fmt.Errorf("snapshot with %d bodies is %d bytes: %w", len(m.Bodies), len(b), ErrFrameTooLarge)
	}
	return b, nil
}

func appendBodyEntry(b []byte, e messages.BodyEntry) []byte {
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.ID))

	pose := make([]byte, 0, poseFloats*4)
	for _, f := range poseToFloats(e.Pose) {
		pose = protowire.AppendFixed32(pose, math.Float32bits(f))
	}
	b = protowire.AppendTag(b, fieldPose, protowire.BytesType)
	return protowire.AppendBytes(b, pose)
}

func appendBodyRemoved(b []byte, m messages.BodyRemoved) []byte {
	b = append(b, byte(KindBodyRemoved))
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(m.ID))
}

func appendSubscribe(b []byte, m messages.Subscribe) []byte {
	b = append(b, byte(KindSubscribe))
	b = protowire.AppendTag(b, fieldVersion, protowire.BytesType)
	b = protowire.AppendString(b, m.Version)
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	return protowire.AppendString(b, m.ObserverName)
}

func parseTimeSample(b []byte) (messages.TimeSample, error) {
	var m messages.TimeSample
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num == fieldTime && typ == protowire.Fixed64Type {
			val, n := protowire.ConsumeFixed64(v)
			if val > messages.MaxTimeMs {
				return 0, fmt.Errorf("time %d ms: %w", val, ErrMalformed)
			}
			m.TimeMs = val
			return n, nil
		}
		return skipField, nil
	})
	return m, err
}

func parseSnapshot(b []byte) (messages.PhysicsSnapshot, error) {
	var m messages.PhysicsSnapshot
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldTime && typ == protowire.Fixed64Type:
			val, n := protowire.ConsumeFixed64(v)
			if val > messages.MaxTimeMs {
				return 0, fmt.Errorf("snapshot time %d ms: %w", val, ErrMalformed)
			}
			m.TimeMs = val
			return n, nil
		case num == fieldBody && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			entry, err := parseBodyEntry(raw)
			if err != nil {
				return 0, err
			}
			m.Bodies = append(m.Bodies, entry)
			return n, nil
		}
		return skipField, nil
	})
	return m, err
}

func parseBodyEntry(b []byte) (messages.BodyEntry, error) {
	var e messages.BodyEntry
	sawPose := false
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldID && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(v)
			if val > math.MaxUint32 {
				return 0, fmt.Errorf("object id %d: %w", val, ErrMalformed)
			}
			e.ID = messages.ObjectID(val)
			return n, nil
		case num == fieldPose && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			pose, err := parsePose(raw)
			if err != nil {
				return 0, err
			}
			e.Pose = pose
			sawPose = true
			return n, nil
		}
		return skipField, nil
	})
	if err == nil && !sawPose {
		err = fmt.Errorf("body %d without pose: %w", e.ID, ErrMalformed)
	}
	return e, err
}

func parsePose(b []byte) (messages.BodyPose, error) {
	if len(b) != poseFloats*4 {
		return messages.BodyPose{}, fmt.Errorf("pose of %d bytes: %w", len(b), ErrMalformed)
	}
	var f [poseFloats]float32
	for i := range f {
		bits, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return messages.BodyPose{}, protowire.ParseError(n)
		}
		f[i] = math.Float32frombits(bits)
		b = b[n:]
	}
	return floatsToPose(f), nil
}

func parseBodyRemoved(b []byte) (messages.BodyRemoved, error) {
	var m messages.BodyRemoved
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num == fieldID && typ == protowire.VarintType {
			val, n := protowire.ConsumeVarint(v)
			if val > math.MaxUint32 {
				return 0, fmt.Errorf("object id %d: %w", val, ErrMalformed)
			}
			m.ID = messages.ObjectID(val)
			return n, nil
		}
		return skipField, nil
	})
	return m, err
}

func parseSubscribe(b []byte) (messages.Subscribe, error) {
	var m messages.Subscribe
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if typ != protowire.BytesType {
			return skipField, nil
		}
		switch num {
		case fieldVersion:
			s, n := protowire.ConsumeString(v)
			m.Version = s
			return n, nil
		case fieldName:
			s, n := protowire.ConsumeString(v)
			m.ObserverName = s
			return n, nil
		}
		return skipField, nil
	})
	return m, err
}

// skipField is returned by a field visitor for fields it does not know.
const skipField = math.MinInt32

// eachField walks the fields of b. visit returns the number of value bytes
// it consumed or skipField; a negative protowire length is a parse error.
func eachField(b []byte, visit func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		consumed, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if consumed == skipField {
			consumed = protowire.ConsumeFieldValue(num, typ, b)
		}
		if consumed < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(consumed))
		}
		b = b[consumed:]
	}
	return nil
}

func poseToFloats(p messages.BodyPose) [poseFloats]float32 {
	return [poseFloats]float32{
		p.Position[0], p.Position[1], p.Position[2],
		p.LinearVelocity[0], p.LinearVelocity[1], p.LinearVelocity[2],
		p.Rotation.W, p.Rotation.V[0], p.Rotation.V[1], p.Rotation.V[2],
	}
}

func floatsToPose(f [poseFloats]float32) messages.BodyPose {
	return messages.BodyPose{
		Position:       mgl32.Vec3{f[0], f[1], f[2]},
		LinearVelocity: mgl32.Vec3{f[3], f[4], f[5]},
		Rotation:       mgl32.Quat{W: f[6], V: mgl32.Vec3{f[7], f[8], f[9]}},
	}
}
