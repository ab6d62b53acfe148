// Package wire implements the 27-byte datagram codec shared by the
// Master responder and the Slave requester.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// FlagRequest marks a Slave-originated sync request.
	FlagRequest byte = 0x01
	// FlagReply marks a Master-originated sync reply.
	FlagReply byte = 0x02

	// Len is the fixed on-wire size of a Packet: 1 flags + 2 sequence + 3*8 timestamps.
	Len = 1 + 2 + 8 + 8 + 8
)

// Packet is the decoded form of a 27-byte exchange datagram.
//
// T2 and T3 only carry meaning on a reply; a request always encodes
// them as zero.
type Packet struct {
	Flags    byte
	Sequence uint16
	T1       float64
	T2       float64
	T3       float64
}

// DecodeError reports a malformed datagram. It is never wrapped with
// additional context beyond what callers already have (the bytes).
type DecodeError struct {
	Len   int
	Flags byte
}

func (e *DecodeError) Error() string {
	if e.Len != Len {
		return fmt.Sprintf("wire: invalid packet length %d, want %d", e.Len, Len)
	}
	return fmt.Sprintf("wire: invalid flags 0x%02x", e.Flags)
}

// Seconds converts a wall-clock instant to the float64 seconds-since-epoch
// representation every timestamp takes once it crosses the wire.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Encode serializes a request (t2 == t3 == 0) or reply packet in the
// big-endian, fixed 27-byte wire layout.
func Encode(flags byte, seq uint16, t1, t2, t3 float64) []byte {
	buf := make([]byte, Len)
	buf[0] = flags
	binary.BigEndian.PutUint16(buf[1:3], seq)
	binary.BigEndian.PutUint64(buf[3:11], math.Float64bits(t1))
	binary.BigEndian.PutUint64(buf[11:19], math.Float64bits(t2))
	binary.BigEndian.PutUint64(buf[19:27], math.Float64bits(t3))
	return buf
}

// Decode parses a datagram into a Packet. It fails with *DecodeError
// when the length isn't exactly Len or the flags byte is neither
// FlagRequest nor FlagReply; callers must drop such datagrams silently
// per the wire protocol's error handling rules.
func Decode(buf []byte) (Packet, error) {
	if len(buf) != Len {
		return Packet{}, &DecodeError{Len: len(buf)}
	}

	flags := buf[0]
	if flags != FlagRequest && flags != FlagReply {
		return Packet{}, &DecodeError{Len: len(buf), Flags: flags}
	}

	return Packet{
		Flags:    flags,
		Sequence: binary.BigEndian.Uint16(buf[1:3]),
		T1:       math.Float64frombits(binary.BigEndian.Uint64(buf[3:11])),
		T2:       math.Float64frombits(binary.BigEndian.Uint64(buf[11:19])),
		T3:       math.Float64frombits(binary.BigEndian.Uint64(buf[19:27])),
	}, nil
}
