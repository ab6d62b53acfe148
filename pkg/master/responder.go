// Package master implements the Master's UDP responder: a single
// socket loop that stamps receive/send timestamps as close to the
// wire as possible and echoes a reply for every well-formed request.
package master

import (
	"errors"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/clocksync/clocksync/internal/metrics"
	"github.com/clocksync/clocksync/pkg/masterclock"
	"github.com/clocksync/clocksync/pkg/wire"
)

// Responder binds one UDP socket and answers every well-formed
// request with the Master's current reference time. It is
// single-threaded per socket by construction: Serve never spawns a
// goroutine per packet, since T2/T3 stamping must bracket the minimum
// work possible to keep asymmetry small.
type Responder struct {
	clock *masterclock.Clock
	log   *zap.Logger
	mtrcs *metrics.Registry

	conn *net.UDPConn

	lastClientAddr atomic.Value // net.Addr
}

// New creates a Responder bound to addr (e.g. ":12345"). The socket is
// opened immediately so a caller can detect bind failures before
// calling Serve. mtrcs may be nil, in which case no metrics are
// recorded.
func New(clock *masterclock.Clock, log *zap.Logger, mtrcs *metrics.Registry, addr string) (*Responder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Responder{
		clock: clock,
		log:   log,
		mtrcs: mtrcs,
		conn:  conn,
	}, nil
}

// Close stops Serve's read loop by closing the underlying socket.
func (r *Responder) Close() error {
	return r.conn.Close()
}

// LocalAddr returns the socket's bound local address, useful when addr
// was passed with an ephemeral port for tests.
func (r *Responder) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// ClientConnected reports whether any Slave has ever sent a request to
// this Responder, and the address it last saw one from.
func (r *Responder) ClientConnected() (net.Addr, bool) {
	v := r.lastClientAddr.Load()
	if v == nil {
		return nil, false
	}
	return v.(net.Addr), true
}

// Serve runs the receive loop until the socket is closed. It never
// returns an error on a clean Close; any other read error is logged
// and the loop continues.
func (r *Responder) Serve() {
	// One byte of slack so an over-long datagram reads as len > wire.Len
	// and Decode rejects it instead of seeing a truncated packet.
	buf := make([]byte, wire.Len+1)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf[:cap(buf)])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Error("failed to read datagram", zap.Error(err))
			continue
		}

		t2 := r.clock.Now()
		if r.mtrcs != nil {
			r.mtrcs.PacketsReceived.Inc()
		}

		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			r.log.Debug("dropped malformed datagram", zap.Error(err), zap.Stringer("from", addr))
			continue
		}
		if pkt.Flags != wire.FlagRequest {
			continue
		}

		r.lastClientAddr.Store(addr)

		t3 := r.clock.Now()
		reply := wire.Encode(wire.FlagReply, pkt.Sequence, pkt.T1, wire.Seconds(t2), wire.Seconds(t3))

		if _, err := r.conn.WriteToUDP(reply, addr); err != nil {
			r.log.Error("failed to write reply", zap.Error(err), zap.Stringer("to", addr))
			continue
		}
	}
}
