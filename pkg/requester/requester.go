// Package requester implements the Slave's UDP exchange client: it owns
// the outbound socket and the sequence counter, and turns one
// request/reply round trip into a sample.Sample.
package requester

import (
	"errors"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clocksync/clocksync/internal/metrics"
	"github.com/clocksync/clocksync/pkg/sample"
	"github.com/clocksync/clocksync/pkg/softclock"
	"github.com/clocksync/clocksync/pkg/wire"
)

// ErrTimeout is returned when no reply arrives before the deadline.
var ErrTimeout = errors.New("requester: exchange timed out")

// ErrMismatch is returned when the deadline is reached after seeing
// only replies for other sequence numbers.
var ErrMismatch = errors.New("requester: no reply matched the request sequence")

const maxSequence = 65535

// Requester issues sync requests against a fixed Master address and
// matches replies by sequence number. It is the only mutator of the
// sequence counter, so a single Requester must not be shared across
// concurrent callers without external serialization.
type Requester struct {
	conn    *net.UDPConn
	clock   *softclock.Clock
	log     *zap.Logger
	mtrcs   *metrics.Registry
	timeout time.Duration

	seq uint16
}

// New dials masterAddr over UDP and returns a Requester whose exchanges
// wait up to timeout for a reply; a non-positive timeout uses the
// default of 1s. mtrcs may be nil, in which case Exchange skips metric
// recording.
func New(masterAddr string, clock *softclock.Clock, log *zap.Logger, mtrcs *metrics.Registry, timeout time.Duration) (*Requester, error) {
	addr, err := net.ResolveUDPAddr("udp", masterAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Requester{conn: conn, clock: clock, log: log, mtrcs: mtrcs, timeout: timeout}, nil
}

// Close releases the underlying socket.
func (r *Requester) Close() error {
	return r.conn.Close()
}

// Exchange performs one request/reply round trip: it sends a request
// stamped with T1, awaits a matching reply within the configured
// timeout, and returns the resulting sample. The sequence counter
// advances and wraps at 65535 regardless of outcome.
func (r *Requester) Exchange() (sample.Sample, error) {
	seq := r.seq
	r.seq++

	t1 := r.clock.Now()
	req := wire.Encode(wire.FlagRequest, seq, wire.Seconds(t1), 0, 0)
	if _, err := r.conn.Write(req); err != nil {
		return sample.Sample{}, err
	}
	if r.mtrcs != nil {
		r.mtrcs.RequestsSent.Inc()
	}

	deadline := time.Now().Add(r.timeout)
	if err := r.conn.SetReadDeadline(deadline); err != nil {
		return sample.Sample{}, err
	}

	// One byte of slack so an over-long datagram reads as len > wire.Len
	// and Decode rejects it instead of seeing a truncated packet.
	buf := make([]byte, wire.Len+1)
	sawAnyReply := false
	for {
		n, err := r.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				if r.mtrcs != nil {
					r.mtrcs.Timeouts.Inc()
				}
				if sawAnyReply {
					return sample.Sample{}, ErrMismatch
				}
				return sample.Sample{}, ErrTimeout
			}
			if errors.Is(err, syscall.ECONNREFUSED) {
				// An ICMP port-unreachable for the request; no reply
				// can come, so keep waiting out the deadline.
				continue
			}
			return sample.Sample{}, err
		}

		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			r.log.Debug("dropped malformed reply", zap.Error(err))
			continue
		}
		if pkt.Flags != wire.FlagReply {
			continue
		}
		if pkt.Sequence != seq {
			sawAnyReply = true
			continue
		}

		t4 := r.clock.Now()
		if r.mtrcs != nil {
			r.mtrcs.RepliesMatched.Inc()
		}
		return sample.New(seq, pkt.T1, pkt.T2, pkt.T3, wire.Seconds(t4)), nil
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
