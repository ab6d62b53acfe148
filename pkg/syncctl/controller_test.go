package syncctl

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clocksync/clocksync/pkg/monitor"
	"github.com/clocksync/clocksync/pkg/pid"
	"github.com/clocksync/clocksync/pkg/requester"
	"github.com/clocksync/clocksync/pkg/softclock"
	"github.com/clocksync/clocksync/pkg/wire"
)

// fakeMaster answers every request with a reply implying the given
// fixed offset in seconds (T2 = T3 = T1 + offset).
func fakeMaster(t *testing.T, offset float64) *net.UDPConn {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	go func() {
		buf := make([]byte, wire.Len)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			pkt, err := wire.Decode(buf[:n])
			if err != nil {
				continue
			}
			t2 := pkt.T1 + offset
			reply := wire.Encode(wire.FlagReply, pkt.Sequence, pkt.T1, t2, t2)
			conn.WriteToUDP(reply, addr)
		}
	}()
	return conn
}

func newTestController(t *testing.T, masterOffset float64) (*Controller, *net.UDPConn) {
	master := fakeMaster(t, masterOffset)

	clock := softclock.New(1.0)
	req, err := requester.New(master.LocalAddr().String(), clock, zap.NewNop(), nil, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("requester.New failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SyncInterval = 50 * time.Millisecond
	cfg.RoundsPerSync = 2

	mon := monitor.New(100, cfg.SyncThreshold)
	pidCtl := pid.New(pid.DefaultConfig())
	ctl := New(cfg, req, clock, pidCtl, mon, nil, zap.NewNop())
	return ctl, master
}

func TestControllerSyncsToSmallOffset(t *testing.T) {
	ctl, master := newTestController(t, 0.0005)
	defer master.Close()
	defer ctl.req.Close()

	ctl.runCycle(context.Background())

	if ctl.State() != monitor.Synced {
		t.Errorf("got state %v, want Synced", ctl.State())
	}
}

func TestControllerStepsOnLargeOffset(t *testing.T) {
	ctl, master := newTestController(t, 60.0)
	defer master.Close()
	defer ctl.req.Close()

	before := ctl.clock.Now()
	ctl.runCycle(context.Background())
	after := ctl.clock.Now()

	if ctl.State() != monitor.LargeOffset {
		t.Errorf("got state %v, want LargeOffset", ctl.State())
	}
	if after.Sub(before) < 59*time.Second {
		t.Errorf("expected a ~60s step, got delta %v", after.Sub(before))
	}
	if ctl.clock.RateAdjustment() != 0 {
		t.Errorf("expected rate reset to 0 after a step, got %v", ctl.clock.RateAdjustment())
	}
}

func TestControllerRoundEmptyIncrementsFailures(t *testing.T) {
	clock := softclock.New(1.0)
	// bind and immediately close so nothing answers
	dead, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := dead.LocalAddr().String()
	dead.Close()

	req, err := requester.New(addr, clock, zap.NewNop(), nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("requester.New failed: %v", err)
	}
	defer req.Close()

	cfg := DefaultConfig()
	cfg.RoundsPerSync = 2
	cfg.ConsecutiveFailLimit = 1

	mon := monitor.New(100, cfg.SyncThreshold)
	pidCtl := pid.New(pid.DefaultConfig())
	ctl := New(cfg, req, clock, pidCtl, mon, nil, zap.NewNop())

	ctl.runCycle(context.Background())

	if ctl.State() != monitor.Error {
		t.Errorf("got state %v, want Error after exceeding the consecutive fail limit", ctl.State())
	}
}

func TestStartStopTransitionsState(t *testing.T) {
	ctl, master := newTestController(t, 0.0)
	defer master.Close()
	defer ctl.req.Close()

	ctl.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	ctl.Stop()

	if ctl.State() != monitor.Idle {
		t.Errorf("got state %v, want Idle after Stop", ctl.State())
	}
}
