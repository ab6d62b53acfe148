package control

import (
	"context"
	"net/rpc"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clocksync/clocksync/pkg/masterclock"
	"github.com/clocksync/clocksync/pkg/monitor"
	"github.com/clocksync/clocksync/pkg/pid"
	"github.com/clocksync/clocksync/pkg/requester"
	"github.com/clocksync/clocksync/pkg/softclock"
	"github.com/clocksync/clocksync/pkg/syncctl"
)

func newTestRPCServer(t *testing.T, withCtl, withMaster bool) (*RPCServer, string) {
	t.Helper()

	mon := monitor.New(10, 0)

	var ctl *syncctl.Controller
	if withCtl {
		clock := softclock.New(0)
		req, err := requester.New("127.0.0.1:1", clock, zap.NewNop(), nil, 0)
		if err != nil {
			t.Fatalf("requester.New failed: %v", err)
		}
		ctl = syncctl.New(syncctl.DefaultConfig(), req, clock, pid.New(pid.DefaultConfig()), mon, nil, zap.NewNop())
	}

	var master *masterclock.Clock
	if withMaster {
		master = masterclock.New()
	}

	socket := filepath.Join(t.TempDir(), "control.sock")
	s := NewRPCServer(socket, context.Background(), ctl, mon, master)
	return s, socket
}

func TestRPCServerFetchSnapshot(t *testing.T) {
	s, socket := newTestRPCServer(t, false, false)
	go s.Listen()
	waitForSocket(t, socket)

	client, err := rpc.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	var snap monitor.Snapshot
	if err := client.Call("RPCServer.FetchSnapshot", 0, &snap); err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if snap.State != monitor.Idle {
		t.Errorf("got state %v, want IDLE on a fresh monitor", snap.State)
	}
}

func TestRPCServerStartRejectedWithoutController(t *testing.T) {
	s, socket := newTestRPCServer(t, false, false)
	go s.Listen()
	waitForSocket(t, socket)

	client, err := rpc.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	var reply bool
	if err := client.Call("RPCServer.Start", 0, &reply); err == nil {
		t.Error("expected Start to fail against a controller-less (Master) server")
	}
}

func TestRPCServerSetReferenceTimeSucceedsWithMaster(t *testing.T) {
	s, socket := newTestRPCServer(t, false, true)
	go s.Listen()
	waitForSocket(t, socket)

	client, err := rpc.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	var reply bool
	if err := client.Call("RPCServer.SetReferenceTime", "2024-01-01 00:00:00", &reply); err != nil {
		t.Fatalf("expected SetReferenceTime to succeed with a Master clock, got %v", err)
	}
	if !reply {
		t.Error("expected a successful reference time parse")
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c, err := rpc.Dial("unix", path); err == nil {
			c.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
