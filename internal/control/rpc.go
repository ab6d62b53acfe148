// Package control exposes the monitor snapshot and start/stop/adjust
// commands to out-of-process tools, over both a net/rpc unix socket
// service and a small HTTP API.
package control

import (
	"context"
	"errors"
	"log"
	"net"
	"net/rpc"
	"os"

	"github.com/clocksync/clocksync/pkg/masterclock"
	"github.com/clocksync/clocksync/pkg/monitor"
	"github.com/clocksync/clocksync/pkg/syncctl"
	"github.com/clocksync/clocksync/pkg/wire"
)

// RPCServer exposes monitor snapshots and controller commands over a
// Unix domain socket. Its exported methods follow the net/rpc
// signature convention: one ignorable argument in, one reply out.
type RPCServer struct {
	Socket string

	ctl    *syncctl.Controller
	mon    *monitor.Monitor
	master *masterclock.Clock // nil on a Slave process

	baseCtx context.Context
}

// NewRPCServer builds an RPCServer bound to a sync controller and its
// monitor. master is nil for the Slave process, which has no
// reference time source to adjust.
func NewRPCServer(socket string, ctx context.Context, ctl *syncctl.Controller, mon *monitor.Monitor, master *masterclock.Clock) *RPCServer {
	return &RPCServer{Socket: socket, baseCtx: ctx, ctl: ctl, mon: mon, master: master}
}

// Listen registers the server and accepts RPC connections on the
// configured Unix socket until the socket is closed. A stale socket
// file from a previous run is removed first.
func (s *RPCServer) Listen() error {
	srv := rpc.NewServer()
	if err := srv.Register(s); err != nil {
		return err
	}

	if err := os.Remove(s.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	l, err := net.Listen("unix", s.Socket)
	if err != nil {
		return err
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("control rpc: accept error: %v", err)
			continue
		}
		go srv.ServeConn(conn)
	}
}

// FetchSnapshot returns the monitor's current history/state/metrics.
func (s *RPCServer) FetchSnapshot(_ int, reply *monitor.Snapshot) error {
	*reply = s.mon.Snapshot()
	return nil
}

// Start launches the sync controller's background cycle loop. It
// returns an error when called against a Master process, which has no
// sync controller of its own.
func (s *RPCServer) Start(_ int, reply *bool) error {
	if s.ctl == nil {
		return errors.New("control rpc: Start is only valid on the Slave")
	}
	s.ctl.Start(s.baseCtx)
	*reply = true
	return nil
}

// Stop halts the sync controller's background cycle loop. It returns
// an error when called against a Master process.
func (s *RPCServer) Stop(_ int, reply *bool) error {
	if s.ctl == nil {
		return errors.New("control rpc: Stop is only valid on the Slave")
	}
	s.ctl.Stop()
	*reply = true
	return nil
}

// SetReferenceTime rebases the Master's reference time source. It
// returns an error when called against a Slave process.
func (s *RPCServer) SetReferenceTime(arg string, reply *bool) error {
	if s.master == nil {
		return errors.New("control rpc: SetReferenceTime is only valid on the Master")
	}
	*reply = s.master.SetReferenceTime(arg)
	return nil
}

// AdjustReferenceTime applies an incremental offset to the Master's
// reference time source. It returns an error when called against a
// Slave process.
func (s *RPCServer) AdjustReferenceTime(arg float64, reply *float64) error {
	if s.master == nil {
		return errors.New("control rpc: AdjustReferenceTime is only valid on the Master")
	}
	*reply = wire.Seconds(s.master.AdjustReferenceTime(secondsToDuration(arg)))
	return nil
}
