package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clocksync/clocksync/internal/config"
	"github.com/clocksync/clocksync/internal/control"
	"github.com/clocksync/clocksync/internal/daemonctl"
	"github.com/clocksync/clocksync/internal/discovery"
	"github.com/clocksync/clocksync/internal/logging"
	"github.com/clocksync/clocksync/internal/metrics"
	"github.com/clocksync/clocksync/internal/wsobserver"
	"github.com/clocksync/clocksync/pkg/master"
	"github.com/clocksync/clocksync/pkg/masterclock"
	"github.com/clocksync/clocksync/pkg/monitor"
)

const daemonName = "clocksync-masterd"

func main() {
	cfg := config.Default("master")
	config.RegisterFlags(flag.CommandLine, &cfg.Ambient)
	flag.Parse()

	loaded, err := config.Load("master", cfg.Ambient.ConfigPath)
	if err != nil {
		log.Fatalf("clocksync-master: %v", err)
	}
	loaded.Ambient = cfg.Ambient
	cfg = loaded

	daemonCtx := daemonctl.Context(daemonName)
	child, err := daemonctl.Reborn(daemonCtx, cfg.Ambient.NoDaemon)
	if err != nil {
		if errors.Is(err, daemonctl.ErrStopped) {
			fmt.Println("Successfully stopped clocksync-master daemon.")
			return
		}
		log.Fatalf("clocksync-master: %v", err)
	}
	if child != nil {
		fmt.Printf("Daemon process (%s, %d) started successfully.\n", daemonName, child.Pid)
		return
	}
	if !cfg.Ambient.NoDaemon {
		defer daemonCtx.Release()
		daemonctl.MustLogStart(daemonName)
	}

	run(cfg)
}

func run(cfg config.Config) {
	logger := logging.New("master")
	defer logger.Sync()

	mtrcs := metrics.New()
	clock := masterclock.New()
	mon := monitor.New(monitor.DefaultHistoryLimit, cfg.Sync.SyncThresholdSeconds)

	wsHub := wsobserver.NewHub(logger.Named("ws"))
	mon.Subscribe(wsHub)

	addr := net.JoinHostPort("0.0.0.0", fmt.Sprintf("%d", cfg.Network.SyncPort))
	responder, err := master.New(clock, logger.Named("responder"), mtrcs, addr)
	if err != nil {
		logger.Fatal("failed to start UDP responder", zap.Error(err))
	}
	defer responder.Close()

	go responder.Serve()
	logger.Info("master responder listening", zap.String("addr", responder.LocalAddr().String()))

	var adv *discovery.Advertiser
	if cfg.Ambient.Discover {
		adv, err = discovery.Advertise(daemonName, cfg.Network.SyncPort, logger.Named("discovery"))
		if err != nil {
			logger.Warn("mDNS advertisement failed, continuing without it", zap.Error(err))
		} else {
			defer adv.Shutdown()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcSrv := control.NewRPCServer(cfg.Ambient.RPCSocket, ctx, nil, mon, clock)
	go func() {
		if err := rpcSrv.Listen(); err != nil {
			logger.Error("control rpc server exited", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	httpHandler := control.NewHTTPHandler(ctx, nil, mon, clock)
	control.SetupRouter(router, httpHandler)
	router.GET("/ws", wsHub.ServeWS)
	go func() {
		if err := router.Run(cfg.Ambient.HTTPAddr); err != nil {
			logger.Error("status http server exited", zap.Error(err))
		}
	}()

	logger.Info("master started",
		zap.String("rpc_socket", cfg.Ambient.RPCSocket),
		zap.String("http_addr", cfg.Ambient.HTTPAddr),
	)

	waitForSignal()
	logger.Info("master shutting down")
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
