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
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clocksync/clocksync/internal/config"
	"github.com/clocksync/clocksync/internal/control"
	"github.com/clocksync/clocksync/internal/daemonctl"
	"github.com/clocksync/clocksync/internal/discovery"
	"github.com/clocksync/clocksync/internal/logging"
	"github.com/clocksync/clocksync/internal/metrics"
	"github.com/clocksync/clocksync/internal/wsobserver"
	"github.com/clocksync/clocksync/pkg/monitor"
	"github.com/clocksync/clocksync/pkg/pid"
	"github.com/clocksync/clocksync/pkg/requester"
	"github.com/clocksync/clocksync/pkg/softclock"
	"github.com/clocksync/clocksync/pkg/syncctl"
)

const daemonName = "clocksync-saved"

func main() {
	cfg := config.Default("slave")
	config.RegisterFlags(flag.CommandLine, &cfg.Ambient)
	flag.Parse()

	loaded, err := config.Load("slave", cfg.Ambient.ConfigPath)
	if err != nil {
		log.Fatalf("clocksync-slave: %v", err)
	}
	loaded.Ambient = cfg.Ambient
	cfg = loaded

	daemonCtx := daemonctl.Context(daemonName)
	child, err := daemonctl.Reborn(daemonCtx, cfg.Ambient.NoDaemon)
	if err != nil {
		if errors.Is(err, daemonctl.ErrStopped) {
			fmt.Println("Successfully stopped clocksync-slave daemon.")
			return
		}
		log.Fatalf("clocksync-slave: %v", err)
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
	logger := logging.New("slave")
	defer logger.Sync()

	mtrcs := metrics.New()

	masterAddr := net.JoinHostPort(cfg.Network.MasterAddr, fmt.Sprintf("%d", cfg.Network.SyncPort))
	if cfg.Ambient.Discover {
		lookupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		found, err := discovery.Lookup(lookupCtx, logger.Named("discovery"))
		cancel()
		if err != nil {
			logger.Warn("mDNS discovery failed, falling back to configured master address",
				zap.Error(err), zap.String("master_addr", masterAddr))
		} else {
			masterAddr = found
		}
	}

	clock := softclock.New(cfg.PID.MaxRateAdjustment)
	pidCfg := pid.DefaultConfig()
	pidCfg.Kp, pidCfg.Ki, pidCfg.Kd = cfg.PID.Kp, cfg.PID.Ki, cfg.PID.Kd
	pidCfg.IntegralMin, pidCfg.IntegralMax = -cfg.PID.IntegralLimit, cfg.PID.IntegralLimit
	pidCfg.MaxRate = cfg.PID.MaxRateAdjustment
	pidCfg.LargeOffsetReset = cfg.PID.LargeOffsetReset
	pidCtl := pid.New(pidCfg)

	req, err := requester.New(masterAddr, clock, logger.Named("requester"), mtrcs, cfg.SyncTimeout())
	if err != nil {
		logger.Fatal("failed to create UDP requester", zap.Error(err))
	}
	defer req.Close()

	mon := monitor.New(monitor.DefaultHistoryLimit, cfg.Sync.SyncThresholdSeconds)
	wsHub := wsobserver.NewHub(logger.Named("ws"))
	mon.Subscribe(wsHub)

	syncCfg := syncctl.Config{
		SyncThreshold:        cfg.Sync.SyncThresholdSeconds,
		LargeOffset:          cfg.Sync.LargeOffsetSeconds,
		MasterOfflineTimeout: cfg.MasterOfflineTimeout(),
		SyncInterval:         cfg.SyncInterval(),
		RoundsPerSync:        cfg.Sync.RoundsPerSync,
		ConsecutiveFailLimit: syncctl.DefaultConsecutiveFailLimit,
	}
	ctl := syncctl.New(syncCfg, req, clock, pidCtl, mon, mtrcs, logger.Named("syncctl"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl.Start(ctx)
	defer ctl.Stop()

	rpcSrv := control.NewRPCServer(cfg.Ambient.RPCSocket, ctx, ctl, mon, nil)
	go func() {
		if err := rpcSrv.Listen(); err != nil {
			logger.Error("control rpc server exited", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	httpHandler := control.NewHTTPHandler(ctx, ctl, mon, nil)
	control.SetupRouter(router, httpHandler)
	router.GET("/ws", wsHub.ServeWS)
	go func() {
		if err := router.Run(cfg.Ambient.HTTPAddr); err != nil {
			logger.Error("status http server exited", zap.Error(err))
		}
	}()

	logger.Info("slave started",
		zap.String("master_addr", masterAddr),
		zap.String("rpc_socket", cfg.Ambient.RPCSocket),
		zap.String("http_addr", cfg.Ambient.HTTPAddr),
	)

	waitForSignal()
	logger.Info("slave shutting down")
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
