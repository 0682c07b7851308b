package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chatsync/internal/api"
	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/handler"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/metrics"
	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/startup"
	"github.com/chatsync/internal/ws"
)

func main() {
	logger.SetPrefix("agent")
	token := flag.String("token", "", "session token (overrides CHAT_TOKEN)")
	noConnect := flag.Bool("no-connect", false, "do not open the chat socket on start")
	flag.Parse()

	logger.Info("starting chat agent")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	if *token != "" {
		cfg.Token = *token
	}

	session := model.NewSession(cfg.Token)
	if cfg.Token != "" && session.Expired(time.Now()) {
		logger.Warnf("session token %s has expired, the server will reject it", middleware.MaskToken(cfg.Token))
	}

	storeCtx, storeCancel := context.WithTimeout(context.Background(), 60*time.Second)
	store, err := startup.OpenOutboxStore(storeCtx, cfg, "")
	storeCancel()
	if err != nil {
		logger.Errorf("outbox store: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("outbox store close: %v", err)
		}
	}()

	m := metrics.New()
	eng := engine.New(cfg.EngineOptions(), session, engine.Deps{
		Dialer: &ws.Dialer{
			URL:            cfg.WebSocketURL(),
			WriteWait:      cfg.WSWriteTimeout,
			PongWait:       cfg.WSPongTimeout,
			MaxMessageSize: cfg.WSMaxMessageSize,
		},
		API:     api.NewClient(cfg.APIBaseURL, session.Token),
		Store:   store,
		Metrics: m,
	})

	engCtx, engCancel := context.WithCancel(context.Background())
	var engWg sync.WaitGroup
	engWg.Add(1)
	go func() {
		defer engWg.Done()
		if err := eng.Run(engCtx); err != nil {
			logger.Errorf("engine: %v", err)
		}
	}()

	if cfg.Token != "" && !*noConnect {
		logger.Infof("connecting to %s as %s", cfg.WebSocketURL(), middleware.MaskToken(cfg.Token))
		if err := eng.Connect(""); err != nil {
			logger.Errorf("connect: %v", err)
		}
	} else {
		logger.Info("no token: waiting for POST /api/connect")
	}

	srv := &http.Server{
		Addr: cfg.ControlAddr,
		Handler: handler.NewRouter(handler.RouterConfig{
			Engine:             eng,
			Metrics:            m,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RatePerSec:         cfg.ControlRatePerSec,
			MaxUploadSize:      cfg.MaxUploadSize,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("control API listening on %s", cfg.ControlAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	engCancel()
	engWg.Wait()
	logger.Info("engine stopped")
	srvWg.Wait()
	if exitCode != 0 {
		store.Close()
		os.Exit(exitCode)
	}
}
