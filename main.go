package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hhdaadws/atxp2api/common"
	"github.com/hhdaadws/atxp2api/logger"
	"github.com/hhdaadws/atxp2api/model"
	"github.com/hhdaadws/atxp2api/relay"
	"github.com/hhdaadws/atxp2api/router"
	"github.com/hhdaadws/atxp2api/service"
)

func main() {
	_ = godotenv.Load()

	var (
		port     = flag.Int("p", 8741, "listen port")
		host     = flag.String("host", "0.0.0.0", "listen address")
		accounts = flag.String("a", "results/accounts.json", "accounts file")
		apiKey   = flag.String("api-key", os.Getenv("API_KEY"), "bearer key for all routes except /status (empty disables auth)")
		debug    = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	logger.Setup(*debug)

	store := model.NewStore(*accounts)
	accs, err := store.Load()
	if err != nil {
		logger.LogError(nil, "load accounts: %v", err)
		os.Exit(1)
	}
	if len(accs) == 0 {
		logger.LogError(nil, "no usable accounts in %s", *accounts)
		os.Exit(1)
	}
	logger.LogInfo(nil, "loaded %d accounts", len(accs))

	pool := service.NewAccountPool(accs)
	tokens := service.NewTokenManager(store, accs, common.BaseURL())
	rly := relay.NewRelay(pool, tokens, common.BaseURL())

	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.SetRouter(engine, pool, rly, *apiKey)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", *host, *port),
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if *apiKey != "" {
			logger.LogInfo(nil, "API key auth enabled")
		}
		logger.LogInfo(nil, "atxp2api listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.LogError(nil, "server error: %v", err)
		os.Exit(1)
	}
}
