// Command server exposes backtest results over HTTP: JSON metric reports
// with policy verdicts, Arrow IPC trade dumps, and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"intraday-backtest/services/analytics"
	"intraday-backtest/services/arrowexport"
	"intraday-backtest/services/decision"
	"intraday-backtest/services/store"
)

type server struct {
	trades     store.TradeStore
	thresholds decision.Thresholds
	exporter   *arrowexport.Exporter
	logger     *zap.Logger
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	storeDir := flag.String("store-dir", "./backtest_out", "Directory of JSONL trades; if empty, use ClickHouse")
	chAddr := flag.String("ch-addr", "localhost:9000", "ClickHouse native address")
	chDB := flag.String("ch-db", "backtest", "ClickHouse database")
	chUser := flag.String("ch-user", "backtest", "ClickHouse user")
	chPass := flag.String("ch-pass", "backtest123", "ClickHouse password")
	thresholdsPath := flag.String("thresholds", "", "Threshold YAML; defaults apply when empty")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var trades store.TradeStore
	if *storeDir != "" {
		fs, err := store.NewFileStore(*storeDir)
		if err != nil {
			logger.Fatal("open file store", zap.Error(err))
		}
		trades = fs
	} else {
		ch, err := store.NewClickHouse(ctx, store.ClickHouseConfig{
			Addr:     *chAddr,
			Database: *chDB,
			Username: *chUser,
			Password: *chPass,
		}, logger)
		if err != nil {
			logger.Fatal("connect clickhouse", zap.Error(err))
		}
		defer ch.Close()
		trades = ch
	}

	thresholds := decision.DefaultThresholds()
	if *thresholdsPath != "" {
		thresholds, err = decision.LoadThresholds(*thresholdsPath)
		if err != nil {
			logger.Fatal("load thresholds", zap.Error(err))
		}
	}

	s := &server{
		trades:     trades,
		thresholds: thresholds,
		exporter:   arrowexport.New(),
		logger:     logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/strategies/:name/report", s.handleReport)
	router.GET("/strategies/:name/trades.arrow", s.handleArrow)

	httpServer := &http.Server{Addr: *addr, Handler: router}
	go func() {
		logger.Info("http server listening", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func (s *server) handleReport(c *gin.Context) {
	strategy := c.Param("name")
	records, err := s.trades.LoadTrades(c.Request.Context(), strategy)
	if err != nil {
		s.logger.Error("load trades", zap.String("strategy", strategy), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}
	partial := c.Query("partial") == "true"
	rep := analytics.Analyze(strategy, records, partial)

	resp := gin.H{"report": rep}
	outcome, err := decision.Evaluate(rep, s.thresholds)
	switch {
	case errors.Is(err, decision.ErrPartialReport):
		resp["verdict"] = nil
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	default:
		resp["verdict"] = outcome
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleArrow(c *gin.Context) {
	strategy := c.Param("name")
	records, err := s.trades.LoadTrades(c.Request.Context(), strategy)
	if err != nil {
		s.logger.Error("load trades", zap.String("strategy", strategy), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trades for strategy"})
		return
	}
	data, err := s.exporter.Export(records)
	if err != nil {
		s.logger.Error("arrow export", zap.String("strategy", strategy), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_trades.arrow", strategy))
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}
