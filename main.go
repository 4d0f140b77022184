package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/Abrham-amplitude/solana-ticket/internal/config"
	"github.com/Abrham-amplitude/solana-ticket/internal/db"
	"github.com/Abrham-amplitude/solana-ticket/internal/handler"
	"github.com/Abrham-amplitude/solana-ticket/internal/ledger"
	"github.com/Abrham-amplitude/solana-ticket/internal/listener"
	"github.com/Abrham-amplitude/solana-ticket/internal/middleware"
	"github.com/Abrham-amplitude/solana-ticket/internal/monitoring"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

const collectInterval = 30 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "", "配置文件路径（默认在 . 和 $HOME/.solticket 中查找 config.yaml）")
	pflag.Parse()

	// 读取配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger := utils.NewLogger("solticket", cfg.App.LogLevel)
	if cfg.App.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	opts := cfg.LedgerOptions()
	opts.Observe = metrics.ObserveRPC
	client := ledger.NewClient(cfg.Solana.RPCURL, opts, logger)

	// 票据登记表：配置了 MySQL 就落库，否则只在内存中
	var store services.Store = services.NewMemoryStore()
	if cfg.MySQL.Enabled() {
		gormStore, err := db.Open(cfg.MySQL)
		if err != nil {
			log.Fatal("MySQL 连接失败: ", err)
		}
		store = gormStore
		logger.Info("数据库初始化完成 %s:%d/%s", cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
	} else {
		logger.Warn("未配置 MySQL，票据登记表和托管私钥只保存在内存中")
	}

	engine := services.NewEngine(client, cfg.EngineConfig(),
		services.WithStore(store),
		services.WithLogger(logger),
		services.WithMetrics(metrics),
	)

	trusted, err := cfg.TrustedNets()
	if err != nil {
		log.Fatal(err)
	}
	hopts := []handler.Option{
		handler.WithMetricsHandler(metrics.Handler()),
		handler.WithTrustedNets(trusted...),
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		limiter := middleware.NewRateLimiter(rdb, "airdrop", cfg.App.AirdropLimitPerHour, time.Hour, logger)
		hopts = append(hopts, handler.WithAirdropLimit(limiter.Middleware()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化监听器（在后台 goroutine 中运行）
	if cfg.Solana.WSURL != "" {
		wsClient, err := ws.Connect(ctx, cfg.Solana.WSURL)
		if err != nil {
			log.Fatal("WebSocket 连接失败: ", err)
		}
		defer wsClient.Close()
		w := listener.New(
			listener.NewWSSource(wsClient, rpc.CommitmentType(cfg.Solana.Commitment)),
			client, store, logger,
			listener.WithEvents(metrics),
			listener.WithRefreshInterval(cfg.Solana.WatchRefresh),
		)
		go w.Run(ctx)
	}
	go metrics.RunCollector(ctx, store, collectInterval)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(metrics))
	handler.RegisterRoutes(r, handler.New(engine, logger, hopts...))

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.App.Port),
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// 不设 WriteTimeout：交易确认可能等到 confirm_timeout
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("服务器启动于端口 %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("服务器启动失败: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("正在关闭服务器")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭失败: %v", err)
	}
}
