package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	commonmqtt "gasguard/common/mqtt"
	"gasguard/internal/consumer"
	"gasguard/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GasGuard server",
	Long:  `Start the HTTP API and, when MQTT_ENABLED=true, the MQTT readings consumer.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gasguard: %w", err)
	}
	defer a.Close()

	// 启动时执行一次引导（迁移、消费者组）；失败不阻止启动，首次发现请求会重试
	if err := a.bootstrap.Run(ctx); err != nil {
		logger.Warn("Bootstrap failed, will retry on first discovery request", zap.Error(err))
	}

	var readingsConsumer *consumer.ReadingsConsumer
	var mqttClient *commonmqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = commonmqtt.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, readings accepted over HTTP only", zap.Error(err))
		} else {
			readingsConsumer = consumer.NewReadingsConsumer(mqttClient, a.ingest, cfg.MQTT.Topic, cfg.MQTT.QoS, logger)
			if err := readingsConsumer.Start(); err != nil {
				logger.Warn("Failed to start MQTT readings consumer", zap.Error(err))
				readingsConsumer = nil
			}
		}
	}

	if cfg.Retention.Interval > 0 {
		go a.pruner.Run(ctx, cfg.Retention.Interval, cfg.Retention.MaxReadings)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := service.NewServer(cfg.HTTP.Addr, a.router, logger)
	serveErr := srv.Run(sigCtx)
	if serveErr != nil {
		logger.Error("HTTP server failed", zap.Error(serveErr))
	} else {
		logger.Info("Shutdown signal received")
	}
	cancel()

	if readingsConsumer != nil {
		_ = readingsConsumer.Stop()
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}

	// 等待后台通知写完审计再关闭连接
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := a.ingest.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Pending notifications did not finish", zap.Error(err))
	}

	return serveErr
}
