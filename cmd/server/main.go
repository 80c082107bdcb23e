package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ButyrinIA/forum/internal/config"
	"github.com/ButyrinIA/forum/internal/events"
	"github.com/ButyrinIA/forum/internal/forum"
	"github.com/ButyrinIA/forum/internal/logging"
	"github.com/ButyrinIA/forum/internal/metrics"
	"github.com/ButyrinIA/forum/internal/realtime"
	"github.com/ButyrinIA/forum/internal/realtime/redisrelay"
	"github.com/ButyrinIA/forum/internal/server"
	"github.com/ButyrinIA/forum/internal/session"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/ButyrinIA/forum/internal/storage/memory"
	"github.com/ButyrinIA/forum/internal/storage/postgres"
	"github.com/redis/rueidis"
	"github.com/sourcegraph/conc"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	app := &cli.Command{
		Name:  "server",
		Usage: "Сервер форума: REST API и сокет событий",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "config.yaml",
				Usage: "путь к файлу конфигурации",
			},
			&cli.StringFlag{
				Name:  "storage",
				Value: "memory",
				Usage: "тип хранилища: memory или postgres",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("storage"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		log.Printf("Ошибка: %v", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath, storageType string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openStorage(ctx, storageType, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	collector := metrics.New("forum")
	hub := realtime.NewHub(logger, collector, cfg.Socket.SendBuffer)

	var background conc.WaitGroup
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer func() {
		stopRelay()
		background.Wait()
	}()

	var publisher events.Publisher = hub
	if cfg.Redis.Addr != "" {
		client, err := rueidis.NewClient(rueidis.ClientOption{
			InitAddress: []string{cfg.Redis.Addr},
			Password:    cfg.Redis.Password,
		})
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		defer client.Close()

		relay := redisrelay.New(client, cfg.Redis.Channel, hub, logger)
		background.Go(func() {
			if err := relay.Run(relayCtx); err != nil {
				logger.Error("Ретранслятор Redis остановлен", zap.Error(err))
			}
		})
		publisher = relay
		logger.Info("События публикуются через Redis", zap.String("addr", cfg.Redis.Addr))
	}

	service := forum.New(store, publisher, collector)
	tokens := session.NewTokens(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	srv := server.New(cfg, service, hub, tokens, collector, logger)

	err = srv.Run(ctx)
	hub.Close()
	return err
}

func openStorage(ctx context.Context, storageType string, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch storageType {
	case "postgres":
		logger.Info("Инициализация хранилища PostgreSQL")
		store, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("не удалось инициализировать PostgreSQL: %w", err)
		}
		return store, nil
	case "memory":
		logger.Info("Инициализация хранилища Memory")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %s", storageType)
	}
}
