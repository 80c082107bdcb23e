package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ButyrinIA/forum/internal/client"
	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/viewstate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	app := &cli.Command{
		Name:      "watch",
		Usage:     "Следить за вопросом и выводить каждое изменение",
		ArgsUsage: "<qid>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Value: "http://localhost:8000",
				Usage: "базовый URL сервера форума",
			},
			&cli.StringFlag{
				Name:  "username",
				Usage: "имя пользователя для первого запроса",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			qid := c.Args().First()
			if qid == "" {
				return fmt.Errorf("не указан id вопроса")
			}
			return watch(ctx, c.String("server"), qid, c.String("username"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		log.Printf("Ошибка: %v", err)
		os.Exit(1)
	}
}

func watch(ctx context.Context, base, qid, username string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket"

	socket, err := client.Dial(ctx, u.String(), logger)
	if err != nil {
		return err
	}
	defer socket.Close()

	api := client.NewAPI(base, nil)
	view := viewstate.New(qid, logger)
	err = view.Mount(ctx, socket, func(ctx context.Context) (*models.QuestionDetail, error) {
		return api.GetQuestion(ctx, qid, username)
	})
	if err != nil {
		return err
	}
	defer view.Unmount()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-socket.Done():
			return socket.Err()
		case <-view.Changed():
			if q := view.Snapshot(); q != nil {
				logger.Info("question",
					zap.String("title", q.Title),
					zap.Int("views", q.Views),
					zap.Int("upVotes", len(q.UpVotes)),
					zap.Int("downVotes", len(q.DownVotes)),
					zap.Int("answers", len(q.Answers)),
					zap.Int("comments", len(q.Comments)),
				)
			}
		}
	}
}
