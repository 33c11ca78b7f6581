// Package redis provides the client used for idempotency-key replay
// caching. When no address is configured an embedded instance runs
// in-process, so the default setup needs no external services.
package redis

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/paymocklabs/paymock/internal/config"
)

type Client struct {
	*goredis.Client

	embedded *miniredis.Miniredis
}

func NewClient(cfg config.Config, log *zap.Logger) (*Client, error) {
	rcfg := cfg.Redis

	if rcfg.Addr == "" {
		mini, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		log.Named("redis").Info("running embedded redis", zap.String("addr", mini.Addr()))
		return &Client{
			Client:   goredis.NewClient(&goredis.Options{Addr: mini.Addr()}),
			embedded: mini,
		}, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})
	return &Client{Client: client}, nil
}

func (c *Client) Close() error {
	err := c.Client.Close()
	if c.embedded != nil {
		c.embedded.Close()
	}
	return err
}

var Module = fx.Module("redis",
	fx.Provide(NewClient),
	fx.Invoke(func(lc fx.Lifecycle, c *Client) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return c.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return c.Close()
			},
		})
	}),
)
