package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"

	"livepoll/internal/retry"
)

// TarantoolOptions holds the connection settings for NewTarantool.
type TarantoolOptions struct {
	Addr     string
	User     string
	Password string
}

// NewTarantool connects to Tarantool, retrying while the instance starts.
// Once connected the driver reconnects on its own.
func NewTarantool(ctx context.Context, o TarantoolOptions, log *zap.Logger) (*tarantool.Connection, error) {
	opts := tarantool.Opts{
		User:          o.User,
		Pass:          o.Password,
		Timeout:       2 * time.Second,
		Reconnect:     time.Second,
		MaxReconnects: 0,
	}

	var conn *tarantool.Connection
	err := retry.Do(ctx, retry.Startup, func(ctx context.Context) error {
		c, err := tarantool.Connect(o.Addr, opts)
		if err != nil {
			if c != nil {
				c.Close()
			}
			return err
		}
		if _, err := c.Ping(); err != nil {
			c.Close()
			return err
		}
		conn = c
		return nil
	}, func(attempt int, err error) {
		log.Warn("tarantool not ready", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("connect to tarantool %s: %w", o.Addr, err)
	}
	return conn, nil
}
