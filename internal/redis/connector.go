package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/hostwatch/internal/logger"
)

// ConnectOptions describes the Redis backing the inventory and how long to
// wait for it at startup.
type ConnectOptions struct {
	Addr     string `validate:"required"` // ex: "localhost:6379"
	User     string // optional
	Password string // optional
	RedisDB  int    `validate:"min=0"`

	DialTimeout  time.Duration `validate:"gt=0"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
	PoolSize     int           `validate:"min=0"` // 0 keeps the go-redis default

	ConnectTimeout time.Duration `validate:"gt=0"`                        // whole startup budget (ex: 30s)
	RetryInterval  time.Duration `validate:"gt=0"`                        // first wait, doubled per attempt (ex: 2s)
	MaxWait        time.Duration `validate:"gt=0,gtefield=RetryInterval"` // cap on one wait (ex: 10s)
	PingTimeout    time.Duration `validate:"gt=0"`                        // one attempt (ex: 5s)
	WarnThreshold  int           `validate:"min=0"`                       // attempts logged at warn before error
}

var optionsValidator = validator.New(validator.WithRequiredStructEnabled())

func (o ConnectOptions) validate() error {
	err := optionsValidator.Struct(o)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid redis options: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid redis options: %s", strings.Join(msgs, "; "))
}

// New opens the inventory's Redis client and blocks until it answers a PING
// or ConnectTimeout runs out. On failure the client is closed.
func New(opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	c := &connector{
		client: client,
		opts:   opts,
		logger: log.With(logger.String("addr", opts.Addr)),
		wait: &backoff.Backoff{
			Min:    opts.RetryInterval,
			Max:    opts.MaxWait,
			Factor: 2,
			Jitter: true,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := c.await(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type connector struct {
	client *redis.Client
	opts   ConnectOptions
	logger logger.Logger
	wait   *backoff.Backoff
}

// await pings until Redis answers or ctx expires.
func (c *connector) await(ctx context.Context) error {
	c.logger.Info("connecting to redis", logger.Duration("timeout", c.opts.ConnectTimeout))
	start := time.Now()

	for attempt := 1; ; attempt++ {
		err := c.ping(ctx)
		if err == nil {
			fields := []logger.Field{logger.Int("attempts", attempt), logger.Duration("elapsed", time.Since(start))}
			if attempt > 1 {
				c.logger.Warn("connected to redis after retry", fields...)
			} else {
				c.logger.Info("connected to redis", fields...)
			}
			return nil
		}

		next := c.wait.Duration()
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Error("redis unavailable, giving up",
				logger.Int("attempts", attempt),
				logger.Error(err))
			return fmt.Errorf("redis unavailable at %s after %d attempts (timeout: %v): %w",
				c.opts.Addr, attempt, c.opts.ConnectTimeout, err)
		case <-timer.C:
		}

		c.logFailure(ctx, attempt, next, err)
	}
}

func (c *connector) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingTimeout)
	defer cancel()
	return c.client.Ping(pingCtx).Err()
}

// logFailure escalates from warn to error once the attempt count passes the
// threshold or less than ten seconds of the budget remain.
func (c *connector) logFailure(ctx context.Context, attempt int, waited time.Duration, err error) {
	fields := []logger.Field{
		logger.Int("attempt", attempt),
		logger.Duration("waited", waited),
		logger.Error(err),
	}
	if deadline, ok := ctx.Deadline(); ok {
		fields = append(fields, logger.Duration("remaining", time.Until(deadline)))
		if time.Until(deadline) < 10*time.Second {
			c.logger.Error("redis still down, startup timeout approaching", fields...)
			return
		}
	}
	if attempt <= c.opts.WarnThreshold {
		c.logger.Warn("redis connection failed, retrying", fields...)
		return
	}
	c.logger.Error("redis still unavailable", fields...)
}
