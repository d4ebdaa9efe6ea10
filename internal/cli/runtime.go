package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-client/internal/app"
	"quiz-client/internal/config"
	"quiz-client/internal/gateway"
	"quiz-client/internal/infra/file"
	"quiz-client/internal/infra/memory"
	"quiz-client/internal/infra/postgres"
	"quiz-client/internal/infra/redis"
	"quiz-client/internal/logger"
	"quiz-client/internal/store"
)

// runtime is the composition root shared by every command.
type runtime struct {
	cfg     config.Config
	log     *slog.Logger
	in      io.Reader
	out     io.Writer
	closers []func()
}

func newRuntime(cmd *cobra.Command, opts *rootOptions) (*runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.storage != "" {
		cfg.Storage.Driver = opts.storage
	}
	return &runtime{
		cfg: cfg,
		log: logger.New(os.Stderr, cfg.Log.Format, cfg.Log.Level),
		in:  cmd.InOrStdin(),
		out: cmd.OutOrStdout(),
	}, nil
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// backend opens the raw key-value backend selected by the storage driver.
func (r *runtime) backend(ctx context.Context) (store.Backend, error) {
	switch r.cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.NewBackend(), nil
	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     r.cfg.Redis.Addr,
			Password: r.cfg.Redis.Password,
			DB:       r.cfg.Redis.DB,
		})
		b := redis.NewBackend(client, r.cfg.Redis.Prefix, config.TTLDuration(r.cfg.Redis.TTL, 0))
		if err := b.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", r.cfg.Redis.Addr, err)
		}
		r.closers = append(r.closers, func() { _ = client.Close() })
		return b, nil
	case config.DriverPostgres:
		pool, err := pgxpool.Connect(ctx, r.cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		r.closers = append(r.closers, pool.Close)
		return postgres.NewBackend(pool), nil
	case config.DriverFile, "":
		path := r.cfg.Storage.Path
		if path == "" {
			path = file.DefaultPath()
		}
		return file.NewBackend(path), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", r.cfg.Storage.Driver)
	}
}

func (r *runtime) gateway() *gateway.Client {
	timeout := config.TTLDuration(r.cfg.API.Timeout, 15*time.Second)
	return gateway.NewClient(r.cfg.API.BaseURL,
		gateway.WithHTTPClient(&http.Client{Timeout: timeout}),
		gateway.WithLogger(r.log))
}

func (r *runtime) pushClient() (*gateway.PushClient, error) {
	url := r.cfg.API.PushURL
	if url == "" {
		var err error
		if url, err = gateway.PushURL(r.cfg.API.BaseURL, "/ws"); err != nil {
			return nil, err
		}
	}
	return gateway.NewPushClient(url,
		gateway.WithRetryDelay(config.TTLDuration(r.cfg.API.RetryDelay, 3*time.Second)),
		gateway.WithPushLogger(r.log)), nil
}

// restore opens storage and rebuilds the participant's session from it.
func (r *runtime) restore(ctx context.Context, gw app.Gateway) (*app.Session, *app.Persister, error) {
	backend, err := r.backend(ctx)
	if err != nil {
		return nil, nil, err
	}
	kv := store.New(backend, r.cfg.StorageTTL(), store.WithLogger(r.log))
	persister := app.NewPersister(kv, r.log)

	opts := []app.Option{
		app.WithDuration(r.cfg.QuizDuration()),
		app.WithLogger(r.log),
	}
	if snap, ok := persister.Load(ctx); ok {
		opts = append(opts, app.WithState(snap.State()))
		r.log.Debug("session restored", logger.Username(snap.Username), logger.Phase(snap.Phase))
	}
	session := app.NewSession(gw, opts...)
	r.closers = append(r.closers, session.Close)
	return session, persister, nil
}
