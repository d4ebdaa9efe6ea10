package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
	"quiz-client/internal/infra/postgres"
	infraredis "quiz-client/internal/infra/redis"
	"quiz-client/internal/logger"
	"quiz-client/internal/store"
)

func TestPostgresStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	applied, err := postgres.Migrate(ctx, pgURL)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected one migration, got %v", applied)
	}
	if applied, err = postgres.Migrate(ctx, pgURL); err != nil || len(applied) != 0 {
		t.Fatalf("second migrate should be a no-op, got %v %v", applied, err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	assertSessionSurvivesRestart(t, ctx, postgres.NewBackend(pool))
}

func TestRedisStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	backend := infraredis.NewBackend(client, "quiz:", time.Hour)
	if err := backend.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	assertSessionSurvivesRestart(t, ctx, backend)

	ttl, err := client.TTL(ctx, "quiz:"+app.StorageKey).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected native ttl within an hour, got %v", ttl)
	}
}

// assertSessionSurvivesRestart saves a session through backend and restores
// it with a fresh persister, as a second process would.
func assertSessionSurvivesRestart(t *testing.T, ctx context.Context, backend store.Backend) {
	t.Helper()
	kv := store.New(backend, time.Hour, store.WithLogger(logger.Discard()))
	saved := app.State{
		Identity:     "alice",
		Phase:        domain.PhaseFinished,
		Answers:      map[int]string{1: "A"},
		Score:        1,
		AttemptsUsed: 2,
		CanRetry:     true,
	}
	app.NewPersister(kv, logger.Discard()).Save(ctx, saved)

	reopened := store.New(backend, time.Hour, store.WithLogger(logger.Discard()))
	snap, ok := app.NewPersister(reopened, logger.Discard()).Load(ctx)
	if !ok {
		t.Fatalf("snapshot not found after restart")
	}
	got := snap.State()
	if got.Identity != "alice" || got.Phase != domain.PhaseFinished || got.AttemptsUsed != 2 || got.Answers[1] != "A" {
		t.Fatalf("restored %+v", got)
	}

	app.NewPersister(reopened, logger.Discard()).Clear(ctx)
	if _, ok, err := backend.Get(ctx, app.StorageKey); err != nil || ok {
		t.Fatalf("expected entry cleared, ok=%v err=%v", ok, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
