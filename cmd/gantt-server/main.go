package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sourcegraph/conc/pool"

	server "github.com/kazz187/gantt/internal"
	"github.com/kazz187/gantt/internal/actionlog"
	actionlogrepo "github.com/kazz187/gantt/internal/actionlog/repositoryimpl"
	"github.com/kazz187/gantt/internal/config"
	"github.com/kazz187/gantt/internal/event"
	"github.com/kazz187/gantt/internal/eventbus"
	"github.com/kazz187/gantt/internal/note"
	noterepo "github.com/kazz187/gantt/internal/note/repositoryimpl"
	"github.com/kazz187/gantt/internal/project"
	projectrepo "github.com/kazz187/gantt/internal/project/repositoryimpl"
	"github.com/kazz187/gantt/internal/task"
	taskrepo "github.com/kazz187/gantt/internal/task/repositoryimpl"
	"github.com/kazz187/gantt/pkg/clog"
	"github.com/kazz187/gantt/pkg/panicerr"
	"github.com/kazz187/gantt/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		store, err = storage.NewLocalStorage(env.BaseDir)
	}
	if err != nil {
		return err
	}

	// Setup repositories
	projectRepo := projectrepo.NewYAMLRepository(store)
	actionLogRepo := actionlogrepo.NewYAMLRepository(store)
	noteRepo := noterepo.NewYAMLRepository(store)
	var taskRepo task.Repository = taskrepo.NewYAMLRepository(store)
	if env.StorageEnv.Type == "neo4j" {
		driver, err := neo4j.NewDriverWithContext(env.Neo4jURI, neo4j.BasicAuth(env.Neo4jUser, env.Neo4jPassword, ""))
		if err != nil {
			return err
		}
		defer driver.Close(context.Background())
		if err := driver.VerifyConnectivity(ctx); err != nil {
			return err
		}
		repo := taskrepo.NewNeo4jRepository(driver, env.Neo4jDatabase)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		taskRepo = repo
	}

	if _, err := project.EnsureDefault(ctx, projectRepo, time.Now()); err != nil {
		return err
	}

	bus := eventbus.New()
	recorder := actionlog.NewRecorder(actionLogRepo, bus)
	taskService := task.NewService(taskRepo, recorder, task.WithProjects(projectRepo))
	janitor := actionlog.NewJanitor(actionLogRepo, env.Retention(), env.CleanupInterval)

	srv := server.NewServer(
		env,
		project.NewServer(projectRepo, taskService, noteRepo),
		task.NewServer(taskService, projectRepo),
		note.NewServer(noteRepo, projectRepo),
		actionlog.NewServer(actionLogRepo),
		event.NewServer(bus),
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(panicerr.SafeContext(func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe(ctx) }()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		slog.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}))
	p.Go(panicerr.SafeContext(janitor.Run))

	return p.Wait()
}
