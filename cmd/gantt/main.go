package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kazz187/gantt/internal/actionlog"
	actionlogrepo "github.com/kazz187/gantt/internal/actionlog/repositoryimpl"
	"github.com/kazz187/gantt/internal/config"
	projectrepo "github.com/kazz187/gantt/internal/project/repositoryimpl"
	"github.com/kazz187/gantt/internal/task"
	taskrepo "github.com/kazz187/gantt/internal/task/repositoryimpl"
	"github.com/kazz187/gantt/pkg/clog"
	"github.com/kazz187/gantt/pkg/storage"
)

var (
	app = kingpin.New("gantt", "Offline administration of the Gantt task store")

	criticalPathCmd     = app.Command("critical-path", "Show the critical path of a project")
	criticalPathProject = criticalPathCmd.Arg("project", "Project ID").Required().String()

	validateCmd     = app.Command("validate", "Check which dependencies a task may take")
	validateProject = validateCmd.Arg("project", "Project ID").Required().String()
	validateTask    = validateCmd.Arg("task", "Task ID").Required().String()
	validateDeps    = validateCmd.Arg("dependencies", "Candidate predecessor IDs").Strings()

	deleteCmd    = app.Command("delete", "Delete a task and all of its subtasks")
	deleteTask   = deleteCmd.Arg("task", "Task ID").Required().String()
	deleteDryRun = deleteCmd.Flag("dry-run", "Print the changes without applying them").Bool()

	promoteCmd  = app.Command("promote", "Turn a subtask into a root task")
	promoteTask = promoteCmd.Arg("task", "Task ID").Required().String()

	statsCmd     = app.Command("stats", "Show project statistics")
	statsProject = statsCmd.Arg("project", "Project ID").Required().String()

	pruneLogsCmd  = app.Command("prune-logs", "Delete action logs older than the retention window")
	pruneLogsDays = pruneLogsCmd.Flag("days", "Retention in days (defaults to GANTT_LOG_RETENTION_DAYS)").Int()
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	if err := run(command); err != nil {
		app.Errorf("%s: %s", command, err)
		os.Exit(1)
	}
}

// run executes command. Errors are returned rather than fatal so the storage
// and signal handlers are released on every path.
func run(command string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(
		clog.NewTextHandler(os.Stderr, clog.WithLevel(env.SlogLevel())),
	)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := open(ctx, env)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.close()

	switch command {
	case criticalPathCmd.FullCommand():
		return runCriticalPath(ctx, st.tasks, *criticalPathProject)
	case validateCmd.FullCommand():
		return runValidate(ctx, st.tasks, *validateProject, *validateTask, *validateDeps)
	case deleteCmd.FullCommand():
		if *deleteDryRun {
			return runDeleteDryRun(ctx, st.tasks, *deleteTask)
		}
		return runDelete(ctx, st.tasks, *deleteTask)
	case promoteCmd.FullCommand():
		return runPromote(ctx, st.tasks, *promoteTask)
	case statsCmd.FullCommand():
		return runStats(ctx, st.tasks, *statsProject)
	case pruneLogsCmd.FullCommand():
		retention := env.Retention()
		if *pruneLogsDays > 0 {
			retention = time.Duration(*pruneLogsDays) * 24 * time.Hour
		}
		return runPruneLogs(ctx, st.logs, retention)
	}
	return fmt.Errorf("unknown command %q", command)
}

type stores struct {
	tasks *task.Service
	logs  actionlog.Repository
	close func()
}

// open wires the same storage the server uses. Mutations made here are
// recorded in the action log like any other.
func open(ctx context.Context, env *config.Env) (*stores, error) {
	var (
		store storage.Storage
		err   error
	)
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		store, err = storage.NewLocalStorage(env.BaseDir)
	}
	if err != nil {
		return nil, err
	}

	logs := actionlogrepo.NewYAMLRepository(store)
	st := &stores{logs: logs, close: func() {}}
	var repo task.Repository = taskrepo.NewYAMLRepository(store)
	if env.StorageEnv.Type == "neo4j" {
		driver, err := neo4j.NewDriverWithContext(env.Neo4jURI, neo4j.BasicAuth(env.Neo4jUser, env.Neo4jPassword, ""))
		if err != nil {
			return nil, err
		}
		st.close = func() { _ = driver.Close(context.Background()) }
		repo = taskrepo.NewNeo4jRepository(driver, env.Neo4jDatabase)
	}
	st.tasks = task.NewService(repo, actionlog.NewRecorder(logs, nil),
		task.WithProjects(projectrepo.NewYAMLRepository(store)))
	return st, nil
}

func runCriticalPath(ctx context.Context, svc *task.Service, projectID string) error {
	path, err := svc.CriticalPath(ctx, projectID)
	if err != nil {
		return err
	}
	if len(path) == 0 {
		fmt.Println(faint("no tasks"))
		return nil
	}
	fmt.Printf("%s (%d tasks, last to first)\n", bold("critical path"), len(path))
	for i, t := range path {
		fmt.Printf("%3d. %s  %s  %s..%s\n", i+1, yellow(t.ID), t.Name,
			t.StartDate.Format(task.DateLayout), t.EndDate.Format(task.DateLayout))
	}
	return nil
}

func runValidate(ctx context.Context, svc *task.Service, projectID, taskID string, deps []string) error {
	valid, err := svc.ValidateDependencies(ctx, projectID, taskID, deps)
	if err != nil {
		return err
	}
	for _, id := range valid {
		fmt.Printf("%s %s\n", green("ok     "), id)
	}
	for _, id := range task.DroppedDependencies(deps, valid) {
		fmt.Printf("%s %s\n", red("dropped"), id)
	}
	return nil
}

func runDeleteDryRun(ctx context.Context, svc *task.Service, taskID string) error {
	t, err := svc.Get(ctx, taskID)
	if err != nil {
		return err
	}
	tasks, err := svc.List(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	snap := task.NewSnapshot(tasks)
	plan := task.PlanDelete(snap, taskID)
	printPlan(snap, plan)
	fmt.Println(faint("dry run: nothing was changed"))
	return nil
}

func runDelete(ctx context.Context, svc *task.Service, taskID string) error {
	t, err := svc.Get(ctx, taskID)
	if err != nil {
		return err
	}
	tasks, err := svc.List(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	snap := task.NewSnapshot(tasks)
	plan, err := svc.Delete(ctx, taskID)
	if err != nil {
		return err
	}
	printPlan(snap, plan)
	return nil
}

func printPlan(snap *task.Snapshot, plan *task.DeletePlan) {
	for _, id := range plan.Removed {
		name := ""
		if t, ok := snap.Get(id); ok {
			name = t.Name
		}
		fmt.Printf("%s %s  %s\n", red("delete"), id, name)
	}
	for _, updated := range plan.Updated {
		before, _ := snap.Get(updated.ID)
		diff, err := dependencyDiff(before, updated)
		if err != nil {
			slog.Warn("failed to render dependency diff", "task_id", updated.ID, "error", err)
			continue
		}
		fmt.Print(colorDiff(diff))
	}
}

func runPromote(ctx context.Context, svc *task.Service, taskID string) error {
	t, err := svc.Promote(ctx, taskID)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s  %s\n", green("promoted"), t.ID, t.Name)
	return nil
}

func runStats(ctx context.Context, svc *task.Service, projectID string) error {
	st, err := svc.Stats(ctx, projectID)
	if err != nil {
		return err
	}
	rows := []struct {
		label string
		value any
	}{
		{"tasks", st.TotalTasks},
		{"completed", st.CompletedTasks},
		{"in progress", st.InProgressTasks},
		{"overdue", st.OverdueTasks},
		{"not started", st.NotStartedTasks},
		{"milestones", st.Milestones},
		{"completion", fmt.Sprintf("%.1f%%", st.CompletionRate)},
		{"avg progress", fmt.Sprintf("%.1f%%", st.AverageProgress)},
		{"span", fmt.Sprintf("%s..%s (%d days)", st.StartDate, st.EndDate, st.ProjectDuration)},
		{"critical path", st.CriticalPathLength},
	}
	for _, r := range rows {
		fmt.Printf("%-14s %v\n", bold(r.label), r.value)
	}
	return nil
}

func runPruneLogs(ctx context.Context, logs actionlog.Repository, retention time.Duration) error {
	n, err := actionlog.NewJanitor(logs, retention, time.Hour).Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d action log entries\n", n)
	return nil
}
