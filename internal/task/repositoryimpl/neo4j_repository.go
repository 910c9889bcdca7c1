package repositoryimpl

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kazz187/gantt/internal/task"
	"github.com/kazz187/gantt/pkg/cerr"
)

// Neo4jRepository keeps every task as a :Task node. Dependencies are stored
// as an ordered list property because their order is significant; parent
// links are a plain parent_id property for the same reason.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ task.TransactionalRepository = (*Neo4jRepository)(nil)

func NewNeo4jRepository(driver neo4j.DriverWithContext, database string) *Neo4jRepository {
	return &Neo4jRepository{driver: driver, database: database}
}

func (r *Neo4jRepository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// EnsureSchema creates the uniqueness constraint on task ids.
func (r *Neo4jRepository) EnsureSchema(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "CREATE CONSTRAINT task_id IF NOT EXISTS FOR (t:Task) REQUIRE t.id IS UNIQUE", nil)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to create task constraint: %w", err))
	}
	return nil
}

func (r *Neo4jRepository) Create(ctx context.Context, t *task.Task) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"OPTIONAL MATCH (existing:Task {id: $id}) "+
				"WITH existing WHERE existing IS NULL "+
				"CREATE (t:Task) SET t = $props "+
				"RETURN t.id AS id",
			map[string]any{"id": t.ID, "props": toProps(t)},
		)
		if err != nil {
			return nil, err
		}
		return res.Next(ctx), res.Err()
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to create task %s: %w", t.ID, err))
	}
	if !created.(bool) {
		return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
	}
	return nil
}

func (r *Neo4jRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Task {id: $id}) RETURN t", map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		return nodeToTask(res.Record())
	})
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read task %s: %w", id, err))
	}
	t, _ := result.(*task.Task)
	if t == nil {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return t, nil
}

func (r *Neo4jRepository) List(ctx context.Context, projectID string) ([]*task.Task, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task) WHERE $project_id = '' OR t.project_id = $project_id "+
				"RETURN t ORDER BY t.created_at, t.id",
			map[string]any{"project_id": projectID},
		)
		if err != nil {
			return nil, err
		}
		tasks := []*task.Task{}
		for res.Next(ctx) {
			t, err := nodeToTask(res.Record())
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
		return tasks, res.Err()
	})
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list tasks: %w", err))
	}
	tasks := result.([]*task.Task)
	// created_at is compared as text by Cypher; re-sort on the parsed values.
	task.SortTasks(tasks)
	return tasks, nil
}

func (r *Neo4jRepository) Update(ctx context.Context, t *task.Task) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	matched, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return updateTask(ctx, tx, t)
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update task %s: %w", t.ID, err))
	}
	if !matched.(bool) {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *Neo4jRepository) Delete(ctx context.Context, id string) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return deleteTasks(ctx, tx, []string{id})
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete task %s: %w", id, err))
	}
	if deleted.(int) == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

// ApplyDelete writes the scrubbed dependency lists and removes the whole
// subtree in one transaction.
func (r *Neo4jRepository) ApplyDelete(ctx context.Context, plan *task.DeletePlan) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, t := range plan.Updated {
			if _, err := updateTask(ctx, tx, t); err != nil {
				return nil, err
			}
		}
		return deleteTasks(ctx, tx, plan.Removed)
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to apply cascade delete: %w", err))
	}
	return nil
}

func updateTask(ctx context.Context, tx neo4j.ManagedTransaction, t *task.Task) (bool, error) {
	res, err := tx.Run(ctx,
		"MATCH (t:Task {id: $id}) SET t = $props RETURN t.id AS id",
		map[string]any{"id": t.ID, "props": toProps(t)},
	)
	if err != nil {
		return false, err
	}
	return res.Next(ctx), res.Err()
}

func deleteTasks(ctx context.Context, tx neo4j.ManagedTransaction, ids []string) (int, error) {
	res, err := tx.Run(ctx,
		"MATCH (t:Task) WHERE t.id IN $ids DETACH DELETE t",
		map[string]any{"ids": ids},
	)
	if err != nil {
		return 0, err
	}
	summary, err := res.Consume(ctx)
	if err != nil {
		return 0, err
	}
	return summary.Counters().NodesDeleted(), nil
}

func toProps(t *task.Task) map[string]any {
	deps := make([]string, len(t.Dependencies))
	copy(deps, t.Dependencies)
	return map[string]any{
		"id":           t.ID,
		"project_id":   t.ProjectID,
		"name":         t.Name,
		"description":  t.Description,
		"start_date":   t.StartDate.Format(task.DateLayout),
		"end_date":     t.EndDate.Format(task.DateLayout),
		"progress":     t.Progress,
		"color":        t.Color,
		"dependencies": deps,
		"is_milestone": t.IsMilestone,
		"parent_id":    t.ParentID,
		"assigned_to":  t.AssignedTo,
		"priority":     string(t.Priority),
		"created_at":   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func nodeToTask(record *neo4j.Record) (*task.Task, error) {
	v, ok := record.Get("t")
	if !ok {
		return nil, fmt.Errorf("record has no task node")
	}
	node, ok := v.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected task value %T", v)
	}
	return fromProps(node.Props)
}

func fromProps(props map[string]any) (*task.Task, error) {
	str := func(key string) string {
		s, _ := props[key].(string)
		return s
	}
	t := &task.Task{
		ID:          str("id"),
		ProjectID:   str("project_id"),
		Name:        str("name"),
		Description: str("description"),
		Color:       str("color"),
		ParentID:    str("parent_id"),
		AssignedTo:  str("assigned_to"),
		Priority:    task.Priority(str("priority")),
	}
	switch p := props["progress"].(type) {
	case float64:
		t.Progress = p
	case int64:
		t.Progress = float64(p)
	}
	t.IsMilestone, _ = props["is_milestone"].(bool)

	deps, _ := props["dependencies"].([]any)
	t.Dependencies = make([]string, 0, len(deps))
	for _, d := range deps {
		if s, ok := d.(string); ok {
			t.Dependencies = append(t.Dependencies, s)
		}
	}

	var err error
	if t.StartDate, err = task.ParseDate(str("start_date")); err != nil {
		return nil, fmt.Errorf("task %s: start_date: %w", t.ID, err)
	}
	if t.EndDate, err = task.ParseDate(str("end_date")); err != nil {
		return nil, fmt.Errorf("task %s: end_date: %w", t.ID, err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, str("created_at")); err != nil {
		return nil, fmt.Errorf("task %s: created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, str("updated_at")); err != nil {
		return nil, fmt.Errorf("task %s: updated_at: %w", t.ID, err)
	}
	return t, nil
}
