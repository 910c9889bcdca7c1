package cerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/gantt/pkg/storage"
)

func TestCodeString(t *testing.T) {
	assert.Equal(t, "ok", OK.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "failed_precondition", FailedPrecondition.String())
}

func TestIsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(NotFound, "task not found", nil))
	assert.True(t, IsCode(err, NotFound))
	assert.False(t, IsCode(err, Internal))
	assert.Equal(t, NotFound, CodeOf(err))
	assert.Equal(t, Unknown, CodeOf(errors.New("plain")))
	assert.Equal(t, OK, CodeOf(nil))
}

func TestStackCapturedOnlyForErrorLevel(t *testing.T) {
	assert.Empty(t, NewError(NotFound, "missing", nil).Stack)
	assert.NotEmpty(t, NewError(Internal, "boom", nil).Stack)
}

func TestWrapStorageReadError(t *testing.T) {
	err := WrapStorageReadError("task", fmt.Errorf("tasks/x.yaml: %w", storage.ErrNotFound))
	assert.True(t, IsCode(err, NotFound))

	err = WrapStorageReadError("task", errors.New("disk on fire"))
	assert.True(t, IsCode(err, Internal))
}

func TestMiddlewareRendersErrorWithDetails(t *testing.T) {
	h := NewJSONResponseChiMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := NewError(FailedPrecondition, "task is already a root task", nil)
		SetJSONError(r.Context(), e.AddDetailMessageWithCode("task 01A has no parent", "task.promote.root"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks/01A/promote", nil))

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	var body struct {
		Code    string           `json:"code"`
		Message string           `json:"message"`
		Details []map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "failed_precondition", body.Code)
	assert.Equal(t, "task is already a root task", body.Message)
	require.Len(t, body.Details, 1)
	assert.Equal(t, "task.promote.root", body.Details[0]["ruleId"])
}

func TestMiddlewareRendersResponse(t *testing.T) {
	h := NewJSONResponseChiMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetJSONResponseWithStatus(r.Context(), http.StatusCreated, map[string]string{"id": "01A"})
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/projects", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"01A"}`, rec.Body.String())
}
