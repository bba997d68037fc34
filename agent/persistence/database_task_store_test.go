package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/a2aengine/types"
)

// =============================================================================
// 🧪 DatabaseTaskStore 事务测试
// =============================================================================

func newMockTaskStore(t *testing.T) (*DatabaseTaskStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewDatabaseTaskStore(gormDB, false)
	require.NoError(t, err)
	return store, mock
}

func taskRow(t *testing.T, task *types.Task) *sqlmock.Rows {
	t.Helper()
	payload, err := json.Marshal(task)
	require.NoError(t, err)
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "context_id", "state", "payload", "created_at", "updated_at"}).
		AddRow(task.ID, task.ContextID, string(task.Status.State), string(payload), now, now)
}

func TestDatabaseTaskStore_UpdateRetriesDeadlock(t *testing.T) {
	store, mock := newMockTaskStore(t)
	task := &types.Task{ID: "task-1", ContextID: "ctx-1", Status: types.TaskStatus{State: types.TaskStateSubmitted}}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "a2a_tasks"`).
		WillReturnError(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "a2a_tasks" .*FOR UPDATE`).WillReturnRows(taskRow(t, task))
	mock.ExpectExec(`UPDATE "a2a_tasks" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := store.UpdateStatus(context.Background(), &types.TaskStatusUpdateEvent{
		TaskID:    "task-1",
		ContextID: "ctx-1",
		Status:    types.TaskStatus{State: types.TaskStateWorking},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateWorking, updated.Status.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseTaskStore_UpdateDoesNotRetryOtherErrors(t *testing.T) {
	store, mock := newMockTaskStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "a2a_tasks"`).WillReturnError(errors.New("permission denied for table a2a_tasks"))
	mock.ExpectRollback()

	_, err := store.UpdateStatus(context.Background(), &types.TaskStatusUpdateEvent{
		TaskID:    "task-1",
		ContextID: "ctx-1",
		Status:    types.TaskStatus{State: types.TaskStateWorking},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
