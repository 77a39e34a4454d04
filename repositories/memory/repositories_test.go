package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUploadRepository()

	upload := models.NewUpload("a.txt", "text/plain", 3)
	require.NoError(t, repo.Create(ctx, upload))

	t.Run("returns copies", func(t *testing.T) {
		got, err := repo.GetByID(ctx, upload.ID)
		require.NoError(t, err)
		got.Name = "changed"

		again, err := repo.GetByID(ctx, upload.ID)
		require.NoError(t, err)
		assert.Equal(t, "a.txt", again.Name)
	})

	t.Run("update stores the mutation", func(t *testing.T) {
		updated, err := repo.Update(ctx, upload.ID, func(u *models.Upload) error {
			u.Status = models.UploadAnalyzed
			u.Analysis = json.RawMessage(`{"ok":true}`)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, models.UploadAnalyzed, updated.Status)
		assert.False(t, updated.UpdatedAt.Before(upload.UpdatedAt))

		stored, err := repo.GetByID(ctx, upload.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(stored.Analysis))
	})

	t.Run("failed mutation is discarded", func(t *testing.T) {
		_, err := repo.Update(ctx, upload.ID, func(u *models.Upload) error {
			u.Status = models.UploadProcessed
			return errors.New("nope")
		})
		require.Error(t, err)

		stored, err := repo.GetByID(ctx, upload.ID)
		require.NoError(t, err)
		assert.Equal(t, models.UploadAnalyzed, stored.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "file_missing")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		_, err = repo.Update(ctx, "file_missing", func(*models.Upload) error { return nil })
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestTaskRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		task := models.NewTask(title, nil, "")
		task.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, task))
	}

	tasks, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "third", tasks[0].Title)
	assert.Equal(t, "first", tasks[2].Title)
}

func TestJobRepository_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()
	job := models.NewJob("", "")
	require.NoError(t, repo.Create(ctx, job))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, job.ID, func(j *models.Job) error {
				j.Result = append(j.Result, 'x')
				return nil
			})
		}()
	}
	wg.Wait()

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Result, 50)
}

func TestTransactionManager(t *testing.T) {
	ctx := context.Background()
	tm := NewTransactionManager()

	tx, err := tm.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, ctx, tx.Context())
	assert.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())

	boom := errors.New("boom")
	err = tm.InTransaction(ctx, func(context.Context, repositories.Transaction) error { return boom })
	assert.ErrorIs(t, err, boom)

	repos := NewRepositories()
	assert.NotNil(t, repos.Uploads)
	assert.NotNil(t, repos.Transactions)
}
