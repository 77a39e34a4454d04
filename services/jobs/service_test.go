package jobs

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/repositories"
	"github.com/mozaika228/hephaestus/repositories/memory"
	"github.com/mozaika228/hephaestus/services"
	"github.com/mozaika228/hephaestus/services/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAnalyzer struct {
	uploads repositories.UploadRepository
	result  files.Analysis
	gate    chan struct{}
	calls   atomic.Int32
}

func (a *fakeAnalyzer) RunAnalysis(ctx context.Context, _ *models.Upload) files.Analysis {
	a.calls.Add(1)
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
		}
	}
	return a.result
}

func (a *fakeAnalyzer) RecordAnalysis(ctx context.Context, id string, analysis files.Analysis) (*models.Upload, error) {
	return a.uploads.Update(ctx, id, func(u *models.Upload) error {
		if analysis.OK {
			u.Status = models.UploadAnalyzed
		} else {
			u.Status = models.UploadAnalysisFailed
		}
		return nil
	})
}

func newTestService(t *testing.T, result files.Analysis) (*Service, *repositories.Repositories, *fakeAnalyzer) {
	t.Helper()
	repos := memory.NewRepositories()
	analyzer := &fakeAnalyzer{uploads: repos.Uploads, result: result}
	svc := NewService(repos, analyzer, zaptest.NewLogger(t), WithDelay(5*time.Millisecond))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, repos, analyzer
}

func waitFinished(t *testing.T, svc *Service, id string) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = svc.Get(context.Background(), id)
		return err == nil && job.Finished()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestService_Create(t *testing.T) {
	svc, _, _ := newTestService(t, files.Analysis{OK: true})

	job, err := svc.Create(context.Background(), CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "analysis", job.Kind)
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Nil(t, job.Result)
}

func TestService_Outcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("no payload", func(t *testing.T) {
		svc, _, analyzer := newTestService(t, files.Analysis{OK: true})

		job, err := svc.Create(ctx, CreateRequest{Kind: "cleanup"})
		require.NoError(t, err)

		done := waitFinished(t, svc, job.ID)
		assert.Equal(t, models.JobDone, done.Status)
		assert.JSONEq(t, `{"message":"No payload"}`, string(done.Result))
		assert.Zero(t, analyzer.calls.Load())
	})

	t.Run("missing upload", func(t *testing.T) {
		svc, _, _ := newTestService(t, files.Analysis{OK: true})

		job, err := svc.Create(ctx, CreateRequest{UploadID: "file_missing"})
		require.NoError(t, err)

		done := waitFinished(t, svc, job.ID)
		assert.Equal(t, models.JobFailed, done.Status)
		assert.JSONEq(t, `{"error":"Upload not found"}`, string(done.Result))
	})

	tests := []struct {
		name       string
		analysis   files.Analysis
		wantJob    models.JobStatus
		wantUpload models.UploadStatus
	}{
		{"analysis succeeds", files.Analysis{OK: true, Text: "summary", Provider: "openai"}, models.JobDone, models.UploadAnalyzed},
		{"analysis fails", files.Analysis{OK: false, Error: "bad key", Code: "auth"}, models.JobFailed, models.UploadAnalysisFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repos, _ := newTestService(t, tt.analysis)
			upload := models.NewUpload("a.pdf", "application/pdf", 10)
			require.NoError(t, repos.Uploads.Create(ctx, upload))

			job, err := svc.Create(ctx, CreateRequest{UploadID: upload.ID})
			require.NoError(t, err)

			done := waitFinished(t, svc, job.ID)
			assert.Equal(t, tt.wantJob, done.Status)

			var result files.Analysis
			require.NoError(t, json.Unmarshal(done.Result, &result))
			assert.Equal(t, tt.analysis, result)

			stored, err := repos.Uploads.GetByID(ctx, upload.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUpload, stored.Status)
		})
	}
}

func TestService_RunningWhileAnalyzing(t *testing.T) {
	ctx := context.Background()
	svc, repos, analyzer := newTestService(t, files.Analysis{OK: true})
	analyzer.gate = make(chan struct{})

	upload := models.NewUpload("a.pdf", "application/pdf", 10)
	require.NoError(t, repos.Uploads.Create(ctx, upload))

	job, err := svc.Create(ctx, CreateRequest{UploadID: upload.ID})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := svc.Get(ctx, job.ID)
		return err == nil && current.Status == models.JobRunning
	}, 2*time.Second, 5*time.Millisecond)

	close(analyzer.gate)
	assert.Equal(t, models.JobDone, waitFinished(t, svc, job.ID).Status)
}

func TestService_ShutdownDropsQueuedJobs(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewRepositories()
	analyzer := &fakeAnalyzer{uploads: repos.Uploads}
	svc := NewService(repos, analyzer, zaptest.NewLogger(t), WithDelay(time.Hour))

	job, err := svc.Create(ctx, CreateRequest{})
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(shutdownCtx))

	current, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, current.Status)

	_, err = svc.Create(ctx, CreateRequest{})
	assert.True(t, services.IsUnavailableError(err))
}

func TestService_GetUnknown(t *testing.T) {
	svc, _, _ := newTestService(t, files.Analysis{})

	_, err := svc.Get(context.Background(), "job_missing")
	assert.True(t, services.IsNotFoundError(err))

	jobs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
