package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/repositories/memory"
	"github.com/mozaika228/hephaestus/services"
	"github.com/mozaika228/hephaestus/services/cache"
	"github.com/mozaika228/hephaestus/services/decision"
	"github.com/mozaika228/hephaestus/services/intent"
	"github.com/mozaika228/hephaestus/services/policy"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeUploader struct {
	id      string
	err     error
	calls   int
	content []byte
}

func (f *fakeUploader) UploadFile(_ context.Context, _, _ string, content io.Reader) (string, error) {
	f.calls++
	f.content, _ = io.ReadAll(content)
	return f.id, f.err
}

type fileDecider struct {
	mime string
}

func (d *fileDecider) ResolveChat(context.Context, *config.Config, string, string, string) decision.Decision {
	return decision.Decision{}
}

func (d *fileDecider) ResolveFile(_ context.Context, cfg *config.Config, mime, requested string) decision.Decision {
	d.mime = mime
	return decision.LocalFile(cfg.Providers, mime, requested)
}

type fixedRunner struct {
	result providers.Result
	req    providers.Request
}

func (r *fixedRunner) Stream(context.Context, config.ProvidersConfig, policy.Policy, providers.Request, providers.Sink) {
}

func (r *fixedRunner) Single(_ context.Context, _ config.ProvidersConfig, _ policy.Policy, req providers.Request) providers.Result {
	r.req = req
	return r.result
}

type fixture struct {
	svc      *Service
	uploads  *memory.UploadRepository
	uploader *fakeUploader
	decider  *fileDecider
	runner   *fixedRunner
	dir      string
}

func newFixture(t *testing.T, apiKey string, maxBytes int64) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Providers: config.ProvidersConfig{OpenAI: config.OpenAIConfig{APIKey: apiKey}},
		Storage:   config.StorageConfig{UploadDir: dir, MaxUploadBytes: maxBytes},
	}

	f := &fixture{
		uploads:  memory.NewUploadRepository().(*memory.UploadRepository),
		uploader: &fakeUploader{id: "file-abc"},
		decider:  &fileDecider{},
		runner:   &fixedRunner{result: providers.Result{OK: true, Text: "a cat", Provider: providers.OpenAI}},
		dir:      dir,
	}
	f.svc = NewService(cfg, f.uploads, NewStorage(dir, maxBytes), f.uploader, f.decider, f.runner,
		cache.NewMemoryCache(100, time.Minute), zap.NewNop())
	return f
}

func TestService_Register(t *testing.T) {
	f := newFixture(t, "", 0)

	upload, err := f.svc.Register(context.Background(), RegisterRequest{})
	require.NoError(t, err)
	assert.Equal(t, "untitled", upload.Name)
	assert.Equal(t, "application/octet-stream", upload.Type)
	assert.Equal(t, models.UploadQueued, upload.Status)
	assert.True(t, strings.HasPrefix(upload.ID, "file_"))
}

func TestService_Ingest(t *testing.T) {
	content := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64)...)
	sum := sha256.Sum256(content)

	t.Run("stores, detects and shares", func(t *testing.T) {
		f := newFixture(t, "sk-test", 0)

		upload, msg, err := f.svc.Ingest(context.Background(), "../../cat.png", "application/octet-stream", bytes.NewReader(content))
		require.NoError(t, err)
		assert.Equal(t, MessageStoredAndShared, msg)
		assert.Equal(t, models.UploadStored, upload.Status)
		assert.Equal(t, "image/png", upload.Type)
		assert.Equal(t, int64(len(content)), upload.Size)
		assert.Equal(t, "file-abc", upload.ProviderFileID)
		require.NotNil(t, upload.LocalMeta)
		assert.Equal(t, hex.EncodeToString(sum[:]), upload.LocalMeta.SHA256)

		assert.Equal(t, filepath.Join(f.dir, upload.ID+"-cat.png"), upload.LocalPath)
		onDisk, err := os.ReadFile(upload.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, content, onDisk)
		assert.Equal(t, content, f.uploader.content)

		stored, err := f.uploads.GetByID(context.Background(), upload.ID)
		require.NoError(t, err)
		assert.Equal(t, upload.ProviderFileID, stored.ProviderFileID)
	})

	t.Run("declared type wins", func(t *testing.T) {
		f := newFixture(t, "", 0)

		upload, _, err := f.svc.Ingest(context.Background(), "notes.md", "text/markdown", strings.NewReader("# hi"))
		require.NoError(t, err)
		assert.Equal(t, "text/markdown", upload.Type)
	})

	t.Run("no key skips the upload", func(t *testing.T) {
		f := newFixture(t, "", 0)

		upload, msg, err := f.svc.Ingest(context.Background(), "a.txt", "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, MessageStoredOnly, msg)
		assert.Empty(t, upload.ProviderFileID)
		assert.Zero(t, f.uploader.calls)
	})

	t.Run("upload failure keeps the local copy", func(t *testing.T) {
		f := newFixture(t, "sk-test", 0)
		f.uploader.err = errors.New("rate limited")

		upload, msg, err := f.svc.Ingest(context.Background(), "a.txt", "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, MessageStoredOnly, msg)
		assert.Equal(t, 1, f.uploader.calls)
		assert.FileExists(t, upload.LocalPath)
	})

	t.Run("too large", func(t *testing.T) {
		f := newFixture(t, "", 4)

		_, _, err := f.svc.Ingest(context.Background(), "a.txt", "text/plain", strings.NewReader("hello"))
		require.Error(t, err)
		assert.True(t, services.IsValidationError(err))

		entries, err := os.ReadDir(f.dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("no file", func(t *testing.T) {
		f := newFixture(t, "", 0)

		_, _, err := f.svc.Ingest(context.Background(), "", "", nil)
		assert.True(t, services.IsValidationError(err))
		assert.Equal(t, MessageNoFile, services.GetErrorMessage(err))
	})
}

func TestService_GetUsesCache(t *testing.T) {
	f := newFixture(t, "", 0)
	ctx := context.Background()

	upload, err := f.svc.Register(ctx, RegisterRequest{Name: "a.txt"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, upload.ID)
	require.NoError(t, err)

	// a write that bypasses the service is invisible until invalidation
	_, err = f.uploads.Update(ctx, upload.ID, func(u *models.Upload) error {
		u.Name = "renamed.txt"
		return nil
	})
	require.NoError(t, err)

	cached, err := f.svc.Get(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", cached.Name)

	_, err = f.svc.Complete(ctx, upload.ID)
	require.NoError(t, err)

	fresh, err := f.svc.Get(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed.txt", fresh.Name)
	assert.Equal(t, models.UploadProcessed, fresh.Status)
}

func TestService_Analyze(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newFixture(t, "sk-test", 0)
		upload, _, err := f.svc.Ingest(ctx, "cat.png", "", bytes.NewReader(pngHeader))
		require.NoError(t, err)

		updated, analysis, err := f.svc.Analyze(ctx, upload.ID)
		require.NoError(t, err)
		assert.True(t, analysis.OK)
		assert.Equal(t, "a cat", analysis.Text)
		assert.Equal(t, string(intent.FileAnalysisImage), analysis.Intent)
		assert.Equal(t, decision.SourceLocal, analysis.Source)
		assert.Equal(t, models.UploadAnalyzed, updated.Status)
		assert.JSONEq(t, `{"ok":true,"text":"a cat","provider":"openai","intent":"file_analysis_image","source":"node_fallback"}`, string(updated.Analysis))

		assert.Equal(t, "image/png", f.decider.mime)
		assert.Equal(t, "file-abc", f.runner.req.FileID)
		assert.True(t, f.runner.req.Analysis)
		assert.Contains(t, f.runner.req.Message, `"cat.png"`)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t, "", 0)
		f.runner.result = providers.Failure(providers.CodeInvalidConfiguration, "No AI provider is configured.")
		upload, err := f.svc.Register(ctx, RegisterRequest{Name: "a.pdf", Type: "application/pdf"})
		require.NoError(t, err)

		updated, analysis, err := f.svc.Analyze(ctx, upload.ID)
		require.NoError(t, err)
		assert.False(t, analysis.OK)
		assert.Equal(t, models.UploadAnalysisFailed, updated.Status)

		var stored Analysis
		require.NoError(t, json.Unmarshal(updated.Analysis, &stored))
		assert.Equal(t, "invalid_configuration", stored.Code)
	})

	t.Run("unknown upload", func(t *testing.T) {
		f := newFixture(t, "", 0)

		_, _, err := f.svc.Analyze(ctx, "file_missing")
		assert.True(t, services.IsNotFoundError(err))
		assert.Equal(t, MessageNotFound, services.GetErrorMessage(err))
	})
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\photo.jpg`, "photo.jpg"},
		{"", "untitled"},
		{"/", "untitled"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, safeName(tt.in))
		})
	}
}

func TestEffectiveType(t *testing.T) {
	assert.Equal(t, "image/png", effectiveType("", "image/png"))
	assert.Equal(t, "image/png", effectiveType("application/octet-stream", "image/png"))
	assert.Equal(t, "text/csv", effectiveType("text/csv", "text/plain"))
	assert.Equal(t, "application/octet-stream", effectiveType("", ""))
}
