package integrations

import (
	"context"
	"testing"
	"time"

	"github.com/mozaika228/hephaestus/models"
	"github.com/mozaika228/hephaestus/services"
	"github.com/mozaika228/hephaestus/services/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestService_List(t *testing.T) {
	svc := NewService(cache.NewMemoryCache(10, time.Minute), zap.NewNop())

	list := svc.List(context.Background())
	require.Len(t, list, 3)
	assert.Equal(t, models.Integration{ID: "google", Name: "Google Workspace", Status: "inactive"}, list[2])

	// the returned slice is a copy
	list[0].Status = "hacked"
	assert.Equal(t, "inactive", svc.List(context.Background())[0].Status)
}

func TestService_Connect(t *testing.T) {
	ctx := context.Background()
	svc := NewService(cache.NewMemoryCache(10, time.Minute), zap.NewNop())
	_ = svc.List(ctx)

	tests := []struct {
		name       string
		id         string
		wantStatus string
		wantErr    bool
	}{
		{"known integration", "notion", "pending", false},
		{"unknown integration", "jira", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Connect(ctx, tt.id)
			if tt.wantErr {
				assert.True(t, services.IsNotFoundError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
		})
	}

	list := svc.List(ctx)
	assert.Equal(t, "pending", list[1].Status, "connect invalidates the cached list")
	assert.Equal(t, "inactive", list[0].Status)
}
