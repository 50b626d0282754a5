package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/100-hours-a-week/7-team-kono-fe/internal/testing"
)

func TestSystemHandlers_HandleSystemStatus(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T) *SystemHandlers
		validate func(t *testing.T, response SystemStatusResponse)
	}{
		{
			name: "reports stats without a database",
			setup: func(t *testing.T) *SystemHandlers {
				return NewSystemHandlers(zerolog.Nop(), "", nil, time.Now().Add(-time.Minute))
			},
			validate: func(t *testing.T, response SystemStatusResponse) {
				assert.Equal(t, "healthy", response.Status)
				assert.GreaterOrEqual(t, response.UptimeSeconds, int64(60))
				assert.Equal(t, 12.5, response.CPUPercent)
				assert.Equal(t, 40.0, response.RAMPercent)
				assert.Nil(t, response.Database)
			},
		},
		{
			name: "includes client data database health",
			setup: func(t *testing.T) *SystemHandlers {
				db := testingpkg.NewTestDB(t, "client_data")
				return NewSystemHandlers(zerolog.Nop(), filepath.Dir(db.Path()), db, time.Now())
			},
			validate: func(t *testing.T, response SystemStatusResponse) {
				assert.Equal(t, "healthy", response.Status)
				require.NotNil(t, response.Database)
				assert.Equal(t, "client_data", response.Database.Name)
				assert.True(t, response.Database.Healthy)
				assert.Greater(t, response.DataDirMB, 0.0)
			},
		},
		{
			name: "degraded when the database is closed",
			setup: func(t *testing.T) *SystemHandlers {
				db := testingpkg.NewTestDB(t, "client_data")
				require.NoError(t, db.Close())
				return NewSystemHandlers(zerolog.Nop(), "", db, time.Now())
			},
			validate: func(t *testing.T, response SystemStatusResponse) {
				assert.Equal(t, "degraded", response.Status)
				require.NotNil(t, response.Database)
				assert.False(t, response.Database.Healthy)
				assert.NotEmpty(t, response.Database.Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.setup(t)
			h.stats = func() (float64, float64) { return 12.5, 40 }

			req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
			w := httptest.NewRecorder()
			h.HandleSystemStatus(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response SystemStatusResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			tt.validate(t, response)
		})
	}
}

func TestSystemHandlers_GetDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 1024*1024), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.bin"), make([]byte, 512*1024), 0o644))

	h := NewSystemHandlers(zerolog.Nop(), dir, nil, time.Now())
	assert.InDelta(t, 1.5, h.getDirSize(dir), 1e-9)
	assert.Zero(t, h.getDirSize(filepath.Join(dir, "missing")))
}
