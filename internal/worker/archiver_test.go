package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/repository"
	"github.com/qs3c/toolbox_server/internal/service"
	"github.com/qs3c/toolbox_server/internal/testutil"
)

type memoryStore struct {
	mu      sync.Mutex
	uploads int
}

func (m *memoryStore) UploadArchive(from, to time.Time, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	return "system-logs/" + from.Format("20060102") + ".jsonl", nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

func TestArchiver_Start(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	testutil.TestSystemLog(t, db, model.LogLevelInfo, "old one", now.Add(-60*24*time.Hour))
	testutil.TestSystemLog(t, db, model.LogLevelError, "old two", now.Add(-45*24*time.Hour))
	testutil.TestSystemLog(t, db, model.LogLevelInfo, "fresh", now.Add(-time.Hour))

	store := &memoryStore{}
	logs := service.NewLogService(repository.NewSystemLogRepository(db))
	a := NewArchiver(logs, store, 30*24*time.Hour, time.Hour)
	a.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	var remaining []model.SystemLog
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].Message)
}
