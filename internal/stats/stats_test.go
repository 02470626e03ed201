package stats

import (
	"context"
	"testing"
	"time"

	"kymera-bot/internal/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.New(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())
	return New(store, zap.NewNop()), store
}

func TestSnapshotFillsEveryCounter(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Init(ctx))

	svc.Increment(ctx, Messages)
	svc.Increment(ctx, Messages)
	svc.Increment(ctx, Songs)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), snap.Counters[Messages])
	require.Equal(t, int64(1), snap.Counters[Songs])
	for _, name := range Names {
		_, ok := snap.Counters[name]
		require.True(t, ok, name)
	}
	require.False(t, snap.StartTime.IsZero())
}

func TestUptimeUsesClock(t *testing.T) {
	svc, _ := newService(t)
	boot := time.Unix(1700000000, 0)
	svc.bootAt = boot
	svc.now = func() time.Time { return boot.Add(90 * time.Minute) }

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, snap.Uptime)
}

func TestReportGroupsByAction(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	now := time.Now()
	for _, action := range []string{"kick", "warn", "warn", "ban", "warn"} {
		require.NoError(t, store.AddAuditLog(ctx, storage.AuditLog{GuildID: "g1", Action: action, CreatedAt: now}))
	}
	require.NoError(t, store.AddAuditLog(ctx, storage.AuditLog{GuildID: "g2", Action: "kick", CreatedAt: now}))

	report, err := svc.Report(ctx, "g1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 5, report.Total)
	require.Equal(t, ActionCount{Action: "warn", Count: 3}, report.ByAction[0])
	require.Len(t, report.ByAction, 3)
}

func TestIncrementOnNilService(t *testing.T) {
	var svc *Service
	svc.Increment(context.Background(), Messages)
}
