package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrateTwice(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New("mysql", "x"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestIncrementCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		got, err := store.IncrementCounter(ctx, "messages")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != int64(i) {
			t.Fatalf("expected %d, got %d", i, got)
		}
	}
	if _, err := store.IncrementCounter(ctx, "kicks"); err != nil {
		t.Fatalf("increment kicks: %v", err)
	}

	counters, err := store.Counters(ctx)
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters["messages"] != 3 || counters["kicks"] != 1 {
		t.Fatalf("unexpected counters: %v", counters)
	}
}

func TestCountersPersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kymera.db")
	ctx := context.Background()
	start := time.Unix(1700000000, 0)

	store, err := New(DriverSQLite, path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := store.EnsureStartTime(ctx, start); err != nil {
		t.Fatalf("start time: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := store.IncrementCounter(ctx, "songs"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	store.Close()

	reopened, err := New(DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	counters, err := reopened.Counters(ctx)
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters["songs"] != 7 {
		t.Fatalf("expected 7 songs after restart, got %d", counters["songs"])
	}

	got, err := reopened.EnsureStartTime(ctx, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("start time: %v", err)
	}
	if !got.Equal(start) {
		t.Fatalf("expected original start time %v, got %v", start, got)
	}
}

func TestWarningLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		total, err := store.AddWarning(ctx, WarningRecord{
			GuildID:      "g1",
			UserID:       "u1",
			Reason:       "spam",
			ModeratorID:  "m1",
			ModeratorTag: "mod",
		})
		if err != nil {
			t.Fatalf("add warning: %v", err)
		}
		if total != i {
			t.Fatalf("expected total %d, got %d", i, total)
		}
	}
	if _, err := store.AddWarning(ctx, WarningRecord{GuildID: "g1", UserID: "u2", Reason: "other"}); err != nil {
		t.Fatalf("add warning: %v", err)
	}

	list, err := store.ListWarnings(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 warnings, got %d", len(list))
	}

	removed, err := store.ClearWarnings(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	list, _ = store.ListWarnings(ctx, "g1", "u1")
	if len(list) != 0 {
		t.Fatalf("expected empty ledger, got %d", len(list))
	}
	other, _ := store.ListWarnings(ctx, "g1", "u2")
	if len(other) != 1 {
		t.Fatalf("expected other member untouched, got %d", len(other))
	}
}

func TestAuditLogRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := AuditLog{GuildID: "g1", Action: "kick", TargetID: "u1", Reason: "r", CreatedAt: time.Now().AddDate(0, 0, -40)}
	recent := AuditLog{GuildID: "g1", Action: "ban", TargetID: "u2", Reason: "r", CreatedAt: time.Now()}
	for _, log := range []AuditLog{old, recent} {
		if err := store.AddAuditLog(ctx, log); err != nil {
			t.Fatalf("add audit log: %v", err)
		}
	}
	if err := store.CleanupAuditLogs(ctx, 30); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	logs, err := store.ListAuditLogs(ctx, "g1", time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "ban" {
		t.Fatalf("expected only recent ban, got %+v", logs)
	}
}

func TestRoleMessageUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetRoleMessage(ctx, "g1"); err != nil || ok {
		t.Fatalf("expected no role message, ok=%t err=%v", ok, err)
	}
	if err := store.SetRoleMessage(ctx, RoleMessage{GuildID: "g1", ChannelID: "c1", MessageID: "m1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetRoleMessage(ctx, RoleMessage{GuildID: "g1", ChannelID: "c1", MessageID: "m2"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.GetRoleMessage(ctx, "g1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if got.MessageID != "m2" {
		t.Fatalf("expected m2, got %q", got.MessageID)
	}
}

func TestRebindPostgres(t *testing.T) {
	store := &Store{driver: DriverPostgres}
	got := store.rebind("SELECT 1 WHERE a = ? AND b = ?")
	if got != "SELECT 1 WHERE a = $1 AND b = $2" {
		t.Fatalf("unexpected rebind: %q", got)
	}
}
