package matching_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/matching"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *matching.RedisStatusStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, matching.NewRedisStatusStore(rdb)
}

func TestRedisStatusStore_Lifecycle(t *testing.T) {
	_, store := newRedisStore(t)
	ctx := context.Background()

	st, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st.Status != model.RunIdle {
		t.Errorf("fresh user status = %s, want idle", st.Status)
	}

	if err := store.Begin(ctx, "user-1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	st, _ = store.Get(ctx, "user-1")
	if st.Status != model.RunRunning || st.Progress != 0 {
		t.Errorf("status after Begin = %+v, want running/0", st)
	}

	if err := store.Begin(ctx, "user-1"); !errors.Is(err, errs.ErrAlreadyRunning) {
		t.Errorf("second Begin = %v, want ErrAlreadyRunning", err)
	}

	done := model.RunStatus{Status: model.RunComplete, Progress: 100, Message: "scored 3 jobs"}
	if err := store.Set(ctx, "user-1", done); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	st, _ = store.Get(ctx, "user-1")
	if st != done {
		t.Errorf("status after terminal Set = %+v, want %+v", st, done)
	}

	// Terminal status released the lock, so a new run may start.
	if err := store.Begin(ctx, "user-1"); err != nil {
		t.Errorf("Begin after completion = %v, want nil", err)
	}
}

func TestRedisStatusStore_UsersAreIndependent(t *testing.T) {
	_, store := newRedisStore(t)
	ctx := context.Background()

	if err := store.Begin(ctx, "user-1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := store.Begin(ctx, "user-2"); err != nil {
		t.Errorf("Begin for a second user = %v, want nil", err)
	}
}

func TestRedisStatusStore_FailedBeginReleasesLock(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()

	// Corrupt the status key so the hash write inside Begin fails with
	// WRONGTYPE after the lock is already taken.
	if err := mr.Set("matching:status:user-1", "corrupt"); err != nil {
		t.Fatalf("seeding corrupt key: %v", err)
	}

	if err := store.Begin(ctx, "user-1"); err == nil {
		t.Fatal("Begin should fail when the status write fails")
	}
	if mr.Exists("matching:lock:user-1") {
		t.Fatal("lock must be released when Begin fails, not held for its TTL")
	}

	// The user can start normally once the store is healthy again.
	mr.Del("matching:status:user-1")
	if err := store.Begin(ctx, "user-1"); err != nil {
		t.Errorf("Begin after recovery = %v, want nil", err)
	}
}
