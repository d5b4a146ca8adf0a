package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/menumaster-admin/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, Prefix: "lock:", RetryBackoff: 5 * time.Millisecond}, mr
}

func TestWithLockSerialises(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var (
		order        []string
		mu           sync.Mutex
		wg           sync.WaitGroup
		firstDone    = make(chan struct{})
		releaseFirst = make(chan struct{})
	)
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "seed", time.Second, func(context.Context) error {
			record("first")
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()
	<-firstDone
	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "seed", time.Second, func(context.Context) error {
			record("second")
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)
	close(releaseFirst)
	wg.Wait()

	require.Equal(t, []string{"first", "second"}, order)
}

func TestTryWithLockReportsContention(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "seed", time.Second, func(ctx context.Context) error {
		return locker.TryWithLock(ctx, "seed", time.Second, func(context.Context) error {
			t.Fatal("must not run while locked")
			return nil
		})
	})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.False(t, mr.Exists("lock:seed"), "lock must be released after the callback")
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker, mr := newLocker(t)
	boom := errors.New("boom")
	err := locker.WithLock(context.Background(), "seed", time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("lock:seed"))
}
