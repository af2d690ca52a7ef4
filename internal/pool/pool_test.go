package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/fanbench/fanbench/internal/client"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p := New(Config{Size: size, AcquireTimeout: time.Second},
		func() (client.Client, error) {
			return client.New(client.Config{}), nil
		})
	t.Cleanup(p.Close)
	return p
}

func TestPool_StatusInvariant(t *testing.T) {
	p := newTestPool(t, 3)

	st := p.Status()
	if st.InUse+st.Available != st.Size {
		t.Errorf("in_use(%d) + available(%d) != size(%d)", st.InUse, st.Available, st.Size)
	}

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	st = p.Status()
	if st.InUse != 1 {
		t.Errorf("InUse = %d, want 1", st.InUse)
	}
	if st.InUse+st.Available != st.Size {
		t.Errorf("in_use(%d) + available(%d) != size(%d)", st.InUse, st.Available, st.Size)
	}

	p.Release(c)
	st = p.Status()
	if st.InUse != 0 {
		t.Errorf("InUse after release = %d, want 0", st.InUse)
	}
}

func TestPool_ExhaustionTimesOut(t *testing.T) {
	p := newTestPool(t, 1)

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	if !errors.Is(err, ErrPoolTimeout) {
		t.Errorf("second Acquire = %v, want ErrPoolTimeout", err)
	}

	p.Release(held)
}

func TestPool_SecondBorrowerBlocksUntilRelease(t *testing.T) {
	p := newTestPool(t, 1)

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	acquired := make(chan client.Client)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c, err := p.Acquire(ctx)
		if err != nil {
			t.Errorf("blocked Acquire: %v", err)
			close(acquired)
			return
		}
		acquired <- c
	}()

	select {
	case <-acquired:
		t.Fatal("second borrower acquired while the handle was held")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(held)

	select {
	case c, ok := <-acquired:
		if ok {
			p.Release(c)
		}
	case <-time.After(time.Second):
		t.Fatal("second borrower never acquired after release")
	}
}

func TestPool_WithReleasesOnError(t *testing.T) {
	p := newTestPool(t, 1)

	wantErr := errors.New("fetch failed")
	err := p.With(context.Background(), func(client.Client) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("With = %v, want %v", err, wantErr)
	}

	// The handle must be back: an immediate re-acquire succeeds.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("re-Acquire after failed With: %v", err)
	}
	p.Release(c)
}

func TestPool_HandlesAreReused(t *testing.T) {
	var created atomic.Int32
	p := New(Config{Size: 2, AcquireTimeout: time.Second},
		func() (client.Client, error) {
			created.Add(1)
			return client.New(client.Config{}), nil
		})
	t.Cleanup(p.Close)

	for i := 0; i < 10; i++ {
		if err := p.With(context.Background(), func(client.Client) error { return nil }); err != nil {
			t.Fatalf("With: %v", err)
		}
	}

	if n := created.Load(); n > 2 {
		t.Errorf("factory created %d handles, want at most the pool size 2", n)
	}
}
