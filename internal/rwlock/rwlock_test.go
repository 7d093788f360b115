package rwlock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestReadersConcurrent(t *testing.T) {
	l := New()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.AcquireRead()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			l.ReleaseRead()
		}()
	}
	wg.Wait()

	if maxActive < 2 {
		t.Fatalf("expected multiple concurrent readers, max observed %d", maxActive)
	}
}

func TestWriterExclusive(t *testing.T) {
	l := New()
	var active int32
	var sawOverlap bool
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.AcquireWrite()
			n := atomic.AddInt32(&active, 1)
			if n != 1 {
				mu.Lock()
				sawOverlap = true
				mu.Unlock()
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			l.ReleaseWrite()
		}()
	}
	wg.Wait()

	if sawOverlap {
		t.Fatal("writer exclusivity violated: more than one writer active at once")
	}
}

// TestWriterNotStarved is the regression test for the Open Question this
// package resolves: a writer that starts waiting must not have its turn
// indefinitely postponed by readers that arrive after it started waiting.
func TestWriterNotStarved(t *testing.T) {
	l := New()
	l.AcquireRead() // hold one reader so the writer below has to wait

	writerDone := make(chan struct{})
	go func() {
		l.AcquireWrite()
		close(writerDone)
		l.ReleaseWrite()
	}()

	// give the writer goroutine time to register as waiting
	time.Sleep(20 * time.Millisecond)

	lateReaderBlocked := make(chan struct{})
	go func() {
		l.AcquireRead()
		close(lateReaderBlocked)
		l.ReleaseRead()
	}()

	// the late reader must NOT be able to proceed while the writer is
	// still waiting behind the first reader
	select {
	case <-lateReaderBlocked:
		t.Fatal("late reader acquired read lock ahead of a waiting writer")
	case <-time.After(30 * time.Millisecond):
	}

	l.ReleaseRead() // release the original reader; writer should now proceed

	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired despite readers draining")
	}

	select {
	case <-lateReaderBlocked:
	case <-time.After(time.Second):
		t.Fatal("late reader never proceeded after writer released")
	}
}

func TestKeyLocksIsolatesDistinctKeys(t *testing.T) {
	kl := NewKeyLocks[string]()
	kl.Lock("a")
	defer kl.Unlock("a")

	done := make(chan struct{})
	go func() {
		kl.Lock("b")
		kl.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct key should not have blocked")
	}
}

func TestKeyLocksSerializesSameKey(t *testing.T) {
	kl := NewKeyLocks[string]()
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kl.Lock("same")
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			kl.Unlock("same")
		}(i)
	}
	wg.Wait()

	if len(order) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(order))
	}
}
