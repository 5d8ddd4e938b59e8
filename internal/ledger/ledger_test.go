package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/wardrobe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func image(n int) models.ImageDescriptor {
	return models.ImageDescriptor{
		Locator:     fmt.Sprintf("img://%d", n),
		DisplayName: fmt.Sprintf("%d.jpg", n),
		MimeType:    "image/jpeg",
	}
}

func TestInsertPendingOrdersNewestFirst(t *testing.T) {
	l := New()
	var handles []Handle
	for i := 1; i <= 5; i++ {
		handles = append(handles, l.InsertPending(image(i)))
	}

	snap := l.Snapshot()
	require.Len(t, snap, 5)
	for i, e := range snap {
		want := handles[len(handles)-1-i]
		assert.Equal(t, want.String(), e.Handle)
		assert.Equal(t, models.StatusPending, e.Status)
		assert.NoError(t, e.Validate())
	}
}

func TestResolveKeepsPosition(t *testing.T) {
	l := New()
	a := l.InsertPending(image(1))
	b := l.InsertPending(image(2))
	c := l.InsertPending(image(3))

	require.NoError(t, l.Resolve(a, models.AnalysisResult{Item: "Blue Jacket"}))
	require.NoError(t, l.ResolveFailure(c, "server overloaded"))

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, c.String(), snap[0].Handle)
	assert.Equal(t, b.String(), snap[1].Handle)
	assert.Equal(t, a.String(), snap[2].Handle)

	assert.Equal(t, models.StatusFailed, snap[0].Status)
	assert.Equal(t, "server overloaded", snap[0].ErrorMessage)
	assert.Equal(t, models.StatusPending, snap[1].Status)
	assert.Equal(t, models.StatusComplete, snap[2].Status)
	assert.Equal(t, "Blue Jacket", snap[2].Result.Item)
	for _, e := range snap {
		assert.NoError(t, e.Validate())
	}
}

func TestSecondResolutionRejected(t *testing.T) {
	tests := []struct {
		name   string
		first  func(*Ledger, Handle) error
		second func(*Ledger, Handle) error
		status models.Status
	}{
		{
			name:   "resolve then resolve",
			first:  func(l *Ledger, h Handle) error { return l.Resolve(h, models.AnalysisResult{Item: "Shirt"}) },
			second: func(l *Ledger, h Handle) error { return l.Resolve(h, models.AnalysisResult{Item: "Hat"}) },
			status: models.StatusComplete,
		},
		{
			name:   "resolve then fail",
			first:  func(l *Ledger, h Handle) error { return l.Resolve(h, models.AnalysisResult{Item: "Shirt"}) },
			second: func(l *Ledger, h Handle) error { return l.ResolveFailure(h, "late failure") },
			status: models.StatusComplete,
		},
		{
			name:   "fail then resolve",
			first:  func(l *Ledger, h Handle) error { return l.ResolveFailure(h, "boom") },
			second: func(l *Ledger, h Handle) error { return l.Resolve(h, models.AnalysisResult{Item: "Hat"}) },
			status: models.StatusFailed,
		},
		{
			name:   "fail then fail",
			first:  func(l *Ledger, h Handle) error { return l.ResolveFailure(h, "boom") },
			second: func(l *Ledger, h Handle) error { return l.ResolveFailure(h, "again") },
			status: models.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			h := l.InsertPending(image(1))
			require.NoError(t, tt.first(l, h))
			before, _ := l.Get(h)

			err := tt.second(l, h)
			assert.ErrorIs(t, err, models.ErrContractViolation)

			after, ok := l.Get(h)
			require.True(t, ok)
			assert.Equal(t, tt.status, after.Status)
			assert.Equal(t, before, after)
		})
	}
}

func TestUnknownHandle(t *testing.T) {
	l := New()
	l.InsertPending(image(1))

	other := New().InsertPending(image(2))
	assert.ErrorIs(t, l.Resolve(other, models.AnalysisResult{Item: "x"}), models.ErrUnknownHandle)
	assert.ErrorIs(t, l.ResolveFailure(Handle{}, "x"), models.ErrUnknownHandle)
	assert.Equal(t, models.StatusPending, l.Snapshot()[0].Status)
}

func TestSameLocatorEntriesResolvedIndependently(t *testing.T) {
	l := New()
	first := l.InsertPending(image(7))
	second := l.InsertPending(image(7))

	require.NoError(t, l.Resolve(second, models.AnalysisResult{Item: "Boots"}))

	a, _ := l.Get(first)
	b, _ := l.Get(second)
	assert.Equal(t, models.StatusPending, a.Status)
	assert.Equal(t, models.StatusComplete, b.Status)
}

func TestEmptyFailureMessageReplaced(t *testing.T) {
	l := New()
	h := l.InsertPending(image(1))
	require.NoError(t, l.ResolveFailure(h, ""))

	e, _ := l.Get(h)
	assert.Equal(t, "Upload failed", e.ErrorMessage)
	assert.NoError(t, e.Validate())
}

func TestSnapshotIsACopy(t *testing.T) {
	l := New()
	h := l.InsertPending(image(1))
	require.NoError(t, l.Resolve(h, models.AnalysisResult{Item: "Coat", Recommendations: []string{"Add a scarf"}}))

	snap := l.Snapshot()
	snap[0].Status = models.StatusPending
	snap[0].Result.Recommendations[0] = "mutated"

	fresh := l.Snapshot()
	assert.Equal(t, models.StatusComplete, fresh[0].Status)
	assert.Equal(t, "Add a scarf", fresh[0].Result.Recommendations[0])
}

func TestSubscribersNotifiedSynchronously(t *testing.T) {
	l := New()
	var events []Event
	unsubscribe := l.Subscribe(func(e Event) {
		// Snapshot from inside a subscriber must not deadlock.
		assert.Equal(t, len(e.Entries), len(l.Snapshot()))
		events = append(events, e)
	})

	h := l.InsertPending(image(1))
	require.Len(t, events, 1)
	assert.Equal(t, EventInserted, events[0].Kind)
	assert.Equal(t, h, events[0].Handle)

	require.NoError(t, l.ResolveFailure(h, "nope"))
	require.Len(t, events, 2)
	assert.Equal(t, EventFailed, events[1].Kind)
	assert.Equal(t, models.StatusFailed, events[1].Entries[0].Status)

	// rejected mutations are not announced
	_ = l.Resolve(h, models.AnalysisResult{Item: "x"})
	assert.Len(t, events, 2)

	unsubscribe()
	l.InsertPending(image(2))
	assert.Len(t, events, 2)
}

func TestConcurrentResolutionPreservesInsertionOrder(t *testing.T) {
	l := New()
	const n = 50
	handles := make([]Handle, n)
	for i := 0; i < n; i++ {
		handles[i] = l.InsertPending(image(i))
	}

	var mu sync.Mutex
	seen := 0
	l.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		seen++
		for _, entry := range e.Entries {
			assert.NoError(t, entry.Validate())
		}
	})

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, l.Resolve(handles[i], models.AnalysisResult{Item: fmt.Sprintf("item %d", i)}))
			} else {
				assert.NoError(t, l.ResolveFailure(handles[i], fmt.Sprintf("error %d", i)))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, seen)
	snap := l.Snapshot()
	require.Len(t, snap, n)
	for i, e := range snap {
		assert.Equal(t, handles[n-1-i].String(), e.Handle)
		assert.NotEqual(t, models.StatusPending, e.Status)
	}
}

func TestSubscriberReadsWhileOthersMutate(t *testing.T) {
	l := New()
	a := l.InsertPending(image(1))

	delivering := make(chan struct{})
	var once sync.Once
	var seen []models.WardrobeEntry
	l.Subscribe(func(e Event) {
		if e.Kind != EventResolved {
			return
		}
		once.Do(func() { close(delivering) })
		// give the concurrent insert time to queue behind this delivery
		time.Sleep(50 * time.Millisecond)
		seen = l.Snapshot()
		_, _ = l.Get(e.Handle)
		_ = l.Len()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, l.Resolve(a, models.AnalysisResult{Item: "coat"}))
	}()

	<-delivering
	inserted := make(chan Handle)
	go func() {
		inserted <- l.InsertPending(image(2))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber blocked reading the ledger during a concurrent insert")
	}
	select {
	case <-inserted:
	case <-time.After(2 * time.Second):
		t.Fatal("insert never completed")
	}

	require.Len(t, seen, 1)
	assert.Equal(t, models.StatusComplete, seen[0].Status)
	assert.Equal(t, 2, l.Len())
}

func TestSubscriberSnapshotsUnderConcurrentLoad(t *testing.T) {
	l := New()
	l.Subscribe(func(e Event) {
		snap := l.Snapshot()
		assert.Equal(t, len(e.Entries), len(snap))
	})

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				h := l.InsertPending(image(i))
				assert.NoError(t, l.Resolve(h, models.AnalysisResult{Item: fmt.Sprintf("item %d", i)}))
			}(i)
		}
		wg.Wait()
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("ledger deadlocked")
	}
	assert.Equal(t, 20, l.Len())
}
