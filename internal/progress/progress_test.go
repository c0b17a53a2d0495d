package progress

import (
	"sync"
	"testing"
	"time"
)

func TestTrackerReportAndGet(t *testing.T) {
	tr := NewTracker(time.Minute)

	tr.Report("s1", "collecting", 10, "keyword expansion done")
	tr.Report("s1", "filtering", 40, "")

	u, ok := tr.Get("s1")
	if !ok {
		t.Fatal("session s1 not tracked")
	}
	if u.Stage != "filtering" || u.Percent != 40 {
		t.Errorf("latest update = %+v, want filtering at 40", u)
	}

	if _, ok := tr.Get("unknown"); ok {
		t.Error("unknown session reported as tracked")
	}
}

func TestTrackerTTLEviction(t *testing.T) {
	tr := NewTracker(time.Minute)
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return current }

	tr.Report("old", "done", 100, "")
	current = current.Add(2 * time.Minute)
	tr.Report("fresh", "clustering", 55, "")

	if _, ok := tr.Get("old"); ok {
		t.Error("expired session survived eviction")
	}
	if _, ok := tr.Get("fresh"); !ok {
		t.Error("fresh session evicted")
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestTrackerForget(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.Report("s1", "synthesizing", 70, "")

	tr.Forget("s1")

	if _, ok := tr.Get("s1"); ok {
		t.Error("forgotten session still tracked")
	}
}

func TestTrackerConcurrentReports(t *testing.T) {
	tr := NewTracker(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr.Report("shared", "collecting", n, "")
			tr.Get("shared")
		}(i)
	}
	wg.Wait()

	if _, ok := tr.Get("shared"); !ok {
		t.Fatal("session lost under concurrent reporting")
	}
}
