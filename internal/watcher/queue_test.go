package watcher

import (
	"testing"
	"time"
)

func TestFileQueue_DebounceCollapsesTouches(t *testing.T) {
	q := newFileQueue(30*time.Millisecond, 4)
	defer q.close()

	for i := 0; i < 5; i++ {
		q.touch("/drops/a.json")
		time.Sleep(5 * time.Millisecond)
	}
	path, ok := q.next()
	if !ok || path != "/drops/a.json" {
		t.Fatalf("next() = %q, %v", path, ok)
	}
	select {
	case extra := <-q.ready:
		t.Errorf("unexpected second delivery of %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFileQueue_PushSkipsWaitingPath(t *testing.T) {
	q := newFileQueue(time.Hour, 4)
	defer q.close()

	q.push("/drops/a.json")
	q.push("/drops/a.json")
	q.push("/drops/b.json")
	if got := len(q.ready); got != 2 {
		t.Fatalf("queued %d paths, want 2", got)
	}
	if path, _ := q.next(); path != "/drops/a.json" {
		t.Errorf("first = %q", path)
	}
	q.push("/drops/a.json")
	if got := len(q.ready); got != 2 {
		t.Errorf("a.json should queue again once taken, queued %d", got)
	}
}

func TestFileQueue_ForgetAndClose(t *testing.T) {
	q := newFileQueue(20*time.Millisecond, 1)
	q.touch("/drops/gone.json")
	q.forget("/drops/gone.json")
	time.Sleep(50 * time.Millisecond)
	if got := len(q.ready); got != 0 {
		t.Errorf("forgotten path was queued")
	}

	q.close()
	q.close()
	if _, ok := q.next(); ok {
		t.Error("next() after close should report false")
	}
	q.push("/drops/late.json")
	q.touch("/drops/late.json")
}
