// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"fmt"
	"testing"
	"time"
)

func TestJobStoreLifecycle(t *testing.T) {
	s := NewJobStore(2)
	for i := 0; i < 3; i++ {
		s.Add(Job{ID: fmt.Sprintf("job-%d", i), Status: StatusRunning, StartedAt: fixedTime.Add(time.Duration(i) * time.Second)})
	}

	active := s.Active()
	if len(active) != 3 || active[0].ID != "job-0" || active[2].ID != "job-2" {
		t.Fatalf("Active() = %+v", active)
	}
	if !s.Running() {
		t.Error("Running() = false with running jobs")
	}

	for i := 0; i < 3; i++ {
		if _, ok := s.Update(fmt.Sprintf("job-%d", i), func(j *Job) { j.Status = StatusCompleted }); !ok {
			t.Fatalf("Update(job-%d) failed", i)
		}
	}
	if s.Running() {
		t.Error("Running() = true with only terminal jobs")
	}

	history := s.History()
	if len(history) != 2 || history[0].ID != "job-1" || history[1].ID != "job-2" {
		t.Errorf("History() = %+v, want the two newest", history)
	}

	if _, ok := s.Update("job-2", func(j *Job) { j.Status = StatusFailed }); ok {
		t.Error("terminal job was updated")
	}
	if got, _ := s.Get("job-2"); got.Status != StatusCompleted {
		t.Errorf("terminal status changed to %s", got.Status)
	}

	s.Remove("job-0")
	if _, ok := s.Get("job-0"); ok {
		t.Error("removed job still active")
	}
	if _, ok := s.Update("job-0", func(*Job) {}); ok {
		t.Error("Update of removed job succeeded")
	}
}

func TestJobStoreReturnsCopies(t *testing.T) {
	s := NewJobStore(0)
	s.Add(Job{ID: "a", Status: StatusRunning})
	s.Update("a", func(j *Job) {
		j.Status = StatusCompleted
		j.Result = &JobResult{RemoteID: "r1"}
	})

	got, _ := s.Get("a")
	got.Result.RemoteID = "changed"
	got.Status = StatusFailed

	again, _ := s.Get("a")
	if again.Result.RemoteID != "r1" || again.Status != StatusCompleted {
		t.Errorf("store mutated through a snapshot: %+v", again)
	}
	if h := s.History(); h[0].Result.RemoteID != "r1" {
		t.Errorf("history mutated: %+v", h[0].Result)
	}
}

func TestLogBuffer(t *testing.T) {
	b := NewLogBuffer(3)
	if len(b.Recent(10)) != 0 {
		t.Error("new buffer not empty")
	}
	for i := 0; i < 5; i++ {
		b.Append(fixedTime, fmt.Sprintf("line %d", i))
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"line 2", "line 3", "line 4"}},
		{2, []string{"line 3", "line 4"}},
		{10, []string{"line 2", "line 3", "line 4"}},
	}
	for _, tt := range tests {
		got := b.Recent(tt.limit)
		if len(got) != len(tt.want) {
			t.Errorf("Recent(%d) = %v", tt.limit, got)
			continue
		}
		for i := range got {
			if got[i].Message != tt.want[i] {
				t.Errorf("Recent(%d)[%d] = %q, want %q", tt.limit, i, got[i].Message, tt.want[i])
			}
		}
	}
}

func TestBroadcaster(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe()

	b.publish(Job{ID: "a"})
	if got := <-ch; got.ID != "a" {
		t.Errorf("got %+v", got)
	}

	for i := 0; i < subscriberBuffer+10; i++ {
		b.publish(Job{ID: "flood"})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("queued = %d, want %d", len(ch), subscriberBuffer)
	}

	cancel()
	cancel()
	for range ch {
	}

	b.close()
	late, _ := b.subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after close should be closed")
	}
}
