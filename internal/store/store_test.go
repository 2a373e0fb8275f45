package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/local/visionbatch/internal/batch"
)

func TestKeys(t *testing.T) {
	s := &RunStore{keyNS: "run"}
	if got := s.statusKey("abc"); got != "run:abc:status" {
		t.Errorf("statusKey: %s", got)
	}
	if got := s.recordKey("abc", 3); got != "run:abc:image:3" {
		t.Errorf("recordKey: %s", got)
	}
}

func TestParseStatus(t *testing.T) {
	st := parseStatus(map[string]string{
		"status":       "aborted",
		"total":        "4",
		"success":      "2",
		"failure":      "x",
		"done":         "2",
		"abort_reason": "interrupted",
		"end":          "2025-03-01T10:00:00Z",
	})
	if st.Status != "aborted" || st.Total != 4 || st.Success != 2 || st.Failure != 0 || st.Done != 2 {
		t.Errorf("counters: %+v", st)
	}
	if st.AbortReason != "interrupted" {
		t.Errorf("reason: %q", st.AbortReason)
	}
	if st.End == nil || !st.End.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("end: %v", st.End)
	}
}

func TestParseRecord(t *testing.T) {
	r := parseRecord(map[string]string{"name": "doc.pdf (page 2/3)", "ok": "1", "text": "hi", "page": "2"})
	if !r.OK || r.Text != "hi" || r.Page != 2 {
		t.Errorf("record: %+v", r)
	}
	r = parseRecord(map[string]string{"name": "a.png", "ok": "0", "reason": "Request timeout after 2m0s"})
	if r.OK || r.Reason == "" || r.Page != 0 {
		t.Errorf("record: %+v", r)
	}
}

// Runs against a real server only when REDIS_TEST_URL is set, e.g. redis://localhost:6379/15.
func TestRunStoreLive(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	s, err := NewRunStore(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	runID := "test-" + time.Now().Format("150405.000000")

	if err := s.Record(ctx, runID, 1, batch.ImageTask{Name: "a.png", Path: "/x/a.png"}, batch.Success("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, runID, 2, batch.ImageTask{Name: "b.png", Path: "/x/b.png"}, batch.Failure("boom")); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, runID, 3, batch.ImageTask{Name: "c.png", Path: "/x/c.png"}, batch.Success("third")); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(ctx, batch.RunSummary{RunID: runID, Total: 3, Success: 2, Failure: 1, GeneratedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	st, ok, err := s.Get(ctx, runID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if st.Status != "success" || st.Done != 3 || st.Failure != 1 {
		t.Errorf("status: %+v", st)
	}
	text, err := s.AggregateText(ctx, runID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if text != "first\n\nthird" {
		t.Errorf("aggregate: %q", text)
	}
	if _, ok, _ := s.GetRecord(ctx, runID, 9); ok {
		t.Error("unknown record should not be found")
	}
}
