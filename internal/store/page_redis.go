package store

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/visionbatch/internal/batch"
)

// Record is one archived image outcome.
type Record struct {
	Name   string
	Path   string
	Page   int
	OK     bool
	Text   string
	Reason string
}

func (s *RunStore) recordKey(runID string, idx int) string {
	return fmt.Sprintf("%s:%s:image:%d", s.keyNS, runID, idx)
}

// Record stores the outcome of task idx and bumps the run's progress counter.
func (s *RunStore) Record(ctx context.Context, runID string, idx int, t batch.ImageTask, out batch.Outcome) error {
	m := map[string]interface{}{
		"name": t.Name,
		"path": t.Path,
		"size": t.SizeBytes,
		"ok":   out.OK(),
	}
	if t.Page > 0 {
		m["page"] = t.Page
	}
	if out.OK() {
		m["text"] = out.Text()
	} else {
		m["reason"] = out.Reason()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordKey(runID, idx), m)
	pipe.HSet(ctx, s.statusKey(runID), "status", "processing", "done", idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record %d of run %s: %w", idx, runID, err)
	}
	return nil
}

// GetRecord returns the archived outcome of record idx.
func (s *RunStore) GetRecord(ctx context.Context, runID string, idx int) (Record, bool, error) {
	res, err := s.client.HGetAll(ctx, s.recordKey(runID, idx)).Result()
	if err == redis.Nil || (err == nil && len(res) == 0) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return parseRecord(res), true, nil
}

func parseRecord(res map[string]string) Record {
	r := Record{
		Name:   res["name"],
		Path:   res["path"],
		Text:   res["text"],
		Reason: res["reason"],
		OK:     res["ok"] == "1" || strings.EqualFold(res["ok"], "true"),
	}
	fmt.Sscan(res["page"], &r.Page)
	return r
}

// AggregateText joins the text of all successful records of a run, in order.
func (s *RunStore) AggregateText(ctx context.Context, runID string, total int) (string, error) {
	var parts []string
	for i := 1; i <= total; i++ {
		r, ok, err := s.GetRecord(ctx, runID, i)
		if err != nil {
			return strings.Join(parts, "\n\n"), err
		}
		if ok && r.OK && r.Text != "" {
			parts = append(parts, r.Text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
