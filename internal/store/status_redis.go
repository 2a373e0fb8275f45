package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/visionbatch/internal/batch"
)

// retention for archived runs
const runTTL = 7 * 24 * time.Hour

// RunStatus is the per-run hash kept next to the image records.
type RunStatus struct {
	Status      string
	Total       int
	Success     int
	Failure     int
	Done        int
	AbortReason string
	End         *time.Time
}

// RunStore archives batch runs in Redis. It implements batch.Sink.
type RunStore struct {
	client *redis.Client
	keyNS  string
}

func NewRunStore(redisURL string) (*RunStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &RunStore{client: c, keyNS: "run"}, nil
}

func (s *RunStore) Close() error { return s.client.Close() }

func (s *RunStore) Name() string { return "redis" }

// Ping satisfies statuscheck.RedisPinger.
func (s *RunStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RunStore) statusKey(runID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, runID) }

// Finish stores the final counts and puts an expiry on every key of the run.
func (s *RunStore) Finish(ctx context.Context, sum batch.RunSummary) error {
	status := "success"
	if sum.Aborted {
		status = "aborted"
	}
	m := map[string]interface{}{
		"status":       status,
		"total":        sum.Total,
		"success":      sum.Success,
		"failure":      sum.Failure,
		"done":         sum.Success + sum.Failure,
		"abort_reason": sum.AbortReason,
		"end":          sum.GeneratedAt.Format(time.RFC3339Nano),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.statusKey(sum.RunID), m)
	pipe.Expire(ctx, s.statusKey(sum.RunID), runTTL)
	for i := 1; i <= sum.Success+sum.Failure; i++ {
		pipe.Expire(ctx, s.recordKey(sum.RunID, i), runTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis finish run %s: %w", sum.RunID, err)
	}
	log.Info().Str("run_id", sum.RunID).Str("status", status).Msg("run archived in redis")
	return nil
}

// Get reads a run status. The bool is false when the run is unknown or expired.
func (s *RunStore) Get(ctx context.Context, runID string) (RunStatus, bool, error) {
	res, err := s.client.HGetAll(ctx, s.statusKey(runID)).Result()
	if err != nil {
		return RunStatus{}, false, err
	}
	if len(res) == 0 {
		return RunStatus{}, false, nil
	}
	return parseStatus(res), true, nil
}

func parseStatus(res map[string]string) RunStatus {
	st := RunStatus{
		Status:      res["status"],
		AbortReason: res["abort_reason"],
	}
	// missing or bad counters read as 0
	st.Total, _ = strconv.Atoi(res["total"])
	st.Success, _ = strconv.Atoi(res["success"])
	st.Failure, _ = strconv.Atoi(res["failure"])
	st.Done, _ = strconv.Atoi(res["done"])
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	return st
}
