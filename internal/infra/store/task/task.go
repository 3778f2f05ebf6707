package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/you-humble/detectify/internal/domain"

	"github.com/redis/go-redis/v9"
)

// redisTaskStore keeps one Redis hash per task. Partial updates are a
// single HSET with a field map, so two concurrent updates to the same
// task can never interleave into a mixed field set. The TTL is armed at
// creation and never renewed.
type redisTaskStore struct {
	rdb redis.Cmdable
}

func NewRedisTaskStore(rdb redis.Cmdable) *redisTaskStore {
	return &redisTaskStore{rdb: rdb}
}

func (s *redisTaskStore) Create(ctx context.Context, p domain.CreateTaskParams) error {
	hk := taskKey(p.ID)

	claimed, err := s.rdb.HSetNX(ctx, hk, "task_id", p.ID).Result()
	if err != nil {
		return fmt.Errorf("redis claim task %s: %w", p.ID, err)
	}
	if !claimed {
		return domain.ErrTaskExists
	}

	now := time.Now()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, hk, map[string]interface{}{
		"status":      string(domain.StatusQueued),
		"meta":        "",
		"file_path":   p.FilePath,
		"sha256":      "",
		"report_path": "",
		"result":      "",
		"created_at":  now.UnixNano(),
	})
	pipe.Expire(ctx, hk, p.TTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline create task %s: %w", p.ID, err)
	}

	return nil
}

func (s *redisTaskStore) Task(ctx context.Context, id string) (domain.Task, error) {
	res, err := s.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return domain.Task{}, fmt.Errorf("redis get task %s: %w", id, err)
	}
	if len(res) == 0 {
		return domain.Task{}, domain.ErrTaskNotFound
	}

	t := domain.Task{
		ID:         id,
		Status:     domain.TaskStatus(res["status"]),
		Meta:       res["meta"],
		FilePath:   res["file_path"],
		SHA256:     res["sha256"],
		ReportPath: res["report_path"],
	}

	if v := res["result"]; v != "" {
		var r domain.Result
		if err := json.Unmarshal([]byte(v), &r); err == nil {
			t.Result = &r
		}
	}

	if v := res["created_at"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			t.CreatedAt = time.Unix(0, n)
		}
	}

	return t, nil
}

// updateScript guards the partial update with the existence check inside
// Redis. A plain EXISTS followed by HSET leaves a window where the TTL
// fires in between and the HSET resurrects the hash with only the
// updated fields and no expiry.
var updateScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

func (s *redisTaskStore) Update(ctx context.Context, id string, upd domain.TaskUpdate) error {
	args := make([]interface{}, 0, 10)
	if upd.Status != nil {
		args = append(args, "status", string(*upd.Status))
	}
	if upd.Meta != nil {
		args = append(args, "meta", *upd.Meta)
	}
	if upd.SHA256 != nil {
		args = append(args, "sha256", *upd.SHA256)
	}
	if upd.ReportPath != nil {
		args = append(args, "report_path", *upd.ReportPath)
	}
	if upd.Result != nil {
		raw, err := json.Marshal(upd.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		args = append(args, "result", string(raw))
	}
	if len(args) == 0 {
		return nil
	}

	n, err := updateScript.Run(ctx, s.rdb, []string{taskKey(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis update task %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrTaskNotFound
	}

	return nil
}

// Delete is used only as compensation when enqueueing a freshly created
// task fails.
func (s *redisTaskStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, taskKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete task %s: %w", id, err)
	}
	return nil
}

func taskKey(id string) string {
	return "task:" + id
}
