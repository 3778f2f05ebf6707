package reportstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/you-humble/detectify/internal/domain"

	"github.com/redis/go-redis/v9"
)

// redisReportCache is the content-addressed cache: one hash per sha256
// holding the report location and, once computed, the classification
// result. Entries are written on first retrieval and read-only for
// subsequent tasks with the same content hash (cache-aside).
type redisReportCache struct {
	rdb redis.Cmdable
}

func NewRedisReportCache(rdb redis.Cmdable) *redisReportCache {
	return &redisReportCache{rdb: rdb}
}

func (c *redisReportCache) Lookup(ctx context.Context, sha256 string) (domain.ReportCacheEntry, bool, error) {
	res, err := c.rdb.HGetAll(ctx, reportKey(sha256)).Result()
	if err != nil {
		return domain.ReportCacheEntry{}, false, fmt.Errorf("redis get report %s: %w", sha256, err)
	}
	if len(res) == 0 {
		return domain.ReportCacheEntry{}, false, nil
	}

	entry := domain.ReportCacheEntry{
		SHA256:     sha256,
		ReportPath: res["report_path"],
	}

	if label, ok := res["label"]; ok && label != "" {
		score, _ := strconv.ParseFloat(res["score"], 64)
		entry.Result = &domain.Result{Label: label, Score: score}
	}

	return entry, true, nil
}

func (c *redisReportCache) SaveReport(ctx context.Context, sha256, reportPath string) error {
	err := c.rdb.HSet(ctx, reportKey(sha256), "report_path", reportPath).Err()
	if err != nil {
		return fmt.Errorf("redis save report %s: %w", sha256, err)
	}
	return nil
}

// SaveResult upserts the classification verdict for a content hash so a
// future task with identical content can skip the model entirely.
func (c *redisReportCache) SaveResult(ctx context.Context, sha256 string, r domain.Result) error {
	err := c.rdb.HSet(ctx, reportKey(sha256), map[string]interface{}{
		"label": r.Label,
		"score": strconv.FormatFloat(r.Score, 'f', -1, 64),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis save result %s: %w", sha256, err)
	}
	return nil
}

func reportKey(sha256 string) string {
	return "report:" + sha256
}
