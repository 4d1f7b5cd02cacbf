package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

// boundedPushScript appends ARGV[1] unless the list already holds ARGV[2] items.
var boundedPushScript = goredis.NewScript(`
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[1])
return 1
`)

const defaultPollTimeout = time.Second

// Queue is a FIFO job queue on a Redis list, shared by every instance pointed at the
// same key. Delivery is at most once: an id popped by a worker that then crashes is
// not redelivered.
type Queue struct {
	rdb         *goredis.Client
	key         string
	maxLen      int
	pollTimeout time.Duration
}

var _ domain.JobQueue = (*Queue)(nil)

func NewQueue(rdb *goredis.Client, key string, maxLen int) *Queue {
	return &Queue{rdb: rdb, key: key, maxLen: maxLen, pollTimeout: defaultPollTimeout}
}

func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	pushed, err := boundedPushScript.Run(ctx, q.rdb, []string{q.key}, jobID, q.maxLen).Int()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	if pushed == 0 {
		return fmt.Errorf("enqueue %s: %w", jobID, domain.ErrQueueFull)
	}
	return nil
}

// Dequeue polls with BLPOP so cancellation is noticed within one poll interval.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		res, err := q.rdb.BLPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("dequeue: %w", err)
		}
		// BLPOP replies with [key, value]
		return res[1], nil
	}
}

// Len reports the number of queued ids.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
