package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "loanmanager/pkg/domain-errors"
)

// numApplicationShards spreads per-application locks so unrelated
// applications rarely contend.
const numApplicationShards = 128

const defaultTxTimeout = 5 * time.Second

// ShardedTx is the in-memory TxRunner. Work for the same key runs one at a
// time; memory stores are not rolled back when fn fails, so fn must write
// the conditional update first and only append after it succeeds.
type ShardedTx struct {
	shards  [numApplicationShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	return &ShardedTx{timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := shardFor(key)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

func shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numApplicationShards)
}
