package batch

import (
	"context"
	"errors"
	"math/big"
	"runtime"

	"github.com/sea-project/sea-sm2/crypto/sm2"
	"github.com/sea-project/sea-sm2/logger"
	"golang.org/x/sync/errgroup"
)

var ErrLengthMismatch = errors.New("batch: input slices differ in length")

// Runner 以固定数量的worker并发签名/验签, 结果按提交顺序返回
type Runner struct {
	engine  sm2.Engine
	workers int
}

// New workers<=0 时取 runtime.NumCPU()
func New(engine sm2.Engine, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{engine: engine, workers: workers}
}

func (r *Runner) Workers() int { return r.workers }

// ParallelSign 对msgs逐条签名, sigs[i]对应msgs[i].
// ctx只在分发前检查, 已开始的签名会执行完毕.
func (r *Runner) ParallelSign(ctx context.Context, rand sm2.RandSource, msgs [][]byte, d *big.Int, uid []byte) ([]sm2.Signature, error) {
	sigs := make([]sm2.Signature, len(msgs))
	err := r.run(ctx, len(msgs), func(i int) error {
		sig, err := r.engine.Sign(rand, msgs[i], d, uid)
		if err != nil {
			return err
		}
		sigs[i] = sig
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sigs, nil
}

// ParallelVerify 第i条结果对应 (msgs[i], sigs[i], pubs[i], uids[i]), uids为nil时全部使用默认ID
func (r *Runner) ParallelVerify(ctx context.Context, msgs [][]byte, sigs []sm2.Signature, pubs []sm2.Point, uids [][]byte) ([]bool, error) {
	if len(sigs) != len(msgs) || len(pubs) != len(msgs) || (uids != nil && len(uids) != len(msgs)) {
		return nil, ErrLengthMismatch
	}
	results := make([]bool, len(msgs))
	err := r.run(ctx, len(msgs), func(i int) error {
		var uid []byte
		if uids != nil {
			uid = uids[i]
		}
		results[i] = r.engine.Verify(msgs[i], sigs[i], pubs[i], uid)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) run(ctx context.Context, n int, job func(i int) error) error {
	var g errgroup.Group
	g.SetLimit(r.workers)

	var ctxErr error
	for i := 0; i < n; i++ {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		i := i
		g.Go(func() error { return job(i) })
	}
	err := g.Wait()
	if err == nil {
		err = ctxErr
	}
	if err != nil {
		logger.Warn("batch aborted", "jobs", n, "workers", r.workers, "err", err)
		return err
	}
	logger.Debug("batch done", "jobs", n, "workers", r.workers)
	return nil
}
