package marshal

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/zeus-marshal/pkg/util/conc"
)

var errItemSkipped = errors.New("item skipped after abort")

type itemResult struct {
	out  *Mapping
	errs FieldErrors
}

// marshalParallel 使用协程池并发序列化各元素，结果仍按下标排列。
// 任意元素出现致命错误后，尚未开始的元素直接跳过，返回下标最小的致命错误。
func (m *Marshaller) marshalParallel(ctx context.Context, items []any, fields []boundField) ([]*Mapping, []FieldErrors, error) {
	size := m.opts.parallelism
	if size > len(items) {
		size = len(items)
	}
	pool, err := conc.NewPool[itemResult](size, conc.WithConcealPanic(true))
	if err != nil {
		return nil, nil, err
	}
	defer pool.Release()

	var aborted atomic.Bool
	futures := make([]*conc.Future[itemResult], len(items))
	for i, item := range items {
		futures[i] = pool.Submit(func() (itemResult, error) {
			if aborted.Load() {
				return itemResult{}, errItemSkipped
			}
			if err := ctx.Err(); err != nil {
				aborted.Store(true)
				return itemResult{}, errors.Wrapf(err, "marshal item %d", i)
			}
			out, errs, err := m.marshalOne(ctx, item, fields)
			if err != nil {
				aborted.Store(true)
				return itemResult{}, errors.Wrapf(err, "marshal item %d", i)
			}
			return itemResult{out: out, errs: errs}, nil
		})
	}

	outs := make([]*Mapping, len(items))
	perItem := make([]FieldErrors, len(items))
	var firstErr error
	for i, future := range futures {
		res, err := future.Await()
		if err != nil {
			if firstErr == nil && !errors.Is(err, errItemSkipped) {
				firstErr = err
			}
			continue
		}
		outs[i] = res.out
		perItem[i] = res.errs
	}
	if firstErr != nil {
		return nil, nil, firstErr
	}
	return outs, perItem, nil
}
