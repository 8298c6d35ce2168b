// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
	"github.com/lk2023060901/zeus-marshal/pkg/util/merr"
)

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Do 执行 fn，失败时按指数退避重试，直到成功、次数用尽、错误不可恢复或 ctx 结束。
// 因 ctx 结束而放弃时返回最后一次业务错误，没有业务错误时返回 ctx 的错误。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	logger := log.Ctx(ctx).With(zap.String("caller", getCaller(2)))

	var lastErr error
	for i := uint(0); c.attempts == 0 || i < c.attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if reason, giveUp := c.stop(ctx, err); giveUp {
			logger.Warn("retry func stopped",
				zap.String("reason", reason),
				zap.Uint("retried", i),
				zap.Uint("attempts", c.attempts),
				zap.Error(err))
			if errors.IsAny(err, context.Canceled, context.DeadlineExceeded) && lastErr != nil {
				return lastErr
			}
			return err
		}
		if i%4 == 0 {
			logger.Warn("retry func failed", zap.Uint("retried", i), zap.Error(err))
		}
		lastErr = err

		select {
		case <-time.After(c.sleep):
		case <-ctx.Done():
			logger.Warn("retry func stopped", zap.String("reason", "ctx done"), zap.Uint("retried", i))
			return lastErr
		}
		c.sleep = min(c.sleep*2, c.maxSleepTime)
	}
	logger.Warn("retry func failed, reach max retry", zap.Uint("attempts", c.attempts), zap.Error(lastErr))
	return lastErr
}

// stop 判断 err 之后是否应放弃重试，并返回原因。
func (c *config) stop(ctx context.Context, err error) (string, bool) {
	if !IsRecoverable(err) {
		return "unrecoverable", true
	}
	if c.isRetryErr != nil && !c.isRetryErr(err) {
		return "not retryable", true
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.sleep {
		return "deadline", true
	}
	return "", false
}

// errUnrecoverable 为不可恢复错误的标记。
var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 将错误标记为不可恢复，Do 遇到时立即返回。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

// IsRecoverable 判断错误是否可以重试。
func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}
