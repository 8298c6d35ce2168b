// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"time"

	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
)

type poolOption struct {
	// preAlloc 预先分配全部 worker。
	preAlloc bool
	// nonBlocking 为 true 时池满直接拒绝任务，否则阻塞提交方。
	nonBlocking bool
	// expiryDuration 为空闲 worker 的回收间隔，0 使用 ants 缺省值。
	expiryDuration time.Duration
	// concealPanic 为 true 时任务 panic 只记录到 Future，不再向上抛出。
	concealPanic bool
	// panicHandler 替换缺省的 panic 处理。
	panicHandler func(any)
	// preHandler 在每个任务执行前调用。
	preHandler func()
}

func defaultPoolOption() *poolOption {
	return &poolOption{}
}

func (opt *poolOption) antsOptions() []ants.Option {
	result := []ants.Option{
		ants.WithPreAlloc(opt.preAlloc),
		ants.WithNonblocking(opt.nonBlocking),
		ants.WithPanicHandler(opt.handlePanic),
	}
	if opt.expiryDuration > 0 {
		result = append(result, ants.WithExpiryDuration(opt.expiryDuration))
	}
	return result
}

// handlePanic 处理 Submit 重新抛出的任务 panic，Future 中已经记录了错误。
func (opt *poolOption) handlePanic(v any) {
	if opt.panicHandler != nil {
		opt.panicHandler(v)
		return
	}
	log.Error("conc pool task panicked", zap.Any("panic", v))
	if !opt.concealPanic {
		panic(v)
	}
}

// PoolOption 用于配置协程池行为的选项函数。
type PoolOption func(opt *poolOption)

func WithPreAlloc(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.preAlloc = v
	}
}

func WithNonBlocking(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.nonBlocking = v
	}
}

func WithExpiryDuration(d time.Duration) PoolOption {
	return func(opt *poolOption) {
		opt.expiryDuration = d
	}
}

// WithConcealPanic 控制任务 panic 是否被吞掉，批量序列化使用 true。
func WithConcealPanic(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.concealPanic = v
	}
}

func WithPreHandler(fn func()) PoolOption {
	return func(opt *poolOption) {
		opt.preHandler = fn
	}
}

// WithPanicHandler 设置自定义 panic 处理逻辑，替换缺省的日志处理。
func WithPanicHandler(fn func(any)) PoolOption {
	return func(opt *poolOption) {
		opt.panicHandler = fn
	}
}
