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

package log

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap/zapcore"
)

// lazyWithCore 推迟 core.With 的字段编码，直到该 core 第一次被用于写日志或派生。
// 参考 https://github.com/uber-go/zap/issues/1426。
type lazyWithCore struct {
	corePtr atomic.Pointer[zapcore.Core]
	once    sync.Once
	fields  []zapcore.Field
}

var _ zapcore.Core = (*lazyWithCore)(nil)

// NewLazyWith 包装 core，fields 会在首次使用时追加。
func NewLazyWith(core zapcore.Core, fields []zapcore.Field) zapcore.Core {
	d := &lazyWithCore{fields: fields}
	d.corePtr.Store(&core)
	return d
}

func (d *lazyWithCore) materialize() zapcore.Core {
	d.once.Do(func() {
		withFields := (*d.corePtr.Load()).With(d.fields)
		d.corePtr.Store(&withFields)
	})
	return *d.corePtr.Load()
}

func (d *lazyWithCore) Enabled(level zapcore.Level) bool {
	return (*d.corePtr.Load()).Enabled(level)
}

// Level 返回被包装 core 的最低级别，不触发字段编码。
func (d *lazyWithCore) Level() zapcore.Level {
	return zapcore.LevelOf(*d.corePtr.Load())
}

func (d *lazyWithCore) Sync() error {
	return d.materialize().Sync()
}

func (d *lazyWithCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return d.materialize().Write(entry, fields)
}

func (d *lazyWithCore) With(fields []zapcore.Field) zapcore.Core {
	return d.materialize().With(fields)
}

func (d *lazyWithCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return d.materialize().Check(e, ce)
}
