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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// zeusNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	zeusNamespace = "zeus"

	marshalSubsystem = "marshal"

	// 以下为当前使用的通用标签名。
	modeLabelName   = "mode"
	statusLabelName = "status"

	ModeOne      = "one"
	ModeMany     = "many"
	ModeLoadOne  = "load_one"
	ModeLoadMany = "load_many"

	StatusSuccess = "success"
	StatusInvalid = "invalid"
	StatusFailed  = "failed"
)

var (
	// buckets 为耗时直方图的桶划分，单位为毫秒。
	// [0.01 0.02 0.04 ... 655.36]
	buckets = prometheus.ExponentialBuckets(0.01, 2, 17)

	MarshalCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: zeusNamespace,
			Subsystem: marshalSubsystem,
			Name:      "calls_total",
			Help:      "number of marshal calls by mode and status",
		}, []string{modeLabelName, statusLabelName})

	MarshalItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: zeusNamespace,
			Subsystem: marshalSubsystem,
			Name:      "items_total",
			Help:      "number of source objects marshalled",
		}, []string{modeLabelName})

	MarshalFieldErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: zeusNamespace,
			Subsystem: marshalSubsystem,
			Name:      "field_errors_total",
			Help:      "number of fields that failed validation",
		}, []string{modeLabelName})

	MarshalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: zeusNamespace,
			Subsystem: marshalSubsystem,
			Name:      "latency_ms",
			Help:      "latency of marshal calls in milliseconds",
			Buckets:   buckets,
		}, []string{modeLabelName})

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只有第一次生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(MarshalCallsTotal)
		r.MustRegister(MarshalItemsTotal)
		r.MustRegister(MarshalFieldErrorsTotal)
		r.MustRegister(MarshalLatency)
		metricRegisterer = r
	})
}
