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
	// #nosec
	_ "net/http/pprof"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// chatNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	chatNamespace = "danmu_chat"

	// 以下为当前使用的通用标签名。
	kindLabelName   = "kind"
	resultLabelName = "result"
	opLabelName     = "op"
	codeLabelName   = "code"
)

// 投递类型与结果的标签取值。
const (
	KindBroadcast = "broadcast"
	KindPrivate   = "private"
	KindRoster    = "roster"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// latencyBuckets 为单次投递耗时直方图的桶划分，单位为秒。
	// 实际桶分布为 1ms 到约 8s 的 2 倍指数分布。
	latencyBuckets = prometheus.ExponentialBuckets(0.001, 2, 14)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "deliveries_total",
			Help:      "number of per-recipient deliveries by kind and result",
		}, []string{kindLabelName, resultLabelName})

	EvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "evictions_total",
			Help:      "number of participants evicted after a failed delivery or a lost connection",
		})

	Participants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: chatNamespace,
			Name:      "participants",
			Help:      "number of participants currently in the roster",
		})

	Sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: chatNamespace,
			Name:      "sessions",
			Help:      "number of open client connections",
		})

	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: chatNamespace,
			Name:      "delivery_latency_seconds",
			Help:      "latency of a single callback delivery",
			Buckets:   latencyBuckets,
		}, []string{kindLabelName})

	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: chatNamespace,
			Name:      "rpc_requests_total",
			Help:      "number of inbound rpc requests by op and result code",
		}, []string{opLabelName, codeLabelName})

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
		r.MustRegister(DeliveriesTotal)
		r.MustRegister(EvictionsTotal)
		r.MustRegister(Participants)
		r.MustRegister(Sessions)
		r.MustRegister(DeliveryLatency)
		r.MustRegister(RPCRequestsTotal)
		registerLoggingMetrics(r)
		metricRegisterer = r
	})
}
