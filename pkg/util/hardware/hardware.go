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

package hardware

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/pkg/log"
)

var (
	icOnce sync.Once
	ic     bool
	icErr  error
)

// GetCPUNum 返回当前进程可用的 CPU 核心数。
// runtime.GOMAXPROCS 已由 automaxprocs 按 cgroup 限额修正时以其为准。
func GetCPUNum() int {
	procs := runtime.GOMAXPROCS(0)
	counts, err := cpu.Counts(true)
	if err != nil || counts <= 0 {
		return procs
	}
	if procs > 0 && procs < counts {
		return procs
	}
	return counts
}

// GetMemoryCount 返回主机物理内存总量，单位字节。获取失败时返回 0。
func GetMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get memory count", zap.Error(err))
		return 0
	}
	return stats.Total
}

// GetUsedMemoryCount 返回主机已用内存，单位字节。获取失败时返回 0。
func GetUsedMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get memory usage", zap.Error(err))
		return 0
	}
	return stats.Used
}

// InContainer 判断当前进程是否运行在容器中。
func InContainer() (bool, error) {
	icOnce.Do(func() {
		ic, icErr = inContainer()
	})
	return ic, icErr
}

// Fields 返回描述宿主机资源的日志字段，用于启动日志。
func Fields() []zap.Field {
	fields := []zap.Field{
		zap.Int("cpus", GetCPUNum()),
		zap.Uint64("memory", GetMemoryCount()),
		zap.Uint64("usedMemory", GetUsedMemoryCount()),
	}
	in, err := InContainer()
	if err != nil {
		return append(fields, zap.NamedError("containerDetectErr", err))
	}
	return append(fields, zap.Bool("inContainer", in))
}
