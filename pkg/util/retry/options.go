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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

type config struct {
	attempts     uint
	sleep        time.Duration
	maxSleepTime time.Duration
	isRetryErr   func(err error) bool

	backOff backoff.BackOff
	clock   clockwork.Clock
	onRetry func(attempt uint, err error, next time.Duration)
}

func newDefaultConfig() *config {
	return &config{
		attempts:     uint(10),
		sleep:        200 * time.Millisecond,
		maxSleepTime: 3 * time.Second,
		clock:        clockwork.NewRealClock(),
	}
}

// newBackOff 返回本次重试使用的间隔策略。
// 未显式指定时，按 sleep 起步、每次翻倍、上限 maxSleepTime 的指数退避。
func (c *config) newBackOff() backoff.BackOff {
	if c.backOff != nil {
		c.backOff.Reset()
		return c.backOff
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.sleep
	b.MaxInterval = c.maxSleepTime
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Option is used to config the retry function.
type Option func(*config)

// Attempts is used to config the max retry times.
// 0 means retry until success or ctx done.
func Attempts(attempts uint) Option {
	return func(c *config) {
		c.attempts = attempts
	}
}

// Sleep is used to config the initial interval time of each execution.
func Sleep(sleep time.Duration) Option {
	return func(c *config) {
		c.sleep = sleep
		// ensure max retry interval is always larger than retry interval
		if c.sleep*2 > c.maxSleepTime {
			c.maxSleepTime = 2 * c.sleep
		}
	}
}

// MaxSleepTime is used to config the max interval time of each execution.
func MaxSleepTime(maxSleepTime time.Duration) Option {
	return func(c *config) {
		// ensure max retry interval is always larger than retry interval
		if c.sleep*2 > maxSleepTime {
			c.maxSleepTime = 2 * c.sleep
		} else {
			c.maxSleepTime = maxSleepTime
		}
	}
}

// RetryErr 指定哪些错误值得重试，返回 false 时立即结束。
func RetryErr(isRetryErr func(err error) bool) Option {
	return func(c *config) {
		c.isRetryErr = isRetryErr
	}
}

// WithBackOff 使用自定义的间隔策略，例如 backoff.NewConstantBackOff。
func WithBackOff(b backoff.BackOff) Option {
	return func(c *config) {
		c.backOff = b
	}
}

// WithClock 替换等待所用的时钟，测试中可注入 clockwork.FakeClock。
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// OnRetry 在每次进入等待前回调，attempt 为已失败的次数。
func OnRetry(fn func(attempt uint, err error, next time.Duration)) Option {
	return func(c *config) {
		c.onRetry = fn
	}
}
