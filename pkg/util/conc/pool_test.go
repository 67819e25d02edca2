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
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestPool(t *testing.T) {
	pool := NewPool[any](10)
	defer pool.Release()

	futures := make([]*Future[any], 0, 10)
	for i := 0; i < 10; i++ {
		res := i
		future := pool.Submit(func() (any, error) {
			time.Sleep(10 * time.Millisecond)
			return res, nil
		})
		futures = append(futures, future)
	}

	assert.Equal(t, 10, pool.Cap())
	assert.NoError(t, AwaitAll(futures...))
	for i, future := range futures {
		res, err := future.Await()
		assert.NoError(t, err)
		assert.Equal(t, i, res.(int))
		assert.True(t, future.Done())
	}

	assert.NoError(t, pool.Resize(20))
	assert.Equal(t, 20, pool.Cap())
	assert.Error(t, pool.Resize(0))
}

func TestPoolError(t *testing.T) {
	pool := NewPool[int](2)
	defer pool.Release()

	errBoom := errors.New("boom")
	ok := pool.Submit(func() (int, error) { return 1, nil })
	bad := pool.Submit(func() (int, error) { return 0, errBoom })

	assert.ErrorIs(t, AwaitAll(ok, bad), errBoom)
	assert.True(t, ok.OK())
	assert.ErrorIs(t, bad.Err(), errBoom)
}

func TestPoolReleased(t *testing.T) {
	pool := NewPool[int](1)
	pool.Release()

	future := pool.Submit(func() (int, error) { return 1, nil })
	assert.Error(t, future.Err())
}

func TestGo(t *testing.T) {
	future := Go(func() (string, error) { return "done", nil })
	<-future.Inner()
	assert.Equal(t, "done", future.Value())
}

func TestPoolConcealPanic(t *testing.T) {
	pool := NewPool[int](1, WithName("test"), WithConcealPanic(true), WithExpiryDuration(time.Second))
	defer pool.Release()

	future := pool.Submit(func() (int, error) { panic("boom") })
	_, err := future.Await()
	assert.Error(t, err)

	ok := pool.Submit(func() (int, error) { return 2, nil })
	assert.Equal(t, 2, ok.Value())
}

func TestPoolNonBlocking(t *testing.T) {
	pool := NewPool[int](1, WithNonBlocking(true), WithPreAlloc(true))
	defer pool.Release()

	release := make(chan struct{})
	busy := pool.Submit(func() (int, error) {
		<-release
		return 1, nil
	})
	rejected := pool.Submit(func() (int, error) { return 2, nil })
	assert.Error(t, rejected.Err())
	close(release)
	assert.NoError(t, busy.Err())
	assert.Error(t, pool.Resize(4))
}
