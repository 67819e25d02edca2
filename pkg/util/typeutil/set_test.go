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

package typeutil

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet("alice", "bob")
	assert.True(t, s.Contain("alice", "bob"))
	assert.False(t, s.Contain("alice", "carol"))

	s.Insert("bob", "carol")
	assert.Equal(t, 3, s.Len())

	s.Remove("alice", "nobody")
	got := s.Collect()
	sort.Strings(got)
	assert.Equal(t, []string{"bob", "carol"}, got)

	var empty Set[int]
	assert.Equal(t, 0, empty.Len())
	assert.False(t, empty.Contain(1))
	empty.Remove(1)
}
