package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencerKeepsOrderPerKey(t *testing.T) {
	seq := NewSequencer()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, seq.Submit("alice", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	seq.Close()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Zero(t, seq.Pending())
}

func TestSequencerKeysDoNotBlockEachOther(t *testing.T) {
	seq := NewSequencer()
	release := make(chan struct{})
	seq.Submit("alice", func() { <-release })
	seq.Submit("alice", func() {})

	done := make(chan struct{})
	seq.Submit("bob", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bob's task waited for alice's")
	}
	assert.Eventually(t, func() bool { return seq.Pending() == 2 }, time.Second, time.Millisecond)

	close(release)
	seq.Close()
	assert.Zero(t, seq.Pending())
}

func TestSequencerRecoversPanic(t *testing.T) {
	seq := NewSequencer()
	ran := false
	seq.Submit("alice", func() { panic("boom") })
	seq.Submit("alice", func() { ran = true })
	seq.Close()
	assert.True(t, ran)
}

func TestSequencerRejectsAfterClose(t *testing.T) {
	seq := NewSequencer()
	seq.Close()
	assert.False(t, seq.Submit("alice", func() {}))
}
