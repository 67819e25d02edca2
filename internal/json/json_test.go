package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roster struct {
	Names      []string `json:"names"`
	Generation uint64   `json:"generation"`
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(&roster{Names: []string{"alice", "bob"}, Generation: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"names":["alice","bob"],"generation":2}`, string(data))
	assert.True(t, Valid(data))

	var out roster
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, []string{"alice", "bob"}, out.Names)
	assert.Equal(t, uint64(2), out.Generation)
}

func TestUnmarshalInvalid(t *testing.T) {
	var out roster
	assert.Error(t, Unmarshal([]byte(`{"names":`), &out))
	assert.False(t, Valid([]byte(`{`)))
}
