package protocol

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

func TestOpName(t *testing.T) {
	assert.Equal(t, "join", OpName(OpJoin))
	assert.Equal(t, "updateRoster", OpName(OpUpdateRoster))
	assert.Equal(t, "77", OpName(77))
}

func TestEndpointName(t *testing.T) {
	assert.Equal(t, "ClientListenService_alice", EndpointName(" alice "))
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion(Version))
	assert.NoError(t, CheckVersion("1.4.2"))
	assert.NoError(t, CheckVersion("v1.0"))

	err := CheckVersion("2.0.0")
	assert.True(t, errors.Is(err, merr.ErrIncompatibleVersion))

	err = CheckVersion("garbage")
	assert.True(t, errors.Is(err, merr.ErrIncompatibleVersion))
}
