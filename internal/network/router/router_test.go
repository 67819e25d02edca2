package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

type joinRequest struct {
	Username string `json:"username"`
}

type joinResponse struct {
	Generation uint64 `json:"generation"`
}

func TestDispatch(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(2, Handle(func(_ context.Context, req *joinRequest) (*joinResponse, error) {
		if req.Username == "" {
			return nil, merr.WrapErrInvalidArgument("Username is required")
		}
		return &joinResponse{Generation: 1}, nil
	})))

	resp, err := r.Dispatch(context.Background(), 2, []byte(`{"username":"alice"}`))
	require.NoError(t, err)
	assert.Equal(t, &joinResponse{Generation: 1}, resp)

	resp, err = r.Dispatch(context.Background(), 2, nil)
	assert.ErrorIs(t, err, merr.ErrInvalidArgument)
	assert.Nil(t, resp)
}

func TestDispatchNilResponse(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(3, Handle(func(context.Context, *joinRequest) (*struct{}, error) {
		return nil, nil
	})))
	resp, err := r.Dispatch(context.Background(), 3, nil)
	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestDispatchUnknownOp(t *testing.T) {
	_, err := New(nil).Dispatch(context.Background(), 42, nil)
	assert.ErrorIs(t, err, merr.ErrServiceUnimplemented)
}

func TestDispatchMalformedPayload(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(2, Handle(func(context.Context, *joinRequest) (*joinResponse, error) {
		return &joinResponse{}, nil
	})))
	_, err := r.Dispatch(context.Background(), 2, []byte(`{"username":`))
	assert.ErrorIs(t, err, merr.ErrInvalidArgument)
}

func TestRegisterValidation(t *testing.T) {
	r := New(nil)
	route := Handle(func(context.Context, *joinRequest) (*joinResponse, error) { return nil, nil })

	assert.Error(t, r.Register(0, route))
	assert.Error(t, r.Register(1, Route{Handler: route.Handler}))
	assert.Error(t, r.Register(1, Route{NewRequest: route.NewRequest}))
	require.NoError(t, r.Register(5, route))
	require.NoError(t, r.Register(1, route))
	assert.Error(t, r.Register(1, route))
	assert.Equal(t, []uint32{1, 5}, r.Ops())
}
