package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/lk2023060901/danmu-chat-go/internal/client/mocks"
	"github.com/lk2023060901/danmu-chat-go/internal/config"
)

func TestDispatcherPreservesOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)

	gomock.InOrder(
		sink.EXPECT().SetConnected(true),
		sink.EXPECT().AppendMessage("one"),
		sink.EXPECT().UpdateRoster([]string{"alice", "bob"}),
		sink.EXPECT().AppendMessage("two"),
		sink.EXPECT().ShowError("Connection Error", "Connection lost"),
		sink.EXPECT().SetConnected(false),
	)

	d := NewDispatcher(sink, 2)
	d.SetConnected(true)
	d.AppendMessage("one")
	names := []string{"alice", "bob"}
	d.UpdateRoster(names)
	names[0] = "mutated"
	d.AppendMessage("two")
	d.ShowError("Connection Error", "Connection lost")
	d.SetConnected(false)
	d.Close()
}

func TestDispatcherClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)

	d := NewDispatcher(sink, 0)
	d.Close()
	d.Close()
	assert.False(t, d.Post(func(Sink) { t.Fatal("applied after close") }))
	d.AppendMessage("dropped")
}

func TestSessionOutputGoesThroughDispatcher(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)

	gomock.InOrder(
		sink.EXPECT().AppendMessage("Commands:"),
		sink.EXPECT().ShowError("Input Error", "Please enter a message"),
		sink.EXPECT().AppendMessage("after"),
	)

	sess, err := NewSession(config.Default().Client, "alice", sink)
	require.NoError(t, err)
	sess.AppendMessage("Commands:")
	sess.ShowError("Input Error", "Please enter a message")
	sess.AppendMessage("after")
	require.NoError(t, sess.Close(context.Background()))
}
