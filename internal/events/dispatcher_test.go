package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/observatory-remote/internal/logging"
)

func TestDispatchDecodesObjectEvent(t *testing.T) {
	d := NewDispatcher(logging.Noop())
	var got []Message
	d.Register(ChannelLive, func(m Message) { got = append(got, m) })

	err := d.Dispatch(ChannelLive, []byte(`{"Response":{"Event":"FILTERWHEEL-CHANGED","New":{"Name":"Ha","Id":3}},"Success":true,"StatusCode":200,"Type":"Socket"}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "FILTERWHEEL-CHANGED", got[0].Event)
	require.Equal(t, ChannelLive, got[0].Channel)
	require.True(t, got[0].Success)
	require.Equal(t, "Ha", got[0].Fields["New"].(map[string]any)["Name"])
	require.False(t, got[0].ReceivedAt.IsZero())
}

func TestDispatchDecodesStringResponse(t *testing.T) {
	d := NewDispatcher(nil)
	var got Message
	d.Register(ChannelTPPA, func(m Message) { got = m })

	require.NoError(t, d.Dispatch(ChannelTPPA, []byte(`{"Response":"started procedure","Success":true}`)))
	require.Equal(t, "started procedure", got.Event)
	require.Nil(t, got.Fields)
}

func TestRegisterReplacesSingleCallback(t *testing.T) {
	d := NewDispatcher(nil)
	first, second := 0, 0
	require.False(t, d.Register(ChannelMount, func(Message) { first++ }))
	require.True(t, d.Register(ChannelMount, func(Message) { second++ }))

	require.NoError(t, d.Dispatch(ChannelMount, []byte(`{"Response":"ok"}`)))
	require.Equal(t, 0, first)
	require.Equal(t, 1, second)
}

func TestDispatchWithoutHandler(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(ChannelLive, func(Message) {})
	d.Unregister(ChannelLive)
	require.ErrorIs(t, d.Dispatch(ChannelLive, []byte(`{"Response":"x"}`)), ErrNoHandler)
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(ChannelLive, func(Message) { t.Fatalf("handler must not run") })
	require.ErrorIs(t, d.Dispatch(ChannelLive, []byte(`not json`)), ErrMalformedMessage)
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(ChannelLive, func(Message) { panic("boom") })
	require.NotPanics(t, func() {
		_ = d.Dispatch(ChannelLive, []byte(`{"Response":{"Event":"IMAGE-SAVE"}}`))
	})
}

func TestDispatchUnknownChannel(t *testing.T) {
	d := NewDispatcher(nil)
	require.ErrorIs(t, d.Dispatch(Channel("guider"), []byte(`{"Response":"x"}`)), ErrUnknownChannel)
}
