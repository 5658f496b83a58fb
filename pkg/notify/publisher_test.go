package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	frames [][]byte
	closed int
}

func (s *fakeSocket) Send(b []byte) error {
	s.frames = append(s.frames, append([]byte(nil), b...))
	return nil
}

func (s *fakeSocket) Close() error {
	s.closed++
	return nil
}

func TestFrameRoundTrip(t *testing.T) {
	ev := sampleEvent("ChaseBall")

	frame, err := EncodeFrame(ev)
	require.NoError(t, err)
	assert.True(t, len(frame) > len(TopicDirty) && string(frame[:len(TopicDirty)+1]) == TopicDirty+" ")

	got, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDecodeFrameRejects(t *testing.T) {
	for _, frame := range []string{"", "dirty", "other {}", "dirty {not json"} {
		_, err := DecodeFrame([]byte(frame))
		assert.ErrorIs(t, err, ErrBadFrame, "frame %q", frame)
	}
}

func TestSocketPublisher(t *testing.T) {
	sock := &fakeSocket{}
	p := NewSocketPublisher(sock)

	require.NoError(t, p.Publish(sampleEvent("a")))
	require.Len(t, sock.frames, 1)

	ev, err := DecodeFrame(sock.frames[0])
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Name)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, sock.closed)
	assert.ErrorIs(t, p.Publish(sampleEvent("b")), ErrHubClosed)
}

func TestNewPublisher(t *testing.T) {
	p, err := NewPublisher("none", "")
	assert.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewPublisher("carrier-pigeon", "coop://roof")
	assert.ErrorIs(t, err, ErrTransportUnavailable)

	RegisterTransport("test", func(addr string) (Publisher, error) {
		if addr == "" {
			return nil, errors.New("no address")
		}
		return NewSocketPublisher(&fakeSocket{}), nil
	})
	assert.Contains(t, Transports(), "test")

	p, err = NewPublisher("test", "mem://x")
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = NewPublisher("test", "")
	assert.Error(t, err)
}
