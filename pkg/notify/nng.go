//go:build nng
// +build nng

package notify

import (
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

func init() {
	RegisterTransport("nng", NewNNGPublisher)
}

// nngSocket wraps a mangos.Socket to implement Socket.
type nngSocket struct {
	sock mangos.Socket
}

func (s *nngSocket) Send(data []byte) error {
	return s.sock.Send(data)
}

func (s *nngSocket) Close() error {
	return s.sock.Close()
}

// NewNNGPublisher listens on addr (e.g. "tcp://*:9190") with an NNG PUB
// socket.
func NewNNGPublisher(addr string) (Publisher, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return NewSocketPublisher(&nngSocket{sock: sock}), nil
}
