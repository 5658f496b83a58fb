//go:build zmq
// +build zmq

package notify

import (
	zmq "github.com/pebbe/zmq4"
)

func init() {
	RegisterTransport("zmq", NewZMQPublisher)
}

type zmqSocket struct {
	sock *zmq.Socket
}

func (s *zmqSocket) Send(data []byte) error {
	_, err := s.sock.SendBytes(data, 0)
	return err
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}

// NewZMQPublisher binds a ZeroMQ PUB socket to addr (e.g. "tcp://*:9190").
func NewZMQPublisher(addr string) (Publisher, error) {
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := sock.Bind(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return NewSocketPublisher(&zmqSocket{sock: sock}), nil
}
