package notify

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Publisher forwards dirty events outside the process.
type Publisher interface {
	io.Closer
	Publish(ev DirtyEvent) error
}

// Socket is the minimal send side of a PUB socket.
type Socket interface {
	io.Closer
	Send([]byte) error
}

// SocketPublisher frames events and sends them on a Socket.
type SocketPublisher struct {
	mu     sync.Mutex
	sock   Socket
	closed bool
}

// NewSocketPublisher wraps sock. The publisher owns sock.
func NewSocketPublisher(sock Socket) *SocketPublisher {
	return &SocketPublisher{sock: sock}
}

// Publish sends ev as one frame.
func (p *SocketPublisher) Publish(ev DirtyEvent) error {
	frame, err := EncodeFrame(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrHubClosed
	}
	return p.sock.Send(frame)
}

// Close closes the underlying socket
func (p *SocketPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.sock.Close()
}

// PublisherFactory opens a publisher bound to addr.
type PublisherFactory func(addr string) (Publisher, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]PublisherFactory{}
)

// RegisterTransport makes a publisher transport available to NewPublisher.
// Transports behind build tags register themselves from init.
func RegisterTransport(name string, f PublisherFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Transports lists the registered transport names.
func Transports() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPublisher opens a publisher for the named transport. The transport
// "none" (or "") yields a nil publisher and no error.
func NewPublisher(transport, addr string) (Publisher, error) {
	if transport == "" || transport == "none" {
		return nil, nil
	}
	factoriesMu.RLock()
	f, ok := factories[transport]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (build with -tags %s)", ErrTransportUnavailable, transport, transport)
	}
	p, err := f(addr)
	if err != nil {
		return nil, fmt.Errorf("open %s publisher on %s: %w", transport, addr, err)
	}
	return p, nil
}
