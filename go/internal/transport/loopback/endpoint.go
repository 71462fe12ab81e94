package loopback

import (
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/rpc"
)

// Endpoint is one peer's view of a Network. It implements rpc.Transport.
type Endpoint struct {
	net   *Network
	peer  models.Peer
	queue []rpc.Event // guarded by net.mu
}

var _ rpc.Transport = (*Endpoint)(nil)

// Local returns the endpoint's peer.
func (e *Endpoint) Local() models.Peer {
	return e.peer
}

// Send delivers a reliable call to the target set.
func (e *Endpoint) Send(target rpc.Target, msg rpc.Message) error {
	return e.net.send(e.peer.ID, target, msg)
}

// Publish delivers msg on the unreliable channel to every other peer.
func (e *Endpoint) Publish(msg rpc.Message) error {
	return e.net.publish(e.peer.ID, msg)
}

// Poll drains everything queued for this peer.
func (e *Endpoint) Poll() []rpc.Event {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	out := e.queue
	e.queue = nil
	return out
}

// Close leaves the network.
func (e *Endpoint) Close() error {
	e.net.leave(e)
	return nil
}
