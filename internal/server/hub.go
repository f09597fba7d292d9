package server

import (
	"errors"
	"io"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/fakeyudi/focuspet/internal/gaze"
)

const maxDecodeErrorsPerConn = 3

// wsPeer is one connected push-channel client.
type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
	room string // session id joined via join_session
}

func (p *wsPeer) writeFrame(f gaze.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return websocket.JSON.Send(p.conn, f)
}

// hub fans frames out to every peer, or to the peers in one session room.
type hub struct {
	mu    sync.Mutex
	peers map[*wsPeer]struct{}
}

func newHub() *hub {
	return &hub{peers: make(map[*wsPeer]struct{})}
}

func (h *hub) add(conn *websocket.Conn) *wsPeer {
	p := &wsPeer{conn: conn}
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	return p
}

func (h *hub) remove(p *wsPeer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
}

func (h *hub) join(p *wsPeer, room string) {
	h.mu.Lock()
	p.room = room
	h.mu.Unlock()
}

// targets returns the peers in room, or every peer when room is empty.
func (h *hub) targets(room string) []*wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*wsPeer, 0, len(h.peers))
	for p := range h.peers {
		if room == "" || p.room == room {
			out = append(out, p)
		}
	}
	return out
}

// broadcast sends f to every peer; room restricts delivery to one session.
// Peers that fail to receive are dropped.
func (h *hub) broadcast(room string, f gaze.Frame) {
	for _, p := range h.targets(room) {
		if err := p.writeFrame(f); err != nil {
			p.conn.Close()
			h.remove(p)
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// handleWSConn serves one push-channel connection until it closes. The only
// client frame understood is join_session.
func (h *hub) handleWSConn(conn *websocket.Conn) {
	defer conn.Close()
	p := h.add(conn)
	defer h.remove(p)

	decodeErrors := 0
	for {
		var f gaze.Frame
		if err := websocket.JSON.Receive(conn, &f); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if f.Type == gaze.FrameJoinSession && f.SessionID != "" {
			h.join(p, f.SessionID)
		}
	}
}
