// Package relay implements the signaling link: a websocket client for the
// relay's /ws/<room>/<user> endpoint.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/signal"
)

const (
	writeWait      = 10 * time.Second
	sendBuffer     = 64
	maxMessageSize = 512 * 1024
)

var ErrLinkClosed = errors.New("link closed")

// Link is the one signaling connection for a room/user pair. It queues
// sends issued before the dial completes and flushes them in order once
// the socket is up; sends after Close are dropped and logged.
type Link struct {
	url        string
	pingPeriod time.Duration

	mu       sync.Mutex
	state    core.LinkState
	conn     *websocket.Conn
	pending  [][]byte
	send     chan []byte
	done     chan struct{}
	handler  func(env signal.Envelope)
	onClosed func()
	downOnce sync.Once
}

func NewLink(base string, room domain.RoomID, user domain.PeerID, pingPeriod time.Duration) *Link {
	return &Link{
		url:        fmt.Sprintf("%s/ws/%s/%s", strings.TrimRight(base, "/"), room, user),
		pingPeriod: pingPeriod,
		state:      core.LinkIdle,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

func (l *Link) OnMessage(fn func(env signal.Envelope)) { l.handler = fn }
func (l *Link) OnClosed(fn func())                     { l.onClosed = fn }

func (l *Link) State() core.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Open dials the relay. Calling it while connecting or open is a no-op;
// a closed link stays closed and the caller has to build a fresh one.
func (l *Link) Open(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case core.LinkConnecting, core.LinkOpen:
		l.mu.Unlock()
		return nil
	case core.LinkClosed:
		l.mu.Unlock()
		return ErrLinkClosed
	}
	l.state = core.LinkConnecting
	l.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
	if err != nil {
		l.mu.Lock()
		l.state = core.LinkClosed
		l.mu.Unlock()
		return fmt.Errorf("dial relay: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	l.mu.Lock()
	if l.state == core.LinkClosed {
		// Closed while dialing.
		l.mu.Unlock()
		_ = conn.Close()
		return ErrLinkClosed
	}
	l.conn = conn
	l.state = core.LinkOpen
	// Flush before releasing the lock: a Send racing the state flip must
	// land behind everything queued while the link was establishing.
	for _, b := range l.pending {
		l.enqueue(b)
	}
	l.pending = nil
	l.mu.Unlock()

	go l.readPump()
	go l.writePump()

	log.Info().Str("module", "relay").Str("url", l.url).Msg("link open")
	return nil
}

// Send delivers env if the link is ready, queues it while the link is
// establishing, and drops it with a log line otherwise. Callers never see
// an error; signaling failure is non-fatal to the calling code path.
func (l *Link) Send(env signal.Envelope) {
	b, err := signal.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode envelope")
		return
	}

	l.mu.Lock()
	switch l.state {
	case core.LinkIdle, core.LinkConnecting:
		l.pending = append(l.pending, b)
		l.mu.Unlock()
		return
	case core.LinkClosed:
		l.mu.Unlock()
		log.Warn().Str("module", "relay").Str("kind", string(env.Kind)).Msg("send on closed link dropped")
		return
	}
	l.mu.Unlock()
	l.enqueue(b)
}

func (l *Link) enqueue(b []byte) {
	select {
	case l.send <- b:
	default:
		log.Warn().Str("module", "relay").Msg("send buffer full, dropping")
	}
}

// Close is idempotent and safe to call from any goroutine.
func (l *Link) Close() {
	l.mu.Lock()
	if l.state == core.LinkClosed {
		l.mu.Unlock()
		return
	}
	l.state = core.LinkClosed
	conn := l.conn
	l.mu.Unlock()

	close(l.done)
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "relay").Msg("link closed")
}

// shutdown is the error-driven close path: the peer or the network killed
// the socket. It notifies the owner once; explicit Close does not.
func (l *Link) shutdown(err error) {
	l.mu.Lock()
	already := l.state == core.LinkClosed
	l.mu.Unlock()
	if !already {
		log.Warn().Err(err).Str("module", "relay").Msg("link down")
		l.Close()
		l.downOnce.Do(func() {
			if l.onClosed != nil {
				l.onClosed()
			}
		})
	}
}

func (l *Link) readPump() {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.shutdown(err)
			return
		}
		env, err := signal.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "relay").Msg("malformed envelope dropped")
			continue
		}
		if l.handler != nil {
			l.handler(env)
		}
	}
}

func (l *Link) writePump() {
	ticker := time.NewTicker(l.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = l.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case b := <-l.send:
			if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				l.shutdown(err)
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				l.shutdown(err)
				return
			}
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.shutdown(err)
				return
			}
		}
	}
}
