package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

const defaultPingInterval = 30 * time.Second

// Client is one WebSocket peer. Outbound frames go through a bounded queue
// drained by a single writer goroutine, so Send never blocks on the network.
type Client struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	finished     chan struct{}
	writeTimeout time.Duration
	pingInterval time.Duration

	closeOnce   sync.Once
	closeCode   websocket.StatusCode
	closeReason string
}

func NewClient(id string, conn *websocket.Conn, queueSize int, writeTimeout time.Duration) *Client {
	return &Client{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: defaultPingInterval,
	}
}

func (c *Client) ID() string { return c.id }

// Send queues msg. A full queue means the peer is not keeping up; the client
// is closed rather than allowed to hold up its game.
func (c *Client) Send(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.Close(websocket.StatusPolicyViolation, "send queue overflow")
		return ErrSendQueueFull
	}
}

// Close asks the writer to flush what is queued and close the socket.
func (c *Client) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// Wait blocks until the writer has exited.
func (c *Client) Wait() {
	<-c.finished
}

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) write(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) writePump() {
	defer close(c.finished)

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				log.Warn().Err(err).Str("conn", c.id).Msg("write failed, dropping client")
				c.Close(websocket.StatusInternalError, "write failed")
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn", c.id).Msg("ping failed")
				c.Close(websocket.StatusPolicyViolation, "ping timeout")
				c.conn.CloseNow()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.Close(c.closeCode, c.closeReason)
			return
		}
	}
}

// flush writes whatever is still queued, giving up at the first error.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}
