package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/valpere/stran/internal/logging"
	"github.com/valpere/stran/internal/pending"
	"github.com/valpere/stran/internal/translator"
)

// DefaultAckTimeout bounds how long Dispatch waits for the server to accept
// or reject a paragraph.
const DefaultAckTimeout = 10 * time.Second

// Client is a Dispatcher talking to a remote Server.
type Client struct {
	conn *websocket.Conn
	acks *pending.Table[uint64, Message]
	seq  atomic.Uint64

	writeMu     sync.Mutex
	completions chan Completion
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// Dial connects to a bridge server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, ackTimeout time.Duration) (*Client, error) {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to worker %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		conn:        conn,
		acks:        pending.New[uint64, Message](ackTimeout),
		completions: make(chan Completion, 16),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	logging.WebSocketEvent("worker_connected", "url", url)
	return c, nil
}

// Dispatch sends text to the server and waits for its acknowledgement.
func (c *Client) Dispatch(ctx context.Context, text string) (string, error) {
	seq := c.seq.Add(1)
	fut, err := c.acks.Register(seq)
	if err != nil {
		return "", err
	}

	if err := c.write(Message{Type: TypeTranslate, Seq: seq, Text: text}); err != nil {
		c.acks.Fail(seq, err)
		return "", fmt.Errorf("failed to send paragraph: %w", err)
	}

	ack, err := fut.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("worker did not acknowledge: %w", err)
	}
	if ack.Type == TypeRejected {
		return "", rejectionError(ack)
	}
	return ack.Worker, nil
}

// Ready asks the server whether its translator is configured. A server
// without credentials answers with an error wrapping
// translator.ErrConfigurationMissing.
func (c *Client) Ready(ctx context.Context) error {
	seq := c.seq.Add(1)
	fut, err := c.acks.Register(seq)
	if err != nil {
		return err
	}

	if err := c.write(Message{Type: TypeReady, Seq: seq}); err != nil {
		c.acks.Fail(seq, err)
		return fmt.Errorf("failed to query worker: %w", err)
	}

	ack, err := fut.Wait(ctx)
	if err != nil {
		return fmt.Errorf("worker did not answer ready check: %w", err)
	}
	if ack.Type == TypeRejected {
		return rejectionError(ack)
	}
	return nil
}

// rejectionError restores the sentinel a rejected frame's code stands for.
func rejectionError(ack Message) error {
	switch ack.Code {
	case CodeNoText:
		return ErrNoText
	case CodeNotConfigured:
		return fmt.Errorf("%w: %s", translator.ErrConfigurationMissing, ack.Error)
	}
	return errors.New(ack.Error)
}

// Completions returns the channel completions are delivered on. It is
// closed after the connection ends.
func (c *Client) Completions() <-chan Completion {
	return c.completions
}

func (c *Client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer c.shutdown()

	c.conn.SetPingHandler(func(data string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Warn("worker connection lost", "error", err)
			}
			return
		}

		switch msg.Type {
		case TypeAccepted, TypeRejected, TypeReady:
			if !c.acks.Resolve(msg.Seq, msg) {
				logging.Debug("ignoring acknowledgement with no waiter", "seq", msg.Seq)
			}
		case TypeComplete:
			c.deliver(Completion{
				Worker:         msg.Worker,
				TranslatedText: msg.TranslatedText,
				Error:          msg.Error,
			})
		default:
			logging.Debug("ignoring unknown message", "type", msg.Type)
		}
	}
}

// deliver hands a completion off without blocking the read loop, which must
// keep reading acknowledgements while consumers are busy.
func (c *Client) deliver(comp Completion) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case c.completions <- comp:
		case <-c.done:
		}
	}()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.acks.Close()
	c.wg.Wait()
	close(c.completions)
	c.conn.Close()
	logging.WebSocketEvent("worker_disconnected")
}

// Close ends the connection. Waiting acknowledgements fail with
// pending.ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
	})
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
