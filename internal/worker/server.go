package worker

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/valpere/stran/internal/logging"
	"github.com/valpere/stran/internal/translator"
)

// Message types exchanged over the bridge.
const (
	TypeTranslate = "translate"
	TypeReady     = "ready"
	TypeAccepted  = "accepted"
	TypeRejected  = "rejected"
	TypeComplete  = "complete"
)

// Rejection codes let the client restore the sentinel errors.
const (
	CodeNoText        = "no_text"
	CodeNotConfigured = "not_configured"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Message is one frame of the bridge protocol.
//
//	-> {"type":"translate","seq":1,"text":"Hello"}
//	<- {"type":"accepted","seq":1,"worker":"<id>"}
//	<- {"type":"complete","worker":"<id>","translated_text":"안녕"}
//
// A ready frame asks whether the server's translator is configured; it is
// echoed back on success and rejected with code not_configured otherwise.
//
//	-> {"type":"ready","seq":2}
//	<- {"type":"ready","seq":2}
type Message struct {
	Type           string `json:"type"`
	Seq            uint64 `json:"seq,omitempty"`
	Text           string `json:"text,omitempty"`
	Worker         string `json:"worker,omitempty"`
	TranslatedText string `json:"translated_text,omitempty"`
	Error          string `json:"error,omitempty"`
	Code           string `json:"code,omitempty"`
}

// Server exposes an Engine per websocket connection.
type Server struct {
	tr       translator.Translator
	opts     []EngineOption
	upgrader websocket.Upgrader
}

// NewServer creates a bridge handler backed by tr.
func NewServer(tr translator.Translator, opts ...EngineOption) *Server {
	return &Server{
		tr:   tr,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}
	logging.WebSocketEvent("client_connected", "remote", r.RemoteAddr)

	engine := NewEngine(s.tr, s.opts...)
	send := make(chan Message, 64)
	writerDone := make(chan struct{})
	forwardDone := make(chan struct{})

	go s.writePump(conn, send, writerDone)
	go func() {
		defer close(forwardDone)
		for c := range engine.Completions() {
			send <- Message{
				Type:           TypeComplete,
				Worker:         c.Worker,
				TranslatedText: c.TranslatedText,
				Error:          c.Error,
			}
		}
	}()

	s.readPump(r, conn, engine, send)

	engine.Close()
	<-forwardDone
	close(send)
	<-writerDone
	conn.Close()
	logging.WebSocketEvent("client_disconnected", "remote", r.RemoteAddr)
}

func (s *Server) readPump(r *http.Request, conn *websocket.Conn, engine *Engine, send chan<- Message) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Error("websocket unexpected close", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case TypeReady:
			if err := engine.Ready(r.Context()); err != nil {
				send <- rejection(msg.Seq, err)
				continue
			}
			send <- Message{Type: TypeReady, Seq: msg.Seq}

		case TypeTranslate:
			id, err := engine.Dispatch(r.Context(), msg.Text)
			if err != nil {
				send <- rejection(msg.Seq, err)
				continue
			}
			send <- Message{Type: TypeAccepted, Seq: msg.Seq, Worker: id}

		default:
			send <- Message{Type: TypeRejected, Seq: msg.Seq, Error: "unknown message type " + msg.Type}
		}
	}
}

func rejection(seq uint64, err error) Message {
	m := Message{Type: TypeRejected, Seq: seq, Error: err.Error()}
	switch {
	case errors.Is(err, ErrNoText):
		m.Code, m.Error = CodeNoText, "No text provided"
	case errors.Is(err, translator.ErrConfigurationMissing):
		m.Code = CodeNotConfigured
		m.Error = strings.TrimPrefix(err.Error(), translator.ErrConfigurationMissing.Error()+": ")
		if m.Error == translator.ErrConfigurationMissing.Error() {
			m.Error = "No API key provided"
		}
	}
	return m
}

// writePump is the connection's only writer. After a write error it keeps
// draining send so producers never block on a dead peer.
func (s *Server) writePump(conn *websocket.Conn, send <-chan Message, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	failed := false
	for {
		select {
		case msg, ok := <-send:
			if !ok {
				if !failed {
					conn.SetWriteDeadline(time.Now().Add(writeWait))
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}
			if failed {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				logging.Warn("websocket write failed", "error", err)
				failed = true
				conn.Close()
			}

		case <-ticker.C:
			if failed {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				failed = true
				conn.Close()
			}
		}
	}
}
