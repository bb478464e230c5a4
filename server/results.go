package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
	"github.com/gorilla/websocket"
)

// Number of frame results that we will buffer for each websocket client,
// before we start dropping results for that client.
const ResultSendBufferSize = 10

// Sent by client over websocket
type webSocketJSON struct {
	Command string `json:"command"` // "pause" or "resume"
}

// ResultHub fans out frame results to all connected websocket clients.
// A slow client never blocks frame processing. Its results are dropped instead.
type ResultHub struct {
	log     logs.Log
	lock    sync.Mutex
	clients map[int64]*resultClient
	nextID  int64
	closed  bool
}

type resultClient struct {
	id       int64
	send     chan []byte
	paused   atomic.Bool
	nSent    atomic.Int64
	nDropped atomic.Int64
}

func NewResultHub(log logs.Log) *ResultHub {
	return &ResultHub{
		log:     log,
		clients: map[int64]*resultClient{},
	}
}

func (h *ResultHub) subscribe() *resultClient {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.nextID++
	c := &resultClient{
		id:   h.nextID,
		send: make(chan []byte, ResultSendBufferSize),
	}
	if h.closed {
		close(c.send)
	} else {
		h.clients[c.id] = c
	}
	return c
}

func (h *ResultHub) unsubscribe(c *resultClient) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

func (h *ResultHub) NumClients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Publish sends the frame result to every client that isn't paused
func (h *ResultHub) Publish(r *rangefinder.FrameResult) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if len(h.clients) == 0 {
		return
	}
	msg, err := json.Marshal(r)
	if err != nil {
		h.log.Errorf("Failed to encode frame result: %v", err)
		return
	}
	for _, c := range h.clients {
		if c.paused.Load() {
			continue
		}
		select {
		case c.send <- msg:
			c.nSent.Add(1)
		default:
			c.nDropped.Add(1)
		}
	}
}

// Close disconnects all clients
func (h *ResultHub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.closed = true
}

// RunWebSocket streams results to conn until the client disconnects, or the hub is closed
func (h *ResultHub) RunWebSocket(conn *websocket.Conn) {
	c := h.subscribe()
	defer h.unsubscribe(c)
	defer conn.Close()

	h.log.Infof("WebSocket %v connected", c.id)
	readerDone := make(chan bool)
	go h.webSocketReader(conn, c, readerDone)

	lastLog := time.Now()
	for {
		select {
		case msg, more := <-c.send:
			if !more {
				h.log.Infof("WebSocket %v closing, because the server is shutting down", c.id)
				conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Infof("WebSocket %v write failed: %v", c.id, err)
				return
			}
			if time.Since(lastLog) > 60*time.Second {
				h.log.Infof("WebSocket %v sent %v/%v results", c.id, c.nSent.Load(), c.nSent.Load()+c.nDropped.Load())
				lastLog = time.Now()
			}
		case <-readerDone:
			h.log.Infof("WebSocket %v disconnected", c.id)
			return
		}
	}
}

// Read commands from the client, until the connection fails
func (h *ResultHub) webSocketReader(conn *websocket.Conn, c *resultClient, done chan bool) {
	defer close(done)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg := webSocketJSON{}
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Infof("WebSocket %v failed to decode JSON: %v", c.id, err)
			continue
		}
		switch msg.Command {
		case "pause":
			c.paused.Store(true)
		case "resume":
			c.paused.Store(false)
		default:
			h.log.Infof("Unknown websocket message from client: '%v'", msg.Command)
		}
	}
}
