package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yuliyu123/nft-auction/auction"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second

	// A subscriber this far behind is dropped rather than allowed to block
	// the broadcast path.
	feedSendBuffer = 64
)

// EventFeed broadcasts committed auction events to websocket subscribers.
type EventFeed struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*feedSubscriber]struct{}
}

type feedSubscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewEventFeed creates an empty feed.
func NewEventFeed(log *slog.Logger) *EventFeed {
	return &EventFeed{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subscribers: make(map[*feedSubscriber]struct{}),
	}
}

// Broadcast queues the event for every subscriber. A subscriber whose queue
// is full is disconnected.
func (f *EventFeed) Broadcast(ev auction.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		f.log.Error("marshaling event failed", "type", string(ev.Type), "err", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subscribers {
		select {
		case sub.send <- payload:
		default:
			f.log.Warn("dropping slow event subscriber")
			delete(f.subscribers, sub)
			close(sub.send)
		}
	}
}

// ServeWS upgrades the connection and streams events until the client
// disconnects.
func (f *EventFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Error("websocket upgrade failed", "err", err)
		return
	}

	sub := &feedSubscriber{
		conn: conn,
		send: make(chan []byte, feedSendBuffer),
	}

	f.mu.Lock()
	f.subscribers[sub] = struct{}{}
	f.mu.Unlock()

	go f.writePump(sub)
	go f.readPump(sub)
}

func (f *EventFeed) writePump(sub *feedSubscriber) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; its job is to notice the close.
func (f *EventFeed) readPump(sub *feedSubscriber) {
	defer f.unsubscribe(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *EventFeed) unsubscribe(sub *feedSubscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subscribers[sub]; ok {
		delete(f.subscribers, sub)
		close(sub.send)
	}
	sub.conn.Close()
}
