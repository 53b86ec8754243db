// Package websocket fans chat events out to the browsers watching a post's
// team chat. Each connection may join the rooms of the posts whose team it
// belongs to.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"teamup/logging"
	"teamup/metrics"
)

const (
	EventChatMessage        = "chat_message"
	EventChatMessageDeleted = "chat_message_deleted"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// Authenticator turns the connection token into a user id.
type Authenticator func(token string) (string, error)

// Authorizer reports whether userID may watch the chat of postID.
type Authorizer func(ctx context.Context, userID, postID string) bool

type envelope struct {
	room string
	data []byte
	skip *Client
}

type membership struct {
	client *Client
	room   string
	join   bool
}

// eviction removes a user's connections from room, or closes them when
// room is empty.
type eviction struct {
	userID string
	room   string
}

type Manager struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	membership chan membership
	evict      chan eviction
	done       chan struct{}
	mu         sync.RWMutex

	authenticate Authenticator
	authorize    Authorizer
}

type Client struct {
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	closed  chan struct{}
	manager *Manager
}

func NewManager(authenticate Authenticator, authorize Authorizer) *Manager {
	return &Manager{
		clients:      make(map[*Client]bool),
		rooms:        make(map[string]map[*Client]bool),
		broadcast:    make(chan envelope, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		membership:   make(chan membership),
		evict:        make(chan eviction),
		done:         make(chan struct{}),
		authenticate: authenticate,
		authorize:    authorize,
	}
}

// Run owns client and room bookkeeping until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.mu.Lock()
			for client := range m.clients {
				m.drop(client)
			}
			m.mu.Unlock()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			m.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			logging.Logger.WithField("userId", client.userID).Debug("websocket client registered")

		case client := <-m.unregister:
			m.mu.Lock()
			m.drop(client)
			m.mu.Unlock()

		case req := <-m.membership:
			m.mu.Lock()
			if m.clients[req.client] {
				if req.join {
					if m.rooms[req.room] == nil {
						m.rooms[req.room] = make(map[*Client]bool)
					}
					m.rooms[req.room][req.client] = true
				} else {
					m.leave(req.client, req.room)
				}
			}
			m.mu.Unlock()

		case ev := <-m.evict:
			m.mu.Lock()
			for client := range m.clients {
				if client.userID != ev.userID {
					continue
				}
				if ev.room == "" {
					m.drop(client)
				} else {
					m.leave(client, ev.room)
				}
			}
			m.mu.Unlock()

		case env := <-m.broadcast:
			m.mu.Lock()
			members := m.rooms[env.room]
			if env.skip != nil && !members[env.skip] {
				// relayed by a client that was evicted from the room
				m.mu.Unlock()
				continue
			}
			for client := range members {
				if client == env.skip {
					continue
				}
				select {
				case client.send <- env.data:
				default:
					m.drop(client)
				}
			}
			m.mu.Unlock()
		}
	}
}

// drop forgets client and closes client.closed. send is never closed.
// Callers hold mu.
func (m *Manager) drop(client *Client) {
	if !m.clients[client] {
		return
	}
	delete(m.clients, client)
	for room := range m.rooms {
		m.leave(client, room)
	}
	close(client.closed)
	metrics.WebSocketConnections.Dec()
}

func (m *Manager) leave(client *Client, room string) {
	members := m.rooms[room]
	delete(members, client)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
}

// BroadcastToPost sends an event to everyone watching the post's chat.
func (m *Manager) BroadcastToPost(postID, event string, payload interface{}) {
	msg, err := encode(event, payload)
	if err != nil {
		logging.Logger.WithError(err).Error("marshal websocket event")
		return
	}
	m.send(envelope{room: postID, data: msg})
}

func (m *Manager) send(env envelope) {
	select {
	case m.broadcast <- env:
	case <-m.done:
	}
}

func (m *Manager) changeMembership(req membership) {
	select {
	case m.membership <- req:
	case <-m.done:
	}
}

// LeaveRoom stops delivering postID's chat to userID, e.g. after they left
// the team.
func (m *Manager) LeaveRoom(userID, postID string) {
	select {
	case m.evict <- eviction{userID: userID, room: postID}:
	case <-m.done:
	}
}

// DisconnectUser closes every connection of userID.
func (m *Manager) DisconnectUser(userID string) {
	select {
	case m.evict <- eviction{userID: userID}:
	case <-m.done:
	}
}

func (m *Manager) GetConnectedUsers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// RoomSize counts the connections watching postID.
func (m *Manager) RoomSize(postID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[postID])
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"type":    event,
		"payload": payload,
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades GET /ws?token=... after validating the token.
func (m *Manager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}
		userID, err := m.authenticate(token)
		if err != nil {
			logging.Logger.WithError(err).Debug("websocket connection rejected")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Logger.WithError(err).Warn("websocket upgrade failed")
			return
		}

		client := &Client{
			conn:    conn,
			userID:  userID,
			send:    make(chan []byte, 256),
			closed:  make(chan struct{}),
			manager: m,
		}
		select {
		case m.register <- client:
		case <-m.done:
			conn.Close()
			return
		}

		client.reply("connected", map[string]interface{}{
			"userId": userID,
			"time":   time.Now().Unix(),
		})

		go client.writePump()
		go client.readPump()
	}
}

type inbound struct {
	Type    string `json:"type"`
	Payload struct {
		PostID string `json:"postId"`
	} `json:"payload"`
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	joined := map[string]bool{}
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Logger.WithError(err).Warn("websocket read error")
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(message, &in); err != nil {
			c.reply("error", map[string]string{"message": "invalid message"})
			continue
		}

		postID := in.Payload.PostID
		switch in.Type {
		case "subscribe":
			if postID == "" || !c.manager.authorize(context.Background(), c.userID, postID) {
				c.reply("error", map[string]string{"message": "not a member of this team", "postId": postID})
				continue
			}
			c.manager.changeMembership(membership{client: c, room: postID, join: true})
			joined[postID] = true
			c.reply("subscribed", map[string]string{"postId": postID})
		case "unsubscribe":
			c.manager.changeMembership(membership{client: c, room: postID})
			delete(joined, postID)
			c.reply("unsubscribed", map[string]string{"postId": postID})
		case "typing_start", "typing_end":
			if !joined[postID] {
				continue
			}
			msg, err := encode(in.Type, map[string]interface{}{
				"postId":    postID,
				"userId":    c.userID,
				"timestamp": time.Now().Unix(),
			})
			if err == nil {
				c.manager.send(envelope{room: postID, data: msg, skip: c})
			}
		case "ping":
			c.reply("pong", map[string]int64{"time": time.Now().Unix()})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a direct message to this client. A full buffer or a
// dropped client discards it.
func (c *Client) reply(event string, payload interface{}) {
	msg, err := encode(event, payload)
	if err != nil {
		return
	}
	select {
	case <-c.closed:
	case c.send <- msg:
	default:
	}
}
