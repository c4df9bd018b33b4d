package main

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120 // drags arrive at frame rate
)

var errNotController = errors.New("control token required")

// Client represents a WebSocket connection
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	id           string
	sessionID    string
	controlToken string
	remoteAddr   string
	msgCount     int
	msgResetAt   time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		id:         GenerateID(4),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Release(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix from SendBinary marks a binary frame
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(err error) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgList:
		c.SendJSON(Envelope{T: MsgSessions, Data: c.hub.sessions.ListSessions()})
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgHash:
		c.handleHash()
	case MsgDrag, MsgPlace, MsgRemove, MsgRotate, MsgArena, MsgFeature:
		c.handleControl(env.T, env.D)
	}
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess, err := c.hub.sessions.CreateSession(msg.Name, msg.Scenario)
	if err != nil {
		c.sendError(err)
		return
	}
	c.SendJSON(Envelope{T: MsgCreated, Data: map[string]string{"sid": sess.ID}})
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SessionID)
	if sess == nil {
		c.sendError(errors.New("session not found"))
		return
	}
	c.handleLeave()
	if !sess.Game.AddClient(c.id, c) {
		c.sendError(errors.New("session full"))
		return
	}
	c.sessionID = sess.ID

	welcome := WelcomeMsg{ClientID: c.id, Scenario: sess.Scenario}
	if _, ok := sess.claimControl(c.id, false); ok {
		token, err := c.hub.auth.ControlToken(sess.ID, c.id)
		if err != nil {
			log.Printf("control token: %v", err)
			sess.releaseControl(c.id)
		} else {
			c.controlToken = token
			welcome.Controller = true
			welcome.Token = token
		}
	}
	c.SendJSON(Envelope{T: MsgJoined, Data: map[string]string{"sid": sess.ID}})
	c.SendJSON(Envelope{T: MsgWelcome, Data: welcome})
}

func (c *Client) handleLeave() {
	if c.sessionID == "" {
		return
	}
	c.hub.sessions.RemoveClient(c.sessionID, c.id)
	c.sessionID = ""
	c.controlToken = ""
}

// handleAuth takes over control of the current session with a token
// issued earlier, possibly to another connection.
func (c *Client) handleAuth(data json.RawMessage) {
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.currentSession()
	if sess == nil {
		c.sendError(errors.New("join a session first"))
		return
	}
	if _, err := c.hub.auth.Authorize(msg.Token, RoleControl, sess.ID); err != nil {
		c.sendError(err)
		return
	}
	prev, _ := sess.claimControl(c.id, true)
	if prev != "" && prev != c.id {
		sess.Game.SendTo(prev, Envelope{T: MsgCtrlOff})
	}
	c.controlToken = msg.Token
	c.SendJSON(Envelope{T: MsgAuthOK, Data: map[string]string{"sid": sess.ID}})
}

func (c *Client) handleHash() {
	sess := c.currentSession()
	if sess == nil {
		c.sendError(errors.New("join a session first"))
		return
	}
	h := sess.Game.Hash()
	c.SendJSON(Envelope{T: MsgHashed, Data: HashedMsg{Hash: h.Hash, Parts: h.Parts}})
}

func (c *Client) currentSession() *Session {
	if c.sessionID == "" {
		return nil
	}
	return c.hub.sessions.GetSession(c.sessionID)
}

// controlled returns the session when this client holds valid control
func (c *Client) controlled() (*Session, error) {
	sess := c.currentSession()
	if sess == nil || sess.Controller() != c.id {
		return nil, errNotController
	}
	if _, err := c.hub.auth.Authorize(c.controlToken, RoleControl, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (c *Client) handleControl(t string, data json.RawMessage) {
	sess, err := c.controlled()
	if err != nil {
		c.sendError(err)
		return
	}
	g := sess.Game
	switch t {
	case MsgDrag:
		var msg DragMsg
		if err = json.Unmarshal(data, &msg); err == nil {
			err = g.Drag(msg.Phase, msg.X, msg.Y)
		}
	case MsgPlace:
		var msg PlaceMsg
		if err = json.Unmarshal(data, &msg); err == nil {
			var id int
			if id, err = g.Place(msg); err == nil {
				c.SendJSON(Envelope{T: MsgPlaced, Data: PlacedMsg{ID: id}})
			}
		}
	case MsgRemove, MsgRotate:
		var msg BodyMsg
		if err = json.Unmarshal(data, &msg); err == nil {
			if t == MsgRemove {
				err = g.Remove(msg.ID)
			} else {
				err = g.Rotate(msg.ID)
			}
		}
	case MsgArena:
		var msg ArenaMsg
		if err = json.Unmarshal(data, &msg); err == nil {
			err = g.SetArena(msg)
		}
	case MsgFeature:
		var msg FeatureMsg
		if err = json.Unmarshal(data, &msg); err == nil {
			err = g.SetFeature(msg)
		}
	}
	if err != nil {
		c.sendError(err)
	}
}
