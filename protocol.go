package main

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Client -> Server message types
const (
	MsgCreate  = "create" // create session
	MsgJoin    = "join"
	MsgLeave   = "leave"
	MsgList    = "list" // list sessions
	MsgAuth    = "auth" // present a control token
	MsgDrag    = "drag"
	MsgPlace   = "place"
	MsgRemove  = "remove"
	MsgRotate  = "rotate"
	MsgArena   = "arena"
	MsgFeature = "feature"
	MsgHash    = "hash"
)

// Server -> Client message types
const (
	MsgState    = "state" // only used by decoders, frames travel as binary
	MsgWelcome  = "welcome"
	MsgSessions = "sessions"
	MsgCreated  = "created"
	MsgJoined   = "joined"
	MsgError    = "error"
	MsgAlarm    = "alarm"
	MsgHashed   = "hashed"
	MsgPlaced   = "placed"
	MsgAuthOK   = "auth_ok"
	MsgCtrlOff  = "ctrl_off" // control moved to another client
)

// Drag phases
const (
	DragStart = "start"
	DragMove  = "move"
	DragEnd   = "end"
)

// Feature names accepted by MsgFeature
const (
	FeatureGrid        = "grid"
	FeatureSleeping    = "sleeping"
	FeatureAdaptive    = "adaptive"
	FeatureSubsteps    = "substeps"
	FeatureFriction    = "friction"
	FeatureSpring      = "spring"
	FeatureDeterminism = "determinism"
	FeatureAlarm       = "alarm"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages, json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg asks for a new session seeded from a scenario
type CreateMsg struct {
	Name     string `json:"name"`
	Scenario string `json:"scenario"`
}

// JoinMsg is sent when a client wants to join a session
type JoinMsg struct {
	SessionID string `json:"sid"`
}

// AuthMsg presents a previously issued control token
type AuthMsg struct {
	Token string `json:"token"`
}

// DragMsg drives the mouse spring
type DragMsg struct {
	Phase string  `json:"phase"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// PlaceMsg adds a body. Zero size uses the default brick.
type PlaceMsg struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
	Mass float64 `json:"mass"`
}

// BodyMsg addresses a body by ID (remove, rotate)
type BodyMsg struct {
	ID int `json:"id"`
}

// ArenaMsg changes the arena geometry
type ArenaMsg struct {
	Outer      float64 `json:"outer"`
	Inner      float64 `json:"inner"`
	CenterWall bool    `json:"wall"`
}

// FeatureMsg toggles one world feature
type FeatureMsg struct {
	Name string `json:"name"`
	On   bool   `json:"on"`
	// Threshold and Consecutive arm the penetration alarm
	Threshold   float64 `json:"threshold,omitempty"`
	Consecutive int     `json:"consecutive,omitempty"`
}

// WelcomeMsg tells a client its role in the session
type WelcomeMsg struct {
	ClientID   string `json:"cid"`
	Controller bool   `json:"ctrl"`
	Token      string `json:"token,omitempty"`
	Scenario   string `json:"scenario"`
}

// AlarmMsg reports a halted session
type AlarmMsg struct {
	Frame int    `json:"frame"`
	Error string `json:"error"`
}

// HashedMsg carries a determinism hash
type HashedMsg struct {
	Hash  string   `json:"hash"`
	Parts []string `json:"parts"`
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Scenario string `json:"scenario"`
	Clients  int    `json:"clients"`
	Bodies   int    `json:"bodies"`
}

// PlacedMsg returns the ID of a placed body
type PlacedMsg struct {
	ID int `json:"id"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// BodyState is one body in a state frame
type BodyState struct {
	ID     int     `msgpack:"id"`
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
	W      float64 `msgpack:"w"`
	H      float64 `msgpack:"h"`
	Rot    int     `msgpack:"r"`
	Static bool    `msgpack:"st,omitempty"`
	Asleep bool    `msgpack:"sl,omitempty"`
}

// FrameMetrics is the metrics subset sent to clients
type FrameMetrics struct {
	Pairs      int     `msgpack:"bp"`
	Contacts   int     `msgpack:"cc"`
	PrePen     float64 `msgpack:"pre"`
	PostPen    float64 `msgpack:"post"`
	Sleeping   int     `msgpack:"sl"`
	Iterations int     `msgpack:"it"`
	Substeps   int     `msgpack:"ss"`
	SolverMs   float64 `msgpack:"sms"`
}

// StateFrame is the binary state broadcast
type StateFrame struct {
	Tick       uint64       `msgpack:"tick"`
	Frame      int          `msgpack:"f"`
	Outer      float64      `msgpack:"or"`
	Inner      float64      `msgpack:"ir"`
	CenterWall bool         `msgpack:"cw"`
	Halted     bool         `msgpack:"h"`
	Bodies     []BodyState  `msgpack:"b"`
	Metrics    FrameMetrics `msgpack:"m"`
	Spring     *SpringState `msgpack:"sp,omitempty"`
}

// SpringState describes an active drag
type SpringState struct {
	BodyID int     `msgpack:"id"`
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
}

// EncodeFrame serializes a state frame
func EncodeFrame(f StateFrame) ([]byte, error) {
	return msgpack.Marshal(f)
}

// DecodeFrame parses a state frame
func DecodeFrame(data []byte) (StateFrame, error) {
	var f StateFrame
	err := msgpack.Unmarshal(data, &f)
	return f, err
}
