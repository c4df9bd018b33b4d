package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

// ---------- helpers ----------

type testServer struct {
	srv   *httptest.Server
	wsURL string
	hub   *Hub
	db    *DB
}

// startTestServer spins up an httptest.Server backed by an in-memory DB
func startTestServer(t *testing.T) *testServer {
	t.Helper()

	prevCost, prevFlush := bcryptCost, telemetryFlushEvery
	bcryptCost = bcrypt.MinCost
	telemetryFlushEvery = 20 * time.Millisecond

	db := openTestDB(t)
	tel := NewTelemetry(db)
	hub := NewHub(db, tel)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		srv.Close()
		tel.Stop()
		bcryptCost, telemetryFlushEvery = prevCost, prevFlush
	})
	return &testServer{
		srv:   srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		hub:   hub,
		db:    db,
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads messages until a JSON envelope of type want arrives,
// skipping binary state frames and other envelopes.
func readType(t *testing.T, conn *websocket.Conn, want string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS waiting for %s: %v", want, err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		var env InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.T != want && env.T != MsgError {
			continue
		}
		// payloads such as the session list are not objects
		var d map[string]interface{}
		json.Unmarshal(env.D, &d)
		if env.T != want {
			t.Fatalf("waiting for %s, got error %v", want, d["msg"])
		}
		return d
	}
}

// readFrame reads messages until a binary state frame arrives
func readFrame(t *testing.T, conn *websocket.Conn) StateFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS waiting for frame: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		f, err := DecodeFrame(raw)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(Envelope{T: msgType, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// createAndJoin creates a session then joins it. Returns the session ID
// and the welcome payload.
func createAndJoin(t *testing.T, conn *websocket.Conn, name, scenarioName string) (string, map[string]interface{}) {
	t.Helper()
	sendMsg(t, conn, MsgCreate, CreateMsg{Name: name, Scenario: scenarioName})
	sid := readType(t, conn, MsgCreated)["sid"].(string)

	sendMsg(t, conn, MsgJoin, JoinMsg{SessionID: sid})
	if got := readType(t, conn, MsgJoined)["sid"]; got != sid {
		t.Fatalf("joined %v, want %s", got, sid)
	}
	return sid, readType(t, conn, MsgWelcome)
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		json.NewDecoder(resp.Body).Decode(v)
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, token string, body, v interface{}) int {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		json.NewDecoder(resp.Body).Decode(v)
	}
	return resp.StatusCode
}

// ---------- HTTP API ----------

func TestHealthAndScenarios(t *testing.T) {
	ts := startTestServer(t)

	var health map[string]interface{}
	if code := getJSON(t, ts.srv.URL+"/api/health", &health); code != 200 {
		t.Fatalf("health status %d", code)
	}
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	var list []ScenarioInfo
	getJSON(t, ts.srv.URL+"/api/scenarios", &list)
	found := false
	for _, sc := range list {
		if sc.Name == "determinism" && sc.Frames > 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("determinism missing from %+v", list)
	}
}

func TestBaselineFlow(t *testing.T) {
	ts := startTestServer(t)
	if _, err := ts.hub.auth.CreateOperator("ops", "hunter2"); err != nil {
		t.Fatal(err)
	}

	if code := postJSON(t, ts.srv.URL+"/api/baselines", "", map[string]string{"scenario": "determinism"}, nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous baseline status %d", code)
	}

	var bad map[string]string
	if code := postJSON(t, ts.srv.URL+"/api/login", "", map[string]string{"username": "ops", "password": "nope"}, &bad); code != http.StatusUnauthorized {
		t.Errorf("bad login status %d", code)
	}
	var login map[string]string
	if code := postJSON(t, ts.srv.URL+"/api/login", "", map[string]string{"username": "ops", "password": "hunter2"}, &login); code != 200 {
		t.Fatalf("login status %d", code)
	}
	token := login["token"]

	if code := postJSON(t, ts.srv.URL+"/api/baselines", token, map[string]string{"scenario": "nope"}, nil); code != http.StatusNotFound {
		t.Errorf("unknown scenario status %d", code)
	}
	var row BaselineRow
	if code := postJSON(t, ts.srv.URL+"/api/baselines", token, map[string]string{"scenario": "determinism"}, &row); code != http.StatusCreated {
		t.Fatalf("record status %d", code)
	}
	if row.Hash == "" || row.CreatedBy != "ops" || row.ID == 0 {
		t.Errorf("row = %+v", row)
	}
	if err := ts.db.CheckBaseline("determinism", row.Hash); err != nil {
		t.Errorf("stored baseline: %v", err)
	}

	var list []BaselineRow
	getJSON(t, ts.srv.URL+"/api/baselines", &list)
	if len(list) != 1 || list[0].Hash != row.Hash {
		t.Errorf("list = %+v", list)
	}

	// the run is also recorded as a perf sample
	var perf struct {
		Samples []PerfSample `json:"samples"`
		Trend   PerfTrend    `json:"trend"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(perf.Samples) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		getJSON(t, ts.srv.URL+"/api/perf?scenario=determinism", &perf)
	}
	if len(perf.Samples) != 1 || perf.Trend.Samples != 1 {
		t.Errorf("perf = %+v", perf)
	}
	if code := getJSON(t, ts.srv.URL+"/api/perf", nil); code != http.StatusBadRequest {
		t.Errorf("perf without scenario status %d", code)
	}
}

func TestQRCode(t *testing.T) {
	ts := startTestServer(t)
	c := dialWS(t, ts.wsURL)
	sid, _ := createAndJoin(t, c, "qr", "")

	resp, err := http.Get(ts.srv.URL + "/qr?sid=" + sid)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("qr status %d type %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	if code := getJSON(t, ts.srv.URL+"/qr?sid="+GenerateUUID(), nil); code != http.StatusNotFound {
		t.Errorf("unknown session qr status %d", code)
	}
}

// ---------- WebSocket sessions ----------

func TestCreateJoinReceivesFrames(t *testing.T) {
	ts := startTestServer(t)
	c := dialWS(t, ts.wsURL)

	sid, welcome := createAndJoin(t, c, "Lab", "determinism")
	if !uuidRegex.MatchString(sid) {
		t.Errorf("sid %q is not a UUID", sid)
	}
	if welcome["ctrl"] != true || welcome["token"] == "" || welcome["scenario"] != "determinism" {
		t.Errorf("welcome = %v", welcome)
	}

	f := readFrame(t, c)
	if len(f.Bodies) != 6 || f.Tick == 0 {
		t.Errorf("frame = tick %d, %d bodies", f.Tick, len(f.Bodies))
	}

	sendMsg(t, c, MsgList, nil)
	sendMsg(t, c, MsgHash, nil)
	hashed := readType(t, c, MsgHashed)
	if hashed["hash"] == "" {
		t.Error("hash should be set")
	}
}

func TestJoinUnknownSession(t *testing.T) {
	ts := startTestServer(t)
	c := dialWS(t, ts.wsURL)
	sendMsg(t, c, MsgJoin, JoinMsg{SessionID: GenerateUUID()})
	if msg := readType(t, c, MsgError)["msg"]; msg != "session not found" {
		t.Errorf("error = %v", msg)
	}
}

func TestControlHandover(t *testing.T) {
	ts := startTestServer(t)
	owner := dialWS(t, ts.wsURL)
	sid, welcome := createAndJoin(t, owner, "Lab", "")
	token := welcome["token"].(string)

	watcher := dialWS(t, ts.wsURL)
	sendMsg(t, watcher, MsgJoin, JoinMsg{SessionID: sid})
	readType(t, watcher, MsgJoined)
	if w := readType(t, watcher, MsgWelcome); w["ctrl"] != false {
		t.Errorf("second client should watch, got %v", w)
	}

	sendMsg(t, watcher, MsgPlace, PlaceMsg{X: 0, Y: -200})
	if msg := readType(t, watcher, MsgError)["msg"]; msg != errNotController.Error() {
		t.Errorf("watcher place error = %v", msg)
	}

	sendMsg(t, owner, MsgPlace, PlaceMsg{X: 0, Y: -200})
	if id := readType(t, owner, MsgPlaced)["id"]; id == nil || id.(float64) <= 0 {
		t.Errorf("placed id = %v", id)
	}

	sendMsg(t, watcher, MsgAuth, AuthMsg{Token: token})
	if got := readType(t, watcher, MsgAuthOK)["sid"]; got != sid {
		t.Errorf("auth_ok sid = %v", got)
	}
	readType(t, owner, MsgCtrlOff)

	sendMsg(t, owner, MsgRotate, BodyMsg{ID: 1})
	readType(t, owner, MsgError)

	sendMsg(t, watcher, MsgFeature, FeatureMsg{Name: FeatureGrid, On: true})
	sendMsg(t, watcher, MsgFeature, FeatureMsg{Name: "warp"})
	if msg := readType(t, watcher, MsgError)["msg"].(string); !strings.Contains(msg, "unknown feature") {
		t.Errorf("feature error = %v", msg)
	}
}

func TestAuthRejectsForeignToken(t *testing.T) {
	ts := startTestServer(t)
	a := dialWS(t, ts.wsURL)
	_, welcome := createAndJoin(t, a, "one", "")

	b := dialWS(t, ts.wsURL)
	createAndJoin(t, b, "two", "")
	sendMsg(t, b, MsgAuth, AuthMsg{Token: welcome["token"].(string)})
	if msg := readType(t, b, MsgError)["msg"].(string); !strings.Contains(msg, "another session") {
		t.Errorf("error = %v", msg)
	}
}

func TestAlarmBroadcast(t *testing.T) {
	ts := startTestServer(t)
	c := dialWS(t, ts.wsURL)
	createAndJoin(t, c, "alarm", "")

	sendMsg(t, c, MsgFeature, FeatureMsg{Name: FeatureAlarm, On: true, Threshold: -1, Consecutive: 1})
	alarm := readType(t, c, MsgAlarm)
	if !strings.Contains(alarm["error"].(string), "PenetrationAlarm") {
		t.Errorf("alarm = %v", alarm)
	}

	sendMsg(t, c, MsgDrag, DragMsg{Phase: DragStart, X: -150, Y: -40})
	if msg := readType(t, c, MsgError)["msg"]; msg != ErrHalted.Error() {
		t.Errorf("drag while halted = %v", msg)
	}

	var health struct {
		Live LiveStats `json:"live"`
	}
	getJSON(t, ts.srv.URL+"/api/health", &health)
	if health.Live.Alarms != 1 {
		t.Errorf("alarms = %d", health.Live.Alarms)
	}
}

func TestSessionClosesWhenEmpty(t *testing.T) {
	ts := startTestServer(t)
	c := dialWS(t, ts.wsURL)
	sid, _ := createAndJoin(t, c, "short", "")

	sendMsg(t, c, MsgLeave, nil)
	sendMsg(t, c, MsgList, nil)
	readType(t, c, MsgSessions)
	if ts.hub.sessions.GetSession(sid) != nil {
		t.Error("session should close after its last client leaves")
	}
}
