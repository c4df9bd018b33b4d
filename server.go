package main

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PixelParasite101/Packing-Lab/scenario"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const (
	qrSize       = 256
	maxJSONBody  = 1 << 14
	defaultLimit = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorMsg{Msg: msg})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

// ScenarioInfo describes a built-in scenario
type ScenarioInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Frames      int    `json:"frames"`
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.Acquire(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.Release(ip)
			log.Printf("upgrade error: %v", err)
			return
		}

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	// PNG join code for a session URL
	mux.HandleFunc("GET /qr", func(w http.ResponseWriter, r *http.Request) {
		sid := r.URL.Query().Get("sid")
		if hub.sessions.GetSession(sid) == nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		png, err := qrcode.Encode(scheme+"://"+r.Host+"/?sid="+url.QueryEscape(sid), qrcode.Medium, qrSize)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "qr encode failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"status":   "ok",
			"sessions": hub.sessions.Count(),
			"clients":  hub.ClientCount(),
			"conns":    hub.OpenConns(),
		}
		if hub.tel != nil {
			resp["live"] = hub.tel.Live()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /api/scenarios", func(w http.ResponseWriter, r *http.Request) {
		all := scenario.All()
		list := make([]ScenarioInfo, 0, len(all))
		for _, sc := range all {
			list = append(list, ScenarioInfo{Name: sc.Name, Description: sc.Description, Frames: sc.Frames})
		}
		writeJSON(w, http.StatusOK, list)
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.sessions.ListSessions())
	})

	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		token, err := hub.auth.Login(req.Username, req.Password, extractIP(r))
		switch {
		case errors.Is(err, ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, err.Error())
		case err != nil:
			log.Printf("login: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			writeJSON(w, http.StatusOK, map[string]string{"token": token})
		}
	})

	mux.HandleFunc("GET /api/baselines", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeError(w, http.StatusServiceUnavailable, "no database")
			return
		}
		list, err := hub.db.ListBaselines()
		if err != nil {
			log.Printf("list baselines: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if list == nil {
			list = []BaselineRow{}
		}
		writeJSON(w, http.StatusOK, list)
	})

	// Runs a scenario headless and records its hash as the new baseline
	mux.HandleFunc("POST /api/baselines", func(w http.ResponseWriter, r *http.Request) {
		claims, err := hub.auth.Authorize(bearerToken(r), RoleOperator, "")
		if err != nil {
			writeError(w, http.StatusUnauthorized, "operator token required")
			return
		}
		if hub.db == nil {
			writeError(w, http.StatusServiceUnavailable, "no database")
			return
		}
		var req struct {
			Scenario string `json:"scenario"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		sc, ok := scenario.Lookup(req.Scenario)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown scenario")
			return
		}
		rep, err := RunScenario(sc, RunOptions{})
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		row := BaselineRow{
			Scenario:   rep.Scenario,
			Hash:       rep.Hash,
			Parts:      rep.Parts,
			Iterations: rep.Iterations,
			CreatedBy:  claims.Subject,
		}
		if row.ID, err = hub.db.RecordBaseline(row); err != nil {
			log.Printf("record baseline: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if hub.tel != nil {
			hub.tel.Record(rep.Sample())
		}
		writeJSON(w, http.StatusCreated, row)
	})

	mux.HandleFunc("GET /api/perf", func(w http.ResponseWriter, r *http.Request) {
		if hub.tel == nil {
			writeError(w, http.StatusServiceUnavailable, "no telemetry")
			return
		}
		name := r.URL.Query().Get("scenario")
		if name == "" {
			writeError(w, http.StatusBadRequest, "scenario required")
			return
		}
		limit := defaultLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= perfKeep {
				limit = n
			}
		}
		samples, err := hub.tel.Samples(name, limit)
		if err != nil {
			log.Printf("perf samples: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if samples == nil {
			samples = []PerfSample{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"samples": samples,
			"trend":   ComputeTrend(name, samples),
		})
	})

	return mux
}
