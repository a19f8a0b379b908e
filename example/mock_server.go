package main

import (
	"fmt"
	"html"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockProfile tracks the rendered state and next change time for one player.
type mockProfile struct {
	stateIdx     int
	nextChangeAt time.Time
}

// mockStates are the profile variants the server cycles through. Each one is
// a pair of definition list entries as the real profile page renders them.
var mockStates = []struct {
	name     string
	server   string
	lastSeen string
}{
	{"online", "Rust EU Main", ""},
	{"offline_seen", "Not online", "3 minutes ago"},
	{"online_other", "Rust US Monthly", ""},
	{"offline", "", ""},
}

// StartMockProfileServer runs a fake player profile page at
// /players/{id} that changes state every 20-60 seconds.
// Call this in a goroutine before starting the monitor.
func StartMockProfileServer(addr string) {
	var (
		profiles = make(map[string]*mockProfile)
		mu       sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /players/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		mu.Lock()
		p, exists := profiles[id]
		if !exists {
			p = &mockProfile{nextChangeAt: time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)}
			profiles[id] = p
		}

		// change state when scheduled time is reached
		if time.Now().After(p.nextChangeAt) {
			old := mockStates[p.stateIdx].name
			p.stateIdx = (p.stateIdx + 1) % len(mockStates)
			p.nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("profile change", "player", id, "from", old, "to", mockStates[p.stateIdx].name)
		}
		state := mockStates[p.stateIdx]
		mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!doctype html><html><body><h1>Player %s</h1><dl>", html.EscapeString(id))
		if state.server != "" {
			fmt.Fprintf(w, "<dt>Current Server</dt><dd>%s</dd>", html.EscapeString(state.server))
		}
		if state.lastSeen != "" {
			fmt.Fprintf(w, "<dt>Last Seen</dt><dd>%s</dd>", html.EscapeString(state.lastSeen))
		}
		if state.server == "" && state.lastSeen == "" {
			// labels present with no text: plain offline
			fmt.Fprint(w, "<dt>Current Server</dt><dd></dd>")
		}
		fmt.Fprint(w, "</dl></body></html>")
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
