// Package gatewaytest runs an in-process quiz API for tests: the HTTP routes
// the client calls plus a websocket push endpoint.
package gatewaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"quiz-client/internal/domain"
)

// Server is a scripted quiz backend. Exported fields may be changed between
// requests; hold Lock while doing so if requests are in flight.
type Server struct {
	*httptest.Server

	sync.Mutex
	Questions  []domain.Question
	Correct    map[int]string
	Settings   domain.Settings
	AdminToken string
	CUIDs      []domain.CapturedID
	// FailQuestions makes /api/questions answer 500.
	FailQuestions bool
	// SubmitGate, when set, blocks submit-attempt handlers until it is closed.
	SubmitGate chan struct{}

	attempts map[string]int
	best     map[string]domain.LeaderboardEntry
	finals   map[string]bool
	names    map[string]bool

	calls map[string]*atomic.Int64

	hubMu    sync.Mutex
	upgrader websocket.Upgrader
	conns    map[*websocket.Conn]chan any
}

// New starts a server with two sample questions and the quiz open.
func New() *Server {
	s := &Server{
		Questions: []domain.Question{
			{ID: 1, Text: "Pick A", Options: []string{"A", "B", "C"}},
			{ID: 2, Text: "Pick B", Options: []string{"A", "B", "C"}},
		},
		Correct:    map[int]string{1: "A", 2: "B"},
		Settings:   domain.Settings{IsOpen: true},
		AdminToken: "admin-secret",
		attempts:   make(map[string]int),
		best:       make(map[string]domain.LeaderboardEntry),
		finals:     make(map[string]bool),
		names:      make(map[string]bool),
		calls:      make(map[string]*atomic.Int64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]chan any),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/settings", s.counted("settings", s.handleSettings)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/settings", s.counted("admin-settings", s.admin(s.handleSettings))).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/settings", s.counted("update-settings", s.admin(s.handleUpdateSettings))).Methods(http.MethodPut)
	r.HandleFunc("/api/check-username", s.counted("check-username", s.handleCheckUsername)).Methods(http.MethodPost)
	r.HandleFunc("/api/questions", s.counted("questions", s.handleQuestions)).Methods(http.MethodGet)
	r.HandleFunc("/api/submit-attempt", s.counted("submit-attempt", s.handleSubmitAttempt)).Methods(http.MethodPost)
	r.HandleFunc("/api/submit-final", s.counted("submit-final", s.handleSubmitFinal)).Methods(http.MethodPost)
	r.HandleFunc("/api/answers", s.counted("answers", s.handleAnswers)).Methods(http.MethodPost)
	r.HandleFunc("/api/leaderboard", s.counted("leaderboard", s.handleLeaderboard)).Methods(http.MethodGet)
	r.HandleFunc("/api/cuids", s.counted("cuids", s.handleCUIDs)).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)

	s.Server = httptest.NewServer(r)
	return s
}

// Calls reports how many times the named route was hit
// (settings, admin-settings, update-settings, check-username, questions,
// submit-attempt, submit-final, answers, leaderboard, cuids).
func (s *Server) Calls(route string) int64 {
	s.Lock()
	defer s.Unlock()
	if c, ok := s.calls[route]; ok {
		return c.Load()
	}
	return 0
}

// PushURL is the websocket endpoint of the server.
func (s *Server) PushURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

// Subscribers reports how many push connections are open.
func (s *Server) Subscribers() int {
	s.hubMu.Lock()
	defer s.hubMu.Unlock()
	return len(s.conns)
}

// DropSubscribers closes every open push connection from the server side.
func (s *Server) DropSubscribers() {
	s.hubMu.Lock()
	defer s.hubMu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// Broadcast pushes an event to every connected subscriber.
func (s *Server) Broadcast(eventType string, payload any) {
	msg := map[string]any{"type": eventType, "payload": payload}
	s.hubMu.Lock()
	defer s.hubMu.Unlock()
	for _, ch := range s.conns {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Attempts reports the attempts the server recorded for username.
func (s *Server) Attempts(username string) int {
	s.Lock()
	defer s.Unlock()
	return s.attempts[username]
}

func (s *Server) counted(route string, next http.HandlerFunc) http.HandlerFunc {
	s.Lock()
	counter := &atomic.Int64{}
	s.calls[route] = counter
	s.Unlock()
	return func(w http.ResponseWriter, r *http.Request) {
		counter.Add(1)
		next(w, r)
	}
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		want := "Bearer " + s.AdminToken
		s.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	s.Lock()
	settings := s.Settings
	s.Unlock()
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch domain.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}
	s.Lock()
	if patch.IsOpen != nil {
		s.Settings.IsOpen = *patch.IsOpen
	}
	settings := s.Settings
	s.Unlock()
	s.Broadcast("quiz_settings_updated", settings)
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Nom d'utilisateur requis"})
		return
	}
	s.Lock()
	taken := s.names[body.Username]
	s.names[body.Username] = true
	s.Unlock()
	if taken {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Ce nom d'utilisateur est déjà pris"})
		return
	}
	s.Broadcast("user_registered", map[string]string{"username": body.Username})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleQuestions(w http.ResponseWriter, _ *http.Request) {
	s.Lock()
	fail := s.FailQuestions
	questions := append([]domain.Question(nil), s.Questions...)
	s.Unlock()
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (s *Server) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var sub domain.AttemptSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}

	s.Lock()
	gate := s.SubmitGate
	s.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.Lock()
	if s.attempts[sub.Username] >= domain.MaxAttempts {
		s.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": domain.MaxAttemptsMessage})
		return
	}
	s.attempts[sub.Username]++
	used := s.attempts[sub.Username]
	score := 0
	for _, a := range sub.Answers {
		if s.Correct[a.QuestionID] == a.Answer {
			score++
		}
	}
	if prev, ok := s.best[sub.Username]; !ok || score > prev.Score || (score == prev.Score && sub.TimeTaken < prev.TimeTaken) {
		s.best[sub.Username] = domain.LeaderboardEntry{Username: sub.Username, Score: score, TimeTaken: sub.TimeTaken}
	}
	s.Unlock()

	s.Broadcast("attempt_submitted", domain.Submission{Username: sub.Username, Score: score})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"score":      score,
		"time_taken": sub.TimeTaken,
		"can_retry":  used < domain.MaxAttempts,
	})
}

func (s *Server) handleSubmitFinal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}
	s.Lock()
	if _, ok := s.best[body.Username]; !ok {
		s.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Aucune tentative trouvée"})
		return
	}
	s.finals[body.Username] = true
	s.Unlock()

	s.Broadcast("leaderboard_updated", s.leaderboard())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QuestionIDs []int `json:"questionIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}
	s.Lock()
	answers := make([]domain.CorrectAnswer, 0, len(body.QuestionIDs))
	for _, id := range body.QuestionIDs {
		if correct, ok := s.Correct[id]; ok {
			answers = append(answers, domain.CorrectAnswer{QuestionID: id, CorrectAnswer: correct})
		}
	}
	s.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "answers": answers})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.leaderboard())
}

func (s *Server) handleCUIDs(w http.ResponseWriter, _ *http.Request) {
	s.Lock()
	cuids := append([]domain.CapturedID(nil), s.CUIDs...)
	s.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cuids": cuids})
}

// leaderboard ranks final submissions by score desc, then time asc, then name.
func (s *Server) leaderboard() []domain.LeaderboardEntry {
	s.Lock()
	defer s.Unlock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.finals))
	for name := range s.finals {
		entries = append(entries, s.best[name])
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].TimeTaken != entries[j].TimeTaken {
			return entries[i].TimeTaken < entries[j].TimeTaken
		}
		return entries[i].Username < entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	send := make(chan any, 16)
	s.Lock()
	participants := len(s.names)
	s.Unlock()
	send <- map[string]any{"type": "participant_count_init", "payload": participants}
	send <- map[string]any{"type": "leaderboard_init", "payload": s.leaderboard()}

	s.hubMu.Lock()
	s.conns[conn] = send
	s.hubMu.Unlock()
	defer func() {
		s.hubMu.Lock()
		delete(s.conns, conn)
		s.hubMu.Unlock()
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
