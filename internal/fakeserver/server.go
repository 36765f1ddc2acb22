// Package fakeserver is an in-process stand-in for the room and vision
// middleware. It serves the HTTP endpoints the api package calls and a camera
// websocket per game, so whole sessions can be driven from tests.
package fakeserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/tablesync/internal/protocol"
)

const writeWait = 2 * time.Second

// ErrNoCamera is returned when a game has no connected camera client.
var ErrNoCamera = errors.New("no camera client connected")

type room struct {
	snap   protocol.RoomSnapshot
	played []protocol.Card
}

type game struct {
	ready  bool
	rounds int
	conn   *websocket.Conn
	wmu    sync.Mutex
	frames []string
	joined chan struct{}
}

// Server is a scriptable middleware. The zero value is not usable; call New.
type Server struct {
	srv    *httptest.Server
	logger *log.Logger

	mu          sync.Mutex
	rooms       map[string]*room
	games       map[string]*game
	bots        []int
	recognition [][]int
	rejects     map[string]string
	nextID      int
}

// New starts a server on a loopback port.
func New(logger *log.Logger) *Server {
	s := &Server{
		logger:  logger.WithPrefix("fakeserver"),
		rooms:   make(map[string]*room),
		games:   make(map[string]*game),
		rejects: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /createRoom", s.handleCreateRoom)
	mux.HandleFunc("POST /joinRoom", s.handleJoinRoom)
	mux.HandleFunc("GET /room/{id}/state", s.handleRoomState)
	mux.HandleFunc("POST /playCard", s.handlePlayCard)
	mux.HandleFunc("POST /game/start", s.handleStartGame)
	mux.HandleFunc("POST /game/ready/{id}", s.handleReady)
	mux.HandleFunc("POST /game/new_round/{id}", s.handleNewRound)
	mux.HandleFunc("POST /bot/add/{seat}", s.handleAddBot)
	mux.HandleFunc("DELETE /bot/{seat}", s.handleRemoveBot)
	mux.HandleFunc("GET /bots", s.handleListBots)
	mux.HandleFunc("POST /bot/recognition/start", s.handleRecognition)
	mux.HandleFunc("GET /ws/camera/{id}", s.handleCamera)

	s.srv = httptest.NewServer(mux)
	return s
}

// URL is the base URL to hand to api.New.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the server down, dropping any camera connections.
func (s *Server) Close() {
	s.mu.Lock()
	for _, g := range s.games {
		if g.conn != nil {
			_ = g.conn.Close()
		}
	}
	s.mu.Unlock()
	s.srv.Close()
}

// Reject makes the next call of op answer success:false with message. Op
// names match the api client's: "join room", "play card", "new round" and
// so on.
func (s *Server) Reject(op, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects[op] = message
}

func (s *Server) takeReject(op string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.rejects[op]
	delete(s.rejects, op)
	return msg, ok
}

func (s *Server) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// StartRoomGame deals hands and flips the room into a running game.
func (s *Server) StartRoomGame(roomID string, hands map[string][]protocol.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("unknown room %q", roomID)
	}
	current := ""
	if len(r.snap.Players) > 0 {
		current = r.snap.Players[0].ID
	}
	dealt := make(map[string][]protocol.Card, len(hands))
	for id, cards := range hands {
		dealt[id] = slices.Clone(cards)
	}
	r.snap.GameStarted = true
	r.snap.GameState = &protocol.GameState{
		CurrentPlayerID: current,
		Hands:           dealt,
		Scores:          map[string]int{},
	}
	return nil
}

// Played returns the cards accepted for a room, in order.
func (s *Server) Played(roomID string) []protocol.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return slices.Clone(r.played)
	}
	return nil
}

// Bots returns the bot seats the server knows about.
func (s *Server) Bots() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bots)
}

// RecognitionRequests returns the seat lists sent to start recognition.
func (s *Server) RecognitionRequests() [][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recognition)
}

// Rounds reports how many new rounds a game was asked for.
func (s *Server) Rounds(gameID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[gameID]; ok {
		return g.rounds
	}
	return 0
}

// Ready reports whether a game was marked ready.
func (s *Server) Ready(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	return ok && g.ready
}

// Frames returns what the camera client sent for a game.
func (s *Server) Frames(gameID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[gameID]; ok {
		return slices.Clone(g.frames)
	}
	return nil
}

func (s *Server) gameFor(gameID string) *game {
	g, ok := s.games[gameID]
	if !ok {
		g = &game{joined: make(chan struct{})}
		s.games[gameID] = g
	}
	return g
}

// WaitForCamera blocks until a client has connected to the game's stream.
func (s *Server) WaitForCamera(ctx context.Context, gameID string) error {
	s.mu.Lock()
	joined := s.gameFor(gameID).joined
	s.mu.Unlock()
	select {
	case <-joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push sends one text frame to the game's camera client.
func (s *Server) Push(gameID, payload string) error {
	s.mu.Lock()
	g, ok := s.games[gameID]
	var conn *websocket.Conn
	if ok {
		conn = g.conn
	}
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: game %s", ErrNoCamera, gameID)
	}
	g.wmu.Lock()
	defer g.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

// PushJSON marshals v and pushes it.
func (s *Server) PushJSON(gameID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Push(gameID, string(payload))
}

// HangUp drops the camera connection without a close handshake.
func (s *Server) HangUp(gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok || g.conn == nil {
		return fmt.Errorf("%w: game %s", ErrNoCamera, gameID)
	}
	err := g.conn.Close()
	g.conn = nil
	g.joined = make(chan struct{})
	return err
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateRoomRequest
	if !decode(w, r, &req) {
		return
	}
	if msg, ok := s.takeReject("create room"); ok {
		s.logger.Debug("Rejecting", "op", "create room", "message", msg)
		writeJSON(w, protocol.JoinRoomResponse{Success: false})
		return
	}
	s.mu.Lock()
	roomID := s.id("room")
	playerID := s.id("player")
	s.rooms[roomID] = &room{snap: protocol.RoomSnapshot{
		RoomID:  roomID,
		Players: []protocol.Player{{ID: playerID, Name: req.PlayerName}},
	}}
	s.mu.Unlock()
	s.logger.Debug("Room created", "room", roomID, "player", playerID)
	writeJSON(w, protocol.JoinRoomResponse{Success: true, PlayerID: playerID, RoomID: roomID})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req protocol.JoinRoomRequest
	if !decode(w, r, &req) {
		return
	}
	if _, ok := s.takeReject("join room"); ok {
		writeJSON(w, protocol.JoinRoomResponse{Success: false})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[req.RoomID]
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	playerID := s.id("player")
	rm.snap.Players = append(rm.snap.Players, protocol.Player{ID: playerID, Name: req.PlayerName})
	writeJSON(w, protocol.JoinRoomResponse{Success: true, PlayerID: playerID, RoomID: req.RoomID})
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rm, ok := s.rooms[r.PathValue("id")]
	var snap protocol.RoomSnapshot
	if ok {
		snap = rm.snap
		if snap.GameState != nil {
			gs := *snap.GameState
			gs.Hands = make(map[string][]protocol.Card, len(rm.snap.GameState.Hands))
			for id, cards := range rm.snap.GameState.Hands {
				gs.Hands[id] = slices.Clone(cards)
			}
			gs.Table = slices.Clone(gs.Table)
			snap.GameState = &gs
		}
		snap.Players = slices.Clone(snap.Players)
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handlePlayCard(w http.ResponseWriter, r *http.Request) {
	var req protocol.PlayCardRequest
	if !decode(w, r, &req) {
		return
	}
	if msg, ok := s.takeReject("play card"); ok {
		writeJSON(w, protocol.ActionResponse{Success: false, Message: msg})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[req.RoomID]
	if !ok || rm.snap.GameState == nil {
		writeJSON(w, protocol.ActionResponse{Success: false, Message: "game not started"})
		return
	}
	hand := rm.snap.GameState.Hands[req.PlayerID]
	i := slices.IndexFunc(hand, func(c protocol.Card) bool { return c.ID == req.Card.ID })
	if i < 0 {
		writeJSON(w, protocol.ActionResponse{Success: false, Message: "card not in hand"})
		return
	}
	rm.snap.GameState.Hands[req.PlayerID] = slices.Delete(hand, i, i+1)
	rm.snap.GameState.Table = append(rm.snap.GameState.Table, req.Card)
	rm.played = append(rm.played, req.Card)
	writeJSON(w, protocol.ActionResponse{Success: true})
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req protocol.StartGameRequest
	if !decode(w, r, &req) {
		return
	}
	if msg, ok := s.takeReject("start game"); ok {
		writeJSON(w, protocol.StartGameResponse{Success: false, Message: msg})
		return
	}
	s.mu.Lock()
	gameID := s.id("game")
	s.gameFor(gameID)
	s.mu.Unlock()
	writeJSON(w, protocol.StartGameResponse{Success: true, Message: "game started", GameID: gameID})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.gameAction(w, r, "mark ready", func(g *game) { g.ready = true })
}

func (s *Server) handleNewRound(w http.ResponseWriter, r *http.Request) {
	s.gameAction(w, r, "new round", func(g *game) { g.rounds++ })
}

func (s *Server) gameAction(w http.ResponseWriter, r *http.Request, op string, fn func(*game)) {
	if msg, ok := s.takeReject(op); ok {
		writeJSON(w, protocol.ActionResponse{Success: false, Message: msg})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[r.PathValue("id")]
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	fn(g)
	writeJSON(w, protocol.ActionResponse{Success: true})
}

func (s *Server) handleAddBot(w http.ResponseWriter, r *http.Request) {
	seat, err := strconv.Atoi(r.PathValue("seat"))
	if err != nil {
		http.Error(w, "bad seat", http.StatusBadRequest)
		return
	}
	if msg, ok := s.takeReject("add bot"); ok {
		writeJSON(w, protocol.ActionResponse{Success: false, Message: msg})
		return
	}
	s.mu.Lock()
	if !slices.Contains(s.bots, seat) {
		s.bots = append(s.bots, seat)
		slices.Sort(s.bots)
	}
	s.mu.Unlock()
	writeJSON(w, protocol.ActionResponse{Success: true})
}

func (s *Server) handleRemoveBot(w http.ResponseWriter, r *http.Request) {
	seat, err := strconv.Atoi(r.PathValue("seat"))
	if err != nil {
		http.Error(w, "bad seat", http.StatusBadRequest)
		return
	}
	if msg, ok := s.takeReject("remove bot"); ok {
		writeJSON(w, protocol.ActionResponse{Success: false, Message: msg})
		return
	}
	s.mu.Lock()
	s.bots = slices.DeleteFunc(s.bots, func(b int) bool { return b == seat })
	s.mu.Unlock()
	writeJSON(w, protocol.ActionResponse{Success: true})
}

func (s *Server) handleListBots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, protocol.BotListResponse{Bots: s.Bots()})
}

func (s *Server) handleRecognition(w http.ResponseWriter, r *http.Request) {
	var req protocol.BotRecognitionRequest
	if !decode(w, r, &req) {
		return
	}
	if msg, ok := s.takeReject("start bot recognition"); ok {
		writeJSON(w, protocol.ActionResponse{Success: false, Message: msg})
		return
	}
	s.mu.Lock()
	s.recognition = append(s.recognition, slices.Clone(req.Bots))
	s.mu.Unlock()
	writeJSON(w, protocol.ActionResponse{Success: true})
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Upgrade failed", "game", gameID, "error", err)
		return
	}

	s.mu.Lock()
	g := s.gameFor(gameID)
	g.conn = conn
	select {
	case <-g.joined:
	default:
		close(g.joined)
	}
	s.mu.Unlock()
	s.logger.Debug("Camera connected", "game", gameID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("Camera disconnected", "game", gameID, "error", err)
			return
		}
		s.mu.Lock()
		g.frames = append(g.frames, string(data))
		s.mu.Unlock()
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
