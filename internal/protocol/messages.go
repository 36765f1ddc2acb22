package protocol

import (
	"errors"
	"fmt"
)

// Card is a playing card as exchanged with the room service.
type Card struct {
	ID       string `json:"id"`
	Suit     string `json:"suit"`
	Rank     string `json:"value"`
	ImageRef string `json:"imageUrl,omitempty"`
}

// Player is a room member.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GameState is the server-authoritative state of a running game. The client
// only ever reads it.
type GameState struct {
	CurrentPlayerID string            `json:"currentPlayerId"`
	Hands           map[string][]Card `json:"hands"`
	Table           []Card            `json:"table"`
	Scores          map[string]int    `json:"scores"`
}

// Hand returns the cards held by playerID, or nil.
func (g *GameState) Hand(playerID string) []Card {
	if g == nil {
		return nil
	}
	return g.Hands[playerID]
}

// RoomSnapshot is one poll result for a room.
type RoomSnapshot struct {
	RoomID      string     `json:"roomId"`
	Players     []Player   `json:"players"`
	GameStarted bool       `json:"gameStarted"`
	GameState   *GameState `json:"gameState,omitempty"`
}

// ErrInconsistentSnapshot is returned by Validate when gameStarted and
// gameState disagree.
var ErrInconsistentSnapshot = errors.New("inconsistent room snapshot")

// Validate checks that a game state is present iff the game has started.
func (s *RoomSnapshot) Validate() error {
	switch {
	case s.GameStarted && s.GameState == nil:
		return fmt.Errorf("%w: room %s started without game state", ErrInconsistentSnapshot, s.RoomID)
	case !s.GameStarted && s.GameState != nil:
		return fmt.Errorf("%w: room %s has game state before start", ErrInconsistentSnapshot, s.RoomID)
	}
	return nil
}

// InGame reports whether the snapshot describes a running game.
func (s *RoomSnapshot) InGame() bool {
	return s.GameStarted && s.GameState != nil
}

// Request bodies

type JoinRoomRequest struct {
	PlayerName string `json:"playerName"`
	RoomID     string `json:"roomId"`
}

type CreateRoomRequest struct {
	PlayerName string `json:"playerName"`
}

type PlayCardRequest struct {
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId"`
	Card     Card   `json:"card"`
}

type StartGameRequest struct {
	PlayerName string `json:"playerName"`
	RoomID     string `json:"roomId,omitempty"`
}

type BotRecognitionRequest struct {
	Bots []int `json:"bots"`
}

// Responses

type JoinRoomResponse struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId"`
}

// ActionResponse is the generic {success, message} answer.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type StartGameResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	GameID  string `json:"gameId"`
}

type BotListResponse struct {
	Bots []int `json:"bots"`
}
