package protocol

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Tag is the `type` discriminator of a structured stream message.
type Tag string

const (
	TagRoundEnd            Tag = "round_end"
	TagBotAdded            Tag = "bot_added"
	TagBotCardsDealt       Tag = "bot_cards_dealt"
	TagBotPlayed           Tag = "bot_played"
	TagBotRecognitionStart Tag = "bot_recognition_start"
	TagBotCardRecognized   Tag = "bot_card_recognized"
)

// BotHandSize is the number of cards dealt to a bot.
const BotHandSize = 10

// StreamMessage is the classified form of one inbound stream payload. It is
// one of RoundEnd, BotAdded, BotCardsDealt, BotPlayed, BotRecognitionStart,
// BotCardRecognized or Legacy.
type StreamMessage interface {
	Tag() Tag
}

type RoundEnd struct {
	RoundNumber  int
	WinnerTeam   int
	WinnerPoints int
	Team1Points  int
	Team2Points  int
	GameEnded    bool
}

type BotAdded struct {
	Seat int
}

// BotCardsDealt lists the bot seats present in the payload's bot map, sorted.
type BotCardsDealt struct {
	Seats []int
}

type BotPlayed struct {
	Seat      int
	CardName  string
	CardIndex int
}

type BotRecognitionStart struct{}

type BotCardRecognized struct {
	CardNumber int
	CardID     string
}

// Legacy is any payload without a recognised tag, including raw card strings
// and structured payloads missing required fields.
type Legacy struct {
	Raw       string
	Detection *Detection
	Game      *DetectionGame
}

func (RoundEnd) Tag() Tag            { return TagRoundEnd }
func (BotAdded) Tag() Tag            { return TagBotAdded }
func (BotCardsDealt) Tag() Tag       { return TagBotCardsDealt }
func (BotPlayed) Tag() Tag           { return TagBotPlayed }
func (BotRecognitionStart) Tag() Tag { return TagBotRecognitionStart }
func (BotCardRecognized) Tag() Tag   { return TagBotCardRecognized }
func (Legacy) Tag() Tag              { return "" }

// Detection is the recognised card forwarded by the vision middleware.
type Detection struct {
	Rank       string  `json:"rank"`
	Suit       string  `json:"suit"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Complete reports whether both rank and suit are present.
func (d *Detection) Complete() bool {
	return d != nil && d.Rank != "" && d.Suit != ""
}

// CardID returns the card identifier for the detection.
func (d *Detection) CardID() string {
	return CardIdentifier(d.Suit, d.Rank)
}

// DetectionGame is the referee answer attached to a detection.
type DetectionGame struct {
	CurrentPlayer PlayerTag `json:"current_player"`
	Message       string    `json:"message,omitempty"`
	Team1Points   int       `json:"team1_points,omitempty"`
	Team2Points   int       `json:"team2_points,omitempty"`
}

// TrumpSet is the referee message acknowledging the trump card.
const TrumpSet = "Trump card set"

// SetsTrump reports whether the referee accepted the detection as trump.
func (g *DetectionGame) SetsTrump() bool {
	return g != nil && g.Message == TrumpSet
}

// PlayerTag is a player position as sent on the wire; servers send it either
// as a JSON string or a number.
type PlayerTag string

func (p *PlayerTag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PlayerTag(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = PlayerTag(n.String())
	return nil
}

// Seat parses the tag as a numeric seat id.
func (p PlayerTag) Seat() (int, bool) {
	n, err := strconv.Atoi(string(p))
	if err != nil {
		return 0, false
	}
	return n, true
}

type envelope struct {
	Type *string `json:"type"`

	RoundNumber  *int `json:"round_number"`
	WinnerTeam   *int `json:"winner_team"`
	WinnerPoints int  `json:"winner_points"`
	Team1Points  int  `json:"team1_points"`
	Team2Points  int  `json:"team2_points"`
	GameEnded    bool `json:"game_ended"`

	PlayerID   *PlayerTag                 `json:"player_id"`
	Bots       map[string]json.RawMessage `json:"bots"`
	CardName   string                     `json:"card_name"`
	CardIndex  *int                       `json:"card_index"`
	CardNumber *int                       `json:"card_number"`
	CardID     string                     `json:"card_id"`

	Detection *Detection     `json:"detection"`
	GameState *DetectionGame `json:"game_state"`
}

// ParseStreamMessage classifies a raw stream payload. It never fails: anything
// that is not a well-formed tagged message comes back as Legacy.
func ParseStreamMessage(raw []byte) StreamMessage {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return legacy(raw, nil)
	}
	if env.Type != nil {
		if msg, ok := structured(Tag(*env.Type), &env); ok {
			return msg
		}
	}
	return legacy(raw, &env)
}

func structured(tag Tag, env *envelope) (StreamMessage, bool) {
	switch tag {
	case TagRoundEnd:
		if env.RoundNumber == nil || env.WinnerTeam == nil {
			return nil, false
		}
		return RoundEnd{
			RoundNumber:  *env.RoundNumber,
			WinnerTeam:   *env.WinnerTeam,
			WinnerPoints: env.WinnerPoints,
			Team1Points:  env.Team1Points,
			Team2Points:  env.Team2Points,
			GameEnded:    env.GameEnded,
		}, true

	case TagBotAdded:
		seat, ok := playerSeat(env.PlayerID)
		if !ok {
			return nil, false
		}
		return BotAdded{Seat: seat}, true

	case TagBotCardsDealt:
		if env.Bots == nil {
			return nil, false
		}
		seats := make([]int, 0, len(env.Bots))
		for key := range env.Bots {
			seat, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return nil, false
			}
			seats = append(seats, seat)
		}
		sort.Ints(seats)
		return BotCardsDealt{Seats: seats}, true

	case TagBotPlayed:
		seat, ok := playerSeat(env.PlayerID)
		if !ok || !validCardIndex(env.CardIndex) {
			return nil, false
		}
		return BotPlayed{Seat: seat, CardName: env.CardName, CardIndex: *env.CardIndex}, true

	case TagBotRecognitionStart:
		return BotRecognitionStart{}, true

	case TagBotCardRecognized:
		if !validCardIndex(env.CardNumber) || env.CardID == "" {
			return nil, false
		}
		return BotCardRecognized{CardNumber: *env.CardNumber, CardID: env.CardID}, true
	}
	return nil, false
}

func legacy(raw []byte, env *envelope) Legacy {
	msg := Legacy{Raw: string(raw)}
	if env == nil {
		// The payload may still carry usable nested objects when some other
		// field failed to decode.
		var nested struct {
			Detection *Detection     `json:"detection"`
			GameState *DetectionGame `json:"game_state"`
		}
		if json.Unmarshal(raw, &nested) != nil {
			return msg
		}
		msg.Detection, msg.Game = nested.Detection, nested.GameState
		return msg
	}
	msg.Detection, msg.Game = env.Detection, env.GameState
	return msg
}

func playerSeat(tag *PlayerTag) (int, bool) {
	if tag == nil {
		return 0, false
	}
	return tag.Seat()
}

func validCardIndex(n *int) bool {
	return n != nil && *n >= 1 && *n <= BotHandSize
}
