package stream

import (
	"github.com/charmbracelet/log"
	"github.com/lox/tablesync/internal/botflow"
	"github.com/lox/tablesync/internal/notify"
	"github.com/lox/tablesync/internal/protocol"
	"github.com/lox/tablesync/internal/table"
)

// Resetter is the part of the reset timer the processor drives.
type Resetter interface {
	Arm()
	Cancel()
}

// Processor applies classified stream messages to the table view and the bot
// workflow. It is not safe for concurrent use; the session calls it from its
// loop only.
type Processor struct {
	view   *table.View
	bots   *botflow.Workflow
	timer  Resetter
	emit   notify.Func
	logger *log.Logger
}

// NewProcessor wires a processor to the state it mutates. A nil emit drops
// notifications.
func NewProcessor(view *table.View, bots *botflow.Workflow, timer Resetter, emit notify.Func, logger *log.Logger) *Processor {
	if emit == nil {
		emit = notify.Discard
	}
	return &Processor{
		view:   view,
		bots:   bots,
		timer:  timer,
		emit:   emit,
		logger: logger.WithPrefix("processor"),
	}
}

// Handle classifies raw and applies it. Failures are logged, never returned.
func (p *Processor) Handle(raw []byte) {
	switch m := protocol.ParseStreamMessage(raw).(type) {
	case protocol.RoundEnd:
		p.logger.Info("Round ended", "round", m.RoundNumber, "winner", m.WinnerTeam, "game_ended", m.GameEnded)
		p.bots.EndRound()
		p.emit(notify.RoundEnded{RoundEnd: m})

	case protocol.BotAdded:
		known := p.bots.IsBot(m.Seat)
		if err := p.bots.AddSeat(m.Seat); err != nil {
			p.logger.Warn("Ignoring bot_added", "seat", m.Seat, "error", err)
			return
		}
		// An accepted add request already announced the seat.
		if !known {
			p.emit(notify.BotAdded{Seat: m.Seat})
		}

	case protocol.BotCardsDealt:
		if p.bots.Phase() > botflow.PhaseCardsDealt && p.bots.RoundEnded() {
			p.logger.Info("Cards dealt for the next round", "phase", p.bots.Phase())
			p.timer.Cancel()
			p.view.Clear()
			p.bots.NewRound()
		}
		if err := p.bots.CardsDealt(m.Seats); err != nil {
			p.logger.Warn("Ignoring bot_cards_dealt", "seats", m.Seats, "error", err)
			return
		}
		p.emit(notify.TrumpRequired{Seats: p.bots.Seats()})

	case protocol.BotRecognitionStart:
		confirming := p.bots.Phase() == botflow.PhaseRecognizing
		if err := p.bots.StartRecognition(); err != nil {
			p.logger.Warn("Ignoring bot_recognition_start", "phase", p.bots.Phase(), "error", err)
			return
		}
		p.view.RevealBotHand()
		if !confirming {
			p.emit(notify.RecognitionStarted{})
		}

	case protocol.BotCardRecognized:
		p.recognized(m)

	case protocol.BotPlayed:
		remaining, err := p.bots.Played(m.Seat, m.CardIndex)
		if err != nil {
			p.logger.Warn("Ignoring bot_played", "seat", m.Seat, "card_index", m.CardIndex, "error", err)
			return
		}
		p.view.VacateBotSlot(m.CardIndex)
		p.emit(notify.BotPlayed{Seat: m.Seat, CardName: m.CardName, CardIndex: m.CardIndex, Remaining: remaining})

	case protocol.Legacy:
		p.legacy(m)
	}
}

func (p *Processor) recognized(m protocol.BotCardRecognized) {
	entering := p.bots.Phase() == botflow.PhaseCardsDealt
	ready, err := p.bots.Recognize(m.CardNumber, m.CardID)
	if err != nil {
		p.logger.Warn("Ignoring bot_card_recognized", "card_number", m.CardNumber, "error", err)
		return
	}
	if entering {
		p.view.RevealBotHand()
	}
	p.view.SetBotCard(m.CardNumber, m.CardID)
	p.emit(notify.CardRecognized{CardNumber: m.CardNumber, CardID: m.CardID, Recognized: p.bots.RecognizedCount()})
	if ready {
		p.logger.Info("All bot cards recognised")
		p.emit(notify.BotsReady{})
	}
}

func (p *Processor) legacy(m protocol.Legacy) {
	if p.view.SetFingerprint(table.Fingerprint(m.Raw)) {
		p.timer.Cancel()
		p.view.ResetSeats()
		p.timer.Arm()
	}

	if !m.Detection.Complete() || m.Game == nil {
		return
	}
	p.place(m.Detection.CardID(), m.Game)
}

// place draws a detected card where the referee says it belongs.
func (p *Processor) place(cardID string, game *protocol.DetectionGame) {
	if game.SetsTrump() {
		p.view.SetTrump(cardID)
		p.emit(notify.TrumpSet{CardID: cardID})
		return
	}

	seat, ok := table.SeatForPlayer(game.CurrentPlayer)
	if !ok {
		p.logger.Warn("Unknown player tag", "player", string(game.CurrentPlayer), "card", cardID)
		return
	}
	if seat == table.North {
		p.view.ResetSeats()
	}
	p.view.PlaceCard(seat, cardID)
	p.emit(notify.CardPlaced{Seat: seat.String(), CardID: cardID})
}
