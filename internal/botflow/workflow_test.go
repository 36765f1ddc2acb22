package botflow

import (
	"fmt"
	"testing"

	"github.com/lox/tablesync/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dealt(t *testing.T, seats ...int) *Workflow {
	t.Helper()
	w := New()
	require.NoError(t, w.CardsDealt(seats))
	return w
}

func TestAddSeat(t *testing.T) {
	w := New()
	require.NoError(t, w.AddSeat(3))
	assert.Equal(t, PhaseAdded, w.Phase())
	assert.True(t, w.IsBot(3))

	assert.ErrorIs(t, w.AddSeat(1), ErrSeat)
	assert.ErrorIs(t, w.AddSeat(5), ErrSeat)
}

func TestAddSeatDoesNotRegressPhase(t *testing.T) {
	w := dealt(t, 2)
	require.NoError(t, w.AddSeat(4))
	assert.Equal(t, PhaseCardsDealt, w.Phase())
	assert.Equal(t, []int{2, 4}, w.Seats())
}

func TestCardsDealtThenTenRecognitionsIsReady(t *testing.T) {
	w := dealt(t, 2)
	assert.Equal(t, PhaseCardsDealt, w.Phase())

	for n := 1; n <= protocol.BotHandSize; n++ {
		ready, err := w.Recognize(n, "spades_ace")
		require.NoError(t, err)
		assert.Equal(t, n, w.RecognizedCount())
		if n < protocol.BotHandSize {
			assert.False(t, ready, "ready too early at %d", n)
			assert.Equal(t, PhaseRecognizing, w.Phase())
		} else {
			assert.True(t, ready)
		}
	}

	assert.Equal(t, PhaseReady, w.Phase())
	for n := 1; n <= protocol.BotHandSize; n++ {
		id, ok := w.Assignment(n)
		assert.True(t, ok, "slot %d", n)
		assert.Equal(t, "spades_ace", id)
	}
}

func TestRepeatedCardNumberDoesNotCount(t *testing.T) {
	w := dealt(t, 2)
	require.NoError(t, w.StartRecognition())

	for i := 0; i < 15; i++ {
		_, err := w.Recognize(1, fmt.Sprintf("card_%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, w.RecognizedCount())
	assert.Equal(t, PhaseRecognizing, w.Phase())
	id, _ := w.Assignment(1)
	assert.Equal(t, "card_14", id)
}

func TestRecognizeRejectedOutsideRecognition(t *testing.T) {
	w := New()
	_, err := w.Recognize(1, "clubs_2")
	assert.ErrorIs(t, err, ErrPhase)
	assert.Equal(t, 0, w.RecognizedCount())

	w = dealt(t, 2)
	_, err = w.Recognize(0, "clubs_2")
	assert.ErrorIs(t, err, ErrCardIndex)
	_, err = w.Recognize(11, "clubs_2")
	assert.ErrorIs(t, err, ErrCardIndex)
	assert.Equal(t, PhaseCardsDealt, w.Phase())
}

func TestStartRecognition(t *testing.T) {
	w := dealt(t, 3)
	assert.True(t, w.CanStartRecognition())
	require.NoError(t, w.StartRecognition())
	assert.False(t, w.CanStartRecognition())

	// Repeating before any recognition is harmless.
	require.NoError(t, w.StartRecognition())

	_, err := w.Recognize(2, "hearts_7")
	require.NoError(t, err)
	assert.ErrorIs(t, w.StartRecognition(), ErrPhase)
	assert.Equal(t, 1, w.RecognizedCount())
}

func TestPlayedMovesToPlaying(t *testing.T) {
	w := dealt(t, 2)
	for n := 1; n <= protocol.BotHandSize; n++ {
		_, err := w.Recognize(n, "x")
		require.NoError(t, err)
	}

	remaining, err := w.Played(2, 4)
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
	assert.Equal(t, PhasePlaying, w.Phase())

	remaining, err = w.Played(2, 4)
	require.NoError(t, err)
	assert.Equal(t, 9, remaining, "same slot twice counts once")

	_, err = w.Played(2, 11)
	assert.ErrorIs(t, err, ErrCardIndex)
	_, err = w.Played(1, 3)
	assert.ErrorIs(t, err, ErrSeat)
}

func TestPlayedBeforeDealIsRejected(t *testing.T) {
	w := New()
	require.NoError(t, w.AddSeat(2))
	_, err := w.Played(2, 1)
	assert.ErrorIs(t, err, ErrPhase)
	assert.Equal(t, PhaseAdded, w.Phase())
}

func TestPhaseNeverRegressesWithoutNewRound(t *testing.T) {
	w := dealt(t, 2)
	for n := 1; n <= protocol.BotHandSize; n++ {
		_, _ = w.Recognize(n, "x")
	}
	_, _ = w.Played(2, 1)
	require.Equal(t, PhasePlaying, w.Phase())

	// Everything that could move the phase back must be refused or ignored.
	assert.ErrorIs(t, w.CardsDealt([]int{2}), ErrPhase)
	assert.ErrorIs(t, w.StartRecognition(), ErrPhase)
	_, err := w.Recognize(1, "y")
	assert.ErrorIs(t, err, ErrPhase)
	require.NoError(t, w.AddSeat(3))
	w.SetSeats([]int{2})
	assert.Equal(t, PhasePlaying, w.Phase())

	w.NewRound()
	assert.Equal(t, PhaseNone, w.Phase())
	assert.Equal(t, 0, w.RecognizedCount())
	assert.Equal(t, protocol.BotHandSize, w.Remaining())
	assert.Equal(t, []int{2}, w.Seats())

	require.NoError(t, w.CardsDealt([]int{2}))
	assert.Equal(t, PhaseCardsDealt, w.Phase())
}

func TestRoundEndedFlag(t *testing.T) {
	w := dealt(t, 3)
	assert.False(t, w.RoundEnded())

	w.EndRound()
	assert.True(t, w.RoundEnded())
	assert.Equal(t, PhaseCardsDealt, w.Phase(), "the flag alone does not move the phase")

	w.NewRound()
	assert.False(t, w.RoundEnded())

	w.EndRound()
	require.NoError(t, w.CardsDealt([]int{3}))
	assert.False(t, w.RoundEnded(), "a deal opens the next round")
}

func TestSetSeats(t *testing.T) {
	w := New()
	skipped := w.SetSeats([]int{4, 1, 2})
	assert.Equal(t, []int{1}, skipped)
	assert.Equal(t, []int{2, 4}, w.Seats())
	assert.Equal(t, PhaseAdded, w.Phase())

	empty := New()
	empty.SetSeats(nil)
	assert.Equal(t, PhaseNone, empty.Phase())
}

func TestState(t *testing.T) {
	w := dealt(t, 4, 2)
	_, err := w.Recognize(5, "diamonds_queen")
	require.NoError(t, err)

	st := w.State()
	assert.Equal(t, []int{2, 4}, st.Seats)
	assert.Equal(t, PhaseRecognizing, st.Phase)
	assert.Equal(t, 1, st.Recognized)
	assert.Equal(t, protocol.BotHandSize, st.Remaining)
	assert.Equal(t, "diamonds_queen", st.Assignment[4])
}
