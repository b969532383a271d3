package game

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tableserver/internal/deck"
)

// cards parses space-separated shorthand like "AS KD 7H" for tests.
func cards(t *testing.T, s string) []deck.Card {
	t.Helper()
	ranks := map[byte]deck.Rank{
		'2': deck.Two, '3': deck.Three, '4': deck.Four, '5': deck.Five,
		'6': deck.Six, '7': deck.Seven, '8': deck.Eight, '9': deck.Nine,
		'T': deck.Ten, 'J': deck.Jack, 'Q': deck.Queen, 'K': deck.King, 'A': deck.Ace,
	}
	suits := map[byte]deck.Suit{
		'S': deck.Spades, 'H': deck.Hearts, 'D': deck.Diamonds, 'C': deck.Clubs,
	}
	var out []deck.Card
	for _, tok := range strings.Fields(s) {
		require.Len(t, tok, 2, "bad card token %q", tok)
		rank, ok := ranks[tok[0]]
		require.True(t, ok, "bad rank in %q", tok)
		suit, ok := suits[tok[1]]
		require.True(t, ok, "bad suit in %q", tok)
		out = append(out, deck.NewCard(rank, suit))
	}
	return out
}

func evalRanking(t *testing.T, s string) Ranking {
	t.Helper()
	result, err := Evaluate(cards(t, s))
	require.NoError(t, err)
	return result.Ranking
}

func TestEvaluateCategories(t *testing.T) {
	tests := []struct {
		name     string
		hand     string
		category Category
	}{
		{"high card", "AS KD 9H 7C 3S", HighCard},
		{"pair", "AS AD 9H 7C 3S", Pair},
		{"two pair", "AS AD 9H 9C 3S", TwoPair},
		{"trips", "AS AD AH 9C 3S", ThreeOfAKind},
		{"straight", "9S 8D 7H 6C 5S", Straight},
		{"wheel straight", "AS 2D 3H 4C 5S", Straight},
		{"flush", "AS QS 9S 7S 3S", Flush},
		{"full house", "AS AD AH 9C 9S", FullHouse},
		{"quads", "AS AD AH AC 3S", FourOfAKind},
		{"straight flush", "9S 8S 7S 6S 5S", StraightFlush},
		{"royal flush", "AS KS QS JS TS", StraightFlush},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, evalRanking(t, tt.hand).Category())
		})
	}
}

func TestEvaluateTotalOrder(t *testing.T) {
	// Ascending ladder; every hand must beat all hands before it.
	ladder := []string{
		"AS KD 9H 7C 3S", // ace high
		"2S 2D 9H 7C 3S", // pair of twos
		"AS AD 9H 7C 3S", // pair of aces
		"2S 2D 3H 3C 9S", // two pair, threes and twos
		"AS AD KH KC 3S", // aces up
		"2S 2D 2H 7C 3S", // trip twos
		"AS 2D 3H 4C 5S", // wheel
		"9S 8D 7H 6C 5S", // nine-high straight
		"AS KD QH JC TS", // broadway
		"2S 4S 7S 9S JS", // jack-high flush
		"AS QS 9S 7S 3S", // ace-high flush
		"2S 2D 2H 3C 3S", // twos full of threes
		"AS AD AH KC KS", // aces full of kings
		"2S 2D 2H 2C 3S", // quad twos
		"AS AD AH AC KS", // quad aces
		"5S 4S 3S 2S AS", // steel wheel
		"AS KS QS JS TS", // royal flush
	}
	for i := 1; i < len(ladder); i++ {
		lo := evalRanking(t, ladder[i-1])
		hi := evalRanking(t, ladder[i])
		assert.Greater(t, hi, lo, "%q should beat %q", ladder[i], ladder[i-1])
	}
}

func TestEvaluateKickersBreakTies(t *testing.T) {
	// Same pair, better kicker wins.
	better := evalRanking(t, "AS AD KH 7C 3S")
	worse := evalRanking(t, "AS AD QH 7C 3S")
	assert.Greater(t, better, worse)

	// Identical hands across suits rank equal.
	a := evalRanking(t, "AS KD 9H 7C 3S")
	b := evalRanking(t, "AH KC 9D 7S 3H")
	assert.Equal(t, a, b)
}

func TestEvaluateWheelIsLowestStraight(t *testing.T) {
	wheel := evalRanking(t, "AS 2D 3H 4C 5S")
	sixHigh := evalRanking(t, "2D 3H 4C 5S 6D")
	assert.Greater(t, sixHigh, wheel)
}

func TestEvaluateSevenCardsPicksBestFive(t *testing.T) {
	// Board pairs plus a pocket pair makes a full house among seven cards.
	result, err := Evaluate(cards(t, "KS KD 9H 9C 9S 4D 2C"))
	require.NoError(t, err)
	assert.Equal(t, FullHouse, result.Ranking.Category())
	require.Len(t, result.Best, 5)

	// The chosen indices must reproduce the same ranking.
	all := cards(t, "KS KD 9H 9C 9S 4D 2C")
	var five [5]deck.Card
	for i, idx := range result.Best {
		five[i] = all[idx]
	}
	assert.Equal(t, result.Ranking, rank5(five))
}

func TestEvaluateMatchesBruteForce(t *testing.T) {
	// The 21-subset maximum must equal the tracked best on several fixed
	// seven-card boards.
	boards := []string{
		"AS KS QS JS TS 2D 3C",
		"2S 2D 2H 2C 3S 3D 3H",
		"AS 2D 3H 4C 5S KD QC",
		"9S 8D 7H 6C 5S 4D 3C",
		"AS AD KH KC QS JD 2C",
		"7S 7D 7H KC KS 2D 2C",
	}
	for _, board := range boards {
		all := cards(t, board)
		result, err := Evaluate(all)
		require.NoError(t, err)

		var best Ranking
		forEachCombination(len(all), func(idx [5]int) {
			var five [5]deck.Card
			for i, j := range idx {
				five[i] = all[j]
			}
			if r := rank5(five); r > best {
				best = r
			}
		})
		assert.Equal(t, best, result.Ranking, "board %q", board)
	}
}

func TestEvaluateRandomHandsTotalOrder(t *testing.T) {
	// Random seven-card draws: evaluation must be deterministic, the
	// tracked best must equal the 21-subset maximum, and the resulting
	// Rankings must order consistently pairwise.
	rng := rand.New(rand.NewPCG(7, 42))
	full := make([]deck.Card, 0, 52)
	for suit := deck.Spades; suit <= deck.Clubs; suit++ {
		for rank := deck.Two; rank <= deck.Ace; rank++ {
			full = append(full, deck.NewCard(rank, suit))
		}
	}

	rankings := make([]Ranking, 0, 50)
	for range 50 {
		rng.Shuffle(len(full), func(i, j int) {
			full[i], full[j] = full[j], full[i]
		})
		hand := full[:7]

		result, err := Evaluate(hand)
		require.NoError(t, err)
		again, err := Evaluate(hand)
		require.NoError(t, err)
		assert.Equal(t, result.Ranking, again.Ranking)

		var best Ranking
		forEachCombination(len(hand), func(idx [5]int) {
			var five [5]deck.Card
			for i, j := range idx {
				five[i] = hand[j]
			}
			if r := rank5(five); r > best {
				best = r
			}
		})
		assert.Equal(t, best, result.Ranking, "hand %v", hand)
		rankings = append(rankings, result.Ranking)
	}

	for i, a := range rankings {
		for _, b := range rankings[i+1:] {
			relations := 0
			if a < b {
				relations++
			}
			if a > b {
				relations++
			}
			if a == b {
				relations++
			}
			assert.Equal(t, 1, relations)
		}
	}
}

func TestEvaluateCardCountBounds(t *testing.T) {
	_, err := Evaluate(cards(t, "AS KD 9H 7C"))
	assert.Error(t, err)
	_, err = Evaluate(cards(t, "AS KD 9H 7C 3S 2D 4H 5C"))
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		hand string
		want string
	}{
		{"AS KS QS JS TS", "Royal Flush"},
		{"9S 8S 7S 6S 5S", "Straight Flush, Nine-high"},
		{"AS AD AH AC 3S", "Four Aces"},
		{"KS KD KH 9C 9S", "Kings full of Nines"},
		{"AS QS 9S 7S 3S", "Flush, Ace-high"},
		{"9S 8D 7H 6C 5S", "Straight, Nine-high"},
		{"AS AD AH 9C 3S", "Three Aces"},
		{"AS AD 9H 9C 3S", "Two Pair, Aces and Nines"},
		{"AS AD QH 7C 3S", "Pair of Aces"},
		{"AS KD 9H 7C 3S", "Ace-high"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(evalRanking(t, tt.hand)), "hand %q", tt.hand)
	}
}
