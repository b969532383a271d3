package game

import (
	"fmt"

	"github.com/lox/tableserver/internal/deck"
)

// Ranking is the total-order value of a best five-card hand. The high
// nibbles hold the category, the remaining nibbles the tie-break ranks in
// significance order, so two Rankings compare correctly as plain integers.
type Ranking uint32

// Category is the hand class encoded in the top of a Ranking.
type Category uint32

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

const categoryShift = 20

// String returns a human-readable category name
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// Category returns the hand class of the ranking
func (r Ranking) Category() Category {
	return Category(r >> categoryShift)
}

// tiebreak returns the i-th tie-break rank (0 = most significant)
func (r Ranking) tiebreak(i int) deck.Rank {
	return deck.Rank((r >> (16 - 4*i)) & 0xF)
}

func packRanking(cat Category, tiebreaks ...deck.Rank) Ranking {
	r := Ranking(cat) << categoryShift
	for i, t := range tiebreaks {
		r |= Ranking(t) << (16 - 4*i)
	}
	return r
}

// HandResult is the outcome of evaluating a 5-to-7 card set: the maximum
// Ranking over every 5-card subset, plus the indices (into the input slice)
// of the cards forming that subset.
type HandResult struct {
	Ranking Ranking
	Best    []int
}

// Evaluate ranks the best 5-card hand selectable from 5 to 7 cards. The
// subset enumeration is deterministic, so the reported indices are too.
func Evaluate(cards []deck.Card) (HandResult, error) {
	n := len(cards)
	if n < 5 || n > 7 {
		return HandResult{}, fmt.Errorf("evaluate requires 5 to 7 cards, got %d", n)
	}

	var best HandResult
	combo := [5]deck.Card{}
	forEachCombination(n, func(idx [5]int) {
		for i, j := range idx {
			combo[i] = cards[j]
		}
		r := rank5(combo)
		if r > best.Ranking || best.Best == nil {
			best.Ranking = r
			best.Best = append(best.Best[:0], idx[:]...)
		}
	})
	return best, nil
}

// forEachCombination visits every 5-element index subset of [0,n) in
// lexicographic order.
func forEachCombination(n int, fn func([5]int)) {
	var idx [5]int
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for e := d + 1; e < n; e++ {
						idx[0], idx[1], idx[2], idx[3], idx[4] = a, b, c, d, e
						fn(idx)
					}
				}
			}
		}
	}
}

// rank5 ranks exactly five cards.
func rank5(cards [5]deck.Card) Ranking {
	var counts [15]int
	flush := true
	for i, c := range cards {
		counts[c.Rank]++
		if i > 0 && c.Suit != cards[0].Suit {
			flush = false
		}
	}

	straightHigh := straightHighCard(counts)

	if straightHigh > 0 && flush {
		return packRanking(StraightFlush, straightHigh)
	}

	// Group ranks by multiplicity, highest count then highest rank first.
	var quads, trips, pairs, singles []deck.Rank
	for r := deck.Ace; r >= deck.Two; r-- {
		switch counts[r] {
		case 4:
			quads = append(quads, r)
		case 3:
			trips = append(trips, r)
		case 2:
			pairs = append(pairs, r)
		case 1:
			singles = append(singles, r)
		}
	}

	switch {
	case len(quads) == 1:
		return packRanking(FourOfAKind, quads[0], singles[0])
	case len(trips) == 1 && len(pairs) == 1:
		return packRanking(FullHouse, trips[0], pairs[0])
	case flush:
		return packRanking(Flush, singles[0], singles[1], singles[2], singles[3], singles[4])
	case straightHigh > 0:
		return packRanking(Straight, straightHigh)
	case len(trips) == 1:
		return packRanking(ThreeOfAKind, trips[0], singles[0], singles[1])
	case len(pairs) == 2:
		return packRanking(TwoPair, pairs[0], pairs[1], singles[0])
	case len(pairs) == 1:
		return packRanking(Pair, pairs[0], singles[0], singles[1], singles[2])
	default:
		return packRanking(HighCard, singles[0], singles[1], singles[2], singles[3], singles[4])
	}
}

// straightHighCard returns the high card of a five-card straight, or 0.
// The wheel (A-2-3-4-5) counts as a straight with high card 5.
func straightHighCard(counts [15]int) deck.Rank {
	run := 0
	for r := deck.Two; r <= deck.Ace; r++ {
		if counts[r] == 0 {
			run = 0
			continue
		}
		if counts[r] > 1 {
			return 0 // a paired board subset cannot be a straight
		}
		run++
		if run == 5 {
			return r
		}
	}
	if counts[deck.Ace] == 1 && counts[deck.Two] == 1 && counts[deck.Three] == 1 &&
		counts[deck.Four] == 1 && counts[deck.Five] == 1 {
		return deck.Five
	}
	return 0
}

// Describe renders a ranking the way a dealer would announce it, e.g.
// "Kings full of Aces" or "Flush, Queen-high".
func Describe(r Ranking) string {
	switch r.Category() {
	case StraightFlush:
		if r.tiebreak(0) == deck.Ace {
			return "Royal Flush"
		}
		return fmt.Sprintf("Straight Flush, %s-high", r.tiebreak(0).Name())
	case FourOfAKind:
		return fmt.Sprintf("Four %ss", r.tiebreak(0).Name())
	case FullHouse:
		return fmt.Sprintf("%ss full of %ss", r.tiebreak(0).Name(), r.tiebreak(1).Name())
	case Flush:
		return fmt.Sprintf("Flush, %s-high", r.tiebreak(0).Name())
	case Straight:
		return fmt.Sprintf("Straight, %s-high", r.tiebreak(0).Name())
	case ThreeOfAKind:
		return fmt.Sprintf("Three %ss", r.tiebreak(0).Name())
	case TwoPair:
		return fmt.Sprintf("Two Pair, %ss and %ss", r.tiebreak(0).Name(), r.tiebreak(1).Name())
	case Pair:
		return fmt.Sprintf("Pair of %ss", r.tiebreak(0).Name())
	default:
		return fmt.Sprintf("%s-high", r.tiebreak(0).Name())
	}
}
