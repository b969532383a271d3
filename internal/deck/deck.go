package deck

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"strings"
)

// SeedSize is the size of a shuffle seed in bytes.
const SeedSize = 32

// Seed is the secret that determines a shuffle. It is generated from a
// secure random source at hand start and disclosed once the hand ends so
// any observer can re-derive the deck and check it against the commitment.
type Seed [SeedSize]byte

// NewSeed returns a seed drawn from crypto/rand.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, fmt.Errorf("generating shuffle seed: %w", err)
	}
	return s, nil
}

// String returns the hex encoding of the seed.
func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// ParseSeed decodes a hex-encoded seed as disclosed in HAND_ENDED.
func ParseSeed(s string) (Seed, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Seed{}, fmt.Errorf("parsing shuffle seed: %w", err)
	}
	if len(raw) != SeedSize {
		return Seed{}, fmt.Errorf("shuffle seed must be %d bytes, got %d", SeedSize, len(raw))
	}
	var out Seed
	copy(out[:], raw)
	return out, nil
}

// Deck is an ordered 52-card sequence consumed from the front as the hand
// deals. A deck is built once per hand and never reused.
type Deck struct {
	cards []Card
	next  int
}

// NewShuffled derives a full deck from the seed. The same seed always
// produces the same order, which is what makes the commitment verifiable.
func NewShuffled(seed Seed) *Deck {
	cards := orderedCards()
	rng := seededRNG(seed)
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return &Deck{cards: cards}
}

func orderedCards() []Card {
	cards := make([]Card, 0, 52)
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			cards = append(cards, NewCard(rank, suit))
		}
	}
	return cards
}

func seededRNG(seed Seed) *mathrand.Rand {
	hi := binary.BigEndian.Uint64(seed[0:8]) ^ binary.BigEndian.Uint64(seed[16:24])
	lo := binary.BigEndian.Uint64(seed[8:16]) ^ binary.BigEndian.Uint64(seed[24:32])
	return mathrand.New(mathrand.NewPCG(hi, lo))
}

// Commitment returns the provable-fairness commitment for the deck: an
// HMAC-SHA256 over the full card order, keyed by the seed. It is published
// before any card is revealed.
func (d *Deck) Commitment(seed Seed) string {
	mac := hmac.New(sha256.New, seed[:])
	mac.Write([]byte(orderString(d.cards)))
	return hex.EncodeToString(mac.Sum(nil))
}

func orderString(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Deal removes and returns the next n cards from the front of the deck.
// A table caps out at 10 seats, which consumes at most 28 cards, so running
// out indicates corrupted hand state and panics rather than wrapping around.
func (d *Deck) Deal(n int) []Card {
	if d.next+n > len(d.cards) {
		panic(fmt.Sprintf("deck exhausted: dealt %d, requested %d more", d.next, n))
	}
	cards := d.cards[d.next : d.next+n]
	d.next += n
	return cards
}

// Burn discards the next card before a street is dealt.
func (d *Deck) Burn() {
	d.Deal(1)
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}

// Verify recomputes the deck from a disclosed seed and checks it against a
// previously published commitment. Any client can run this after the hand.
func Verify(seed Seed, commitment string) bool {
	d := NewShuffled(seed)
	return hmac.Equal([]byte(d.Commitment(seed)), []byte(commitment))
}
