package game

import "sort"

// Pot is a chip pool with a specific set of eligible claimants. Pots are
// layered by contribution thresholds: a seat is eligible when its total
// contribution reached the pot's threshold and it has not folded. Folded
// chips stay in the pots below the folder's contribution.
type Pot struct {
	Amount    int   `json:"amount"`
	Threshold int   `json:"threshold"`
	Eligible  []int `json:"eligible"`
}

// PotAward records one seat's share of one pot.
type PotAward struct {
	PotIndex int
	Seat     int
	Amount   int
}

// BuildPots layers the players' total contributions into a main pot and
// side pots, ascending by threshold. The sum of all pot amounts always
// equals the sum of all total contributions; adjacent layers with identical
// eligible sets are merged so a fold mid-layer does not split pots
// needlessly.
func BuildPots(players []*PlayerInHand) []Pot {
	levels := make([]int, 0, len(players))
	seen := make(map[int]bool)
	for _, p := range players {
		if p.TotalBet > 0 && !seen[p.TotalBet] {
			seen[p.TotalBet] = true
			levels = append(levels, p.TotalBet)
		}
	}
	sort.Ints(levels)

	var pots []Pot
	prev := 0
	for _, level := range levels {
		pot := Pot{Threshold: level}
		for _, p := range players {
			contrib := min(p.TotalBet, level) - prev
			if contrib > 0 {
				pot.Amount += contrib
			}
			if !p.Folded && p.TotalBet >= level {
				pot.Eligible = append(pot.Eligible, p.Seat)
			}
		}
		prev = level
		if pot.Amount == 0 {
			continue
		}
		if n := len(pots); n > 0 && equalSeats(pots[n-1].Eligible, pot.Eligible) {
			pots[n-1].Amount += pot.Amount
			pots[n-1].Threshold = pot.Threshold
			continue
		}
		pots = append(pots, pot)
	}
	return pots
}

func equalSeats(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PotTotal sums all pot amounts.
func PotTotal(pots []Pot) int {
	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

// DistributePots awards each pot to the best eligible hand(s). Ties split
// the pot by integer division with the remainder going to the tied winner
// closest to, and clockwise from, the dealer button. The ordering is over
// seat indices, never map iteration, so distribution is deterministic.
func DistributePots(pots []Pot, rankings map[int]Ranking, button, numSeats int) []PotAward {
	var awards []PotAward
	for potIdx, pot := range pots {
		winners := potWinners(pot, rankings, button, numSeats)
		if len(winners) == 0 {
			continue
		}
		share := pot.Amount / len(winners)
		remainder := pot.Amount - share*len(winners)
		for i, seat := range winners {
			amount := share
			if i == 0 {
				amount += remainder
			}
			if amount > 0 {
				awards = append(awards, PotAward{PotIndex: potIdx, Seat: seat, Amount: amount})
			}
		}
	}
	return awards
}

// potWinners returns the seats holding the pot's best ranking, ordered
// clockwise starting left of the button.
func potWinners(pot Pot, rankings map[int]Ranking, button, numSeats int) []int {
	eligible := make(map[int]bool, len(pot.Eligible))
	for _, seat := range pot.Eligible {
		eligible[seat] = true
	}

	var best Ranking
	var winners []int
	for offset := 1; offset <= numSeats; offset++ {
		seat := (button + offset) % numSeats
		if !eligible[seat] {
			continue
		}
		r, ok := rankings[seat]
		if !ok {
			continue
		}
		switch {
		case len(winners) == 0 || r > best:
			best = r
			winners = winners[:0]
			winners = append(winners, seat)
		case r == best:
			winners = append(winners, seat)
		}
	}
	return winners
}
