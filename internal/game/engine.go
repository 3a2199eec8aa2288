package game

import (
	"fmt"
	"math/rand/v2"
)

// Card is a playing card in a standard 52-card deck.
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// Deal holds the initial hands for one match.
type Deal struct {
	Hands map[int64][]Card
}

// Engine is the stateless rule calculator the coordination core hands a
// room to once the match becomes active. Turn resolution and scoring live
// behind this interface and are not part of the lobby subsystem.
type Engine interface {
	// Deal produces the opening hands for the given players. Hand size is
	// one card per round.
	Deal(playerIDs []int64, rounds int) (*Deal, error)
}

var (
	ranks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
	suits = []string{"clubs", "diamonds", "hearts", "spades"}
)

// StandardEngine deals from a shuffled standard deck, round-robin.
type StandardEngine struct{}

// NewStandardEngine returns the default deck-dealing engine.
func NewStandardEngine() *StandardEngine {
	return &StandardEngine{}
}

// Deal shuffles a fresh deck and deals rounds cards to each player.
func (e *StandardEngine) Deal(playerIDs []int64, rounds int) (*Deal, error) {
	if len(playerIDs) == 0 {
		return nil, fmt.Errorf("no players to deal to")
	}
	if rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", rounds)
	}

	deck := make([]Card, 0, len(ranks)*len(suits))
	for _, s := range suits {
		for _, r := range ranks {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	if need := len(playerIDs) * rounds; need > len(deck) {
		return nil, fmt.Errorf("deck too small: need %d cards for %d players", need, len(playerIDs))
	}

	rand.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	deal := &Deal{Hands: make(map[int64][]Card, len(playerIDs))}
	for i := 0; i < rounds; i++ {
		for _, id := range playerIDs {
			deal.Hands[id] = append(deal.Hands[id], deck[0])
			deck = deck[1:]
		}
	}
	return deal, nil
}
