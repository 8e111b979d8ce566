package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const DeckSize = 52

// Ace is the highest rank; face cards are 11..13.
const (
	Jack  = 11
	Queen = 12
	King  = 13
	Ace   = 14
)

var ErrBadCard = errors.New("bad card")

var suits = [4]byte{'h', 'd', 'c', 's'}

// Shoe is the undealt card sequence, consumed from the front.
type Shoe []Card

// NewRand returns a seeded source. seed 0 picks a time-based seed.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// NewDeck returns the 52 cards in a fixed order, all face up.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range suits {
		for rnk := 2; rnk <= Ace; rnk++ {
			deck = append(deck, Card{Rank: rnk, Suit: s, FaceUp: true})
		}
	}
	return deck
}

// Shuffle permutes cards in place (Fisher-Yates).
func Shuffle(r *rand.Rand, cards []Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

func NewShoe(r *rand.Rand) Shoe {
	deck := NewDeck()
	Shuffle(r, deck)
	return Shoe(deck)
}

// Draw takes the front card with the requested orientation. An empty shoe is
// replaced by a freshly shuffled one before drawing.
func (s Shoe) Draw(r *rand.Rand, faceUp bool) (Card, Shoe) {
	if len(s) == 0 {
		s = NewShoe(r)
	}
	c := s[0].WithFaceUp(faceUp)
	return c, s[1:]
}

func (s Shoe) Len() int { return len(s) }

func (c Card) Key() CardKey { return CardKey{Rank: c.Rank, Suit: c.Suit} }

func (c Card) IsAce() bool { return c.Rank == Ace }

func (c Card) WithFaceUp(up bool) Card {
	c.FaceUp = up
	return c
}

// Value is the blackjack point value with aces counted high.
func (c Card) Value() int {
	switch {
	case c.Rank == Ace:
		return 11
	case c.Rank >= 10:
		return 10
	default:
		return c.Rank
	}
}

func (c Card) String() string {
	ranks := "  23456789TJQKA"
	if c.Rank < 2 || c.Rank > Ace {
		return "?" + string(c.Suit)
	}
	return fmt.Sprintf("%c%c", ranks[c.Rank], c.Suit)
}

// ParseCard reads "As", "Td", "10h" or "qc". Cards come back face up.
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Card{}, fmt.Errorf("%w: %q", ErrBadCard, s)
	}
	suit := s[len(s)-1]
	switch suit {
	case 'c', 'd', 'h', 's':
	case 'C', 'D', 'H', 'S':
		suit += 'a' - 'A'
	default:
		return Card{}, fmt.Errorf("%w: suit in %q", ErrBadCard, s)
	}
	var rank int
	switch strings.ToUpper(s[:len(s)-1]) {
	case "A":
		rank = Ace
	case "K":
		rank = King
	case "Q":
		rank = Queen
	case "J":
		rank = Jack
	case "T", "10":
		rank = 10
	case "2", "3", "4", "5", "6", "7", "8", "9":
		rank = int(s[0] - '0')
	default:
		return Card{}, fmt.Errorf("%w: rank in %q", ErrBadCard, s)
	}
	return Card{Rank: rank, Suit: suit, FaceUp: true}, nil
}

func ParseCards(ss []string) ([]Card, error) {
	out := make([]Card, 0, len(ss))
	for _, s := range ss {
		c, err := ParseCard(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func CardsToStr(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		if !c.FaceUp {
			out[i] = "??"
			continue
		}
		out[i] = c.String()
	}
	return out
}

// Union merges card lists, keeping the first occurrence of each (rank, suit).
func Union(lists ...[]Card) []Card {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	seen := make(map[CardKey]struct{}, n)
	out := make([]Card, 0, n)
	for _, l := range lists {
		for _, c := range l {
			if _, ok := seen[c.Key()]; ok {
				continue
			}
			seen[c.Key()] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// FaceUpCards returns only the visible cards of a hand.
func FaceUpCards(cards []Card) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if c.FaceUp {
			out = append(out, c)
		}
	}
	return out
}
