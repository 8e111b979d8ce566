package engine

type ActionKind string

const (
	Hit    ActionKind = "hit"
	Stand  ActionKind = "stand"
	Double ActionKind = "double"
)

// Result is the outcome of one completed hand from the player's side.
type Result string

const (
	PlayerBlackjack Result = "playerBlackjack"
	DealerBlackjack Result = "dealerBlackjack"
	PlayerBust      Result = "playerBust"
	DealerBust      Result = "dealerBust"
	PlayerWin       Result = "playerWin"
	DealerWin       Result = "dealerWin"
	Push            Result = "push"
)

// IsWin reports whether the player collects more than the stake back.
func (r Result) IsWin() bool {
	return r == PlayerBlackjack || r == PlayerWin || r == DealerBust
}

type Card struct {
	Rank   int  `json:"rank"`
	Suit   byte `json:"suit"`
	FaceUp bool `json:"face_up"`
} // e.g. "As" => rank 14, suit 's'

// CardKey identifies a card independent of its orientation.
type CardKey struct {
	Rank int
	Suit byte
}

type HandState struct {
	Score       int  `json:"score"`
	IsSoft      bool `json:"is_soft"`
	IsBust      bool `json:"is_bust"`
	IsBlackjack bool `json:"is_blackjack"`
	CardCount   int  `json:"card_count"`
}
