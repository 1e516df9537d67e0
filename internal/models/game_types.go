package models

type GameType string

const (
	GameTypeDice     GameType = "dice"
	GameTypeRoulette GameType = "roulette"
	GameTypeBingo    GameType = "bingo"
	GameTypeRaffle   GameType = "raffle"
	GameTypeBet      GameType = "bet"
)

func (g GameType) Valid() bool {
	switch g {
	case GameTypeDice, GameTypeRoulette, GameTypeBingo, GameTypeRaffle, GameTypeBet:
		return true
	}
	return false
}

type RoundState string

const (
	RoundOpen      RoundState = "open"
	RoundFinalized RoundState = "finalized"
)

// DiceMode selects how many dice a dice bet rolls per attempt.
type DiceMode string

const (
	DiceSingle DiceMode = "single"
	DiceDouble DiceMode = "double"
	DiceTriple DiceMode = "triple"
)

type BingoMode string

const (
	BingoMachine BingoMode = "machine"
	BingoUser    BingoMode = "user"
)

func (m DiceMode) Valid() bool {
	return m == DiceSingle || m == DiceDouble || m == DiceTriple
}

func (m BingoMode) Valid() bool {
	return m == BingoMachine || m == BingoUser
}
