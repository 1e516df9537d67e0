package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func GenerateRoundID() string {
	return uuid.New().String()
}

func GenerateBetID() string {
	return uuid.New().String()
}

func GenerateEntryID() string {
	return fmt.Sprintf("le_%s", uuid.New().String())
}

// RoundMoney rounds an amount to cents before it touches a balance.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func FormatTicket(n int) string {
	return fmt.Sprintf("%02d", n)
}

func FormatCurrency(d decimal.Decimal) string {
	return d.StringFixed(2)
}
