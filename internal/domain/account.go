package domain

import (
	"time"

	"github.com/google/uuid"
)

type Currency string

const DefaultCurrency Currency = "PHP"

func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Account balances are minor units of the deployment currency and never go
// below zero.
type Account struct {
	ID          uuid.UUID
	Handle      string
	DisplayName string
	Balance     int64
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
