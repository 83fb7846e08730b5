package ledger

import (
	"errors"
	"math/big"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the account
	// balance. Transfers never go partially through.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrNegativeAmount is returned for debit/credit attempts with a
	// negative amount.
	ErrNegativeAmount = errors.New("ledger: negative amount")
)

// Account holds the spendable balance for one party. Balances are integer
// base units and never become negative.
type Account struct {
	Balance *big.Int
}

// Ensure returns a usable account with a non-nil balance, allocating a zero
// account when acc is nil.
func Ensure(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}

// Credit adds amount to the account balance.
func (a *Account) Credit(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	acc := Ensure(a)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return nil
}

// Debit removes amount from the account balance, failing without mutation
// when the balance does not cover it.
func (a *Account) Debit(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	acc := Ensure(a)
	if acc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	acc.Balance = new(big.Int).Sub(acc.Balance, amount)
	return nil
}
