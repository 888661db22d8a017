package types

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/quantumfuse-labs/quantumfuse/amount"
)

// Account is one entry of the ledger's balance table. Accounts are created
// on first credit and never physically destroyed.
type Account struct {
	Address     string                   `cbor:"1,keyasint"`
	Balance     amount.Amount            `cbor:"2,keyasint"`
	Staked      amount.Amount            `cbor:"3,keyasint"`
	Nonce       uint64                   `cbor:"4,keyasint"`
	DelegatedTo map[string]amount.Amount `cbor:"5,keyasint,omitempty"`
}

// Spendable is the balance not reserved for staking.
func (a *Account) Spendable() amount.Amount {
	return a.Balance - a.Staked
}

func (a *Account) Marshal() ([]byte, error) {
	return cbor.Marshal(a)
}

func (a *Account) Unmarshal(data []byte) error {
	return cbor.Unmarshal(data, a)
}
