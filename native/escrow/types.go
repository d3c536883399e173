package escrow

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Vault is the program-held balance scoped to one order. It is credited by
// Deposit and debited to zero by exactly one of Settle or Refund.
type Vault struct {
	OrderID [32]byte `json:"orderId"`
	Token   string   `json:"token"`
	Amount  *big.Int `json:"amount"`
}

// Clone returns a deep copy of the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	if v.Amount != nil {
		clone.Amount = new(big.Int).Set(v.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Balance returns the vault amount, treating nil as zero.
func (v *Vault) Balance() *big.Int {
	if v == nil || v.Amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v.Amount)
}

// VaultAddress derives the program-held account address funds sit in while
// escrowed, one per token.
func VaultAddress(token string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("vault:" + token))
	var addr [20]byte
	copy(addr[:], hash[:20])
	return addr
}
