package offers

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// LotOffer is a transparent listing of a fixed quantity of goods at a fixed
// unit price. QtyRemaining is mutated only by Reserve and Release; the offer
// is deactivated, never deleted.
type LotOffer struct {
	ID           [32]byte `json:"id"`
	FarmerID     [32]byte `json:"farmerId"`
	WarehouseID  [32]byte `json:"warehouseId"`
	Token        string   `json:"token"`
	UnitPrice    *big.Int `json:"unitPrice"`
	QtyTotal     uint64   `json:"qtyTotal"`
	QtyRemaining uint64   `json:"qtyRemaining"`
	Active       bool     `json:"active"`
	MetadataURI  string   `json:"metadataUri"`
	CreatedAt    int64    `json:"createdAt"`
}

// Clone returns a deep copy of the offer so callers can safely mutate the copy
// without affecting the stored instance.
func (o *LotOffer) Clone() *LotOffer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(o.UnitPrice)
	} else {
		clone.UnitPrice = big.NewInt(0)
	}
	return &clone
}

// OfferIDFor derives the deterministic identifier for an offer from its farmer
// and a caller-supplied nonce.
func OfferIDFor(farmerID [32]byte, nonce [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("offer"), farmerID[:], nonce[:])
}
