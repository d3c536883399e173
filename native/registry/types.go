package registry

import (
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Bounds carried over from the on-record layout: exceeding one is a
// creation-time error, never a silent truncation.
const (
	MaxNameLen = 100
	MaxURILen  = 200
)

// Warehouse is a distribution point operated by a single authority. Records
// are deactivated, never deleted.
type Warehouse struct {
	ID          [32]byte `json:"id"`
	Authority   [20]byte `json:"authority"`
	Name        string   `json:"name"`
	MetadataURI string   `json:"metadataUri"`
	Active      bool     `json:"active"`
	CreatedAt   int64    `json:"createdAt"`
}

// Clone returns a copy of the warehouse record.
func (w *Warehouse) Clone() *Warehouse {
	if w == nil {
		return nil
	}
	clone := *w
	return &clone
}

// Farmer links a producer to exactly one warehouse.
type Farmer struct {
	ID          [32]byte `json:"id"`
	Owner       [20]byte `json:"owner"`
	WarehouseID [32]byte `json:"warehouseId"`
	Name        string   `json:"name"`
	MetadataURI string   `json:"metadataUri"`
	CreatedAt   int64    `json:"createdAt"`
}

func (f *Farmer) Clone() *Farmer {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

// Customer is a buyer identity. No physical address is ever stored on it; the
// address exchange happens off-ledger after confirmation.
type Customer struct {
	ID          [32]byte `json:"id"`
	Owner       [20]byte `json:"owner"`
	Name        string   `json:"name"`
	MetadataURI string   `json:"metadataUri"`
	CreatedAt   int64    `json:"createdAt"`
}

func (c *Customer) Clone() *Customer {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WarehouseCustomer is the privacy-preserving confirmation record asserting a
// customer is known to a warehouse. Revocation clears the flag but keeps the
// record.
type WarehouseCustomer struct {
	WarehouseID [32]byte `json:"warehouseId"`
	CustomerID  [32]byte `json:"customerId"`
	Confirmed   bool     `json:"confirmed"`
	ConfirmedAt int64    `json:"confirmedAt"`
}

func (wc *WarehouseCustomer) Clone() *WarehouseCustomer {
	if wc == nil {
		return nil
	}
	clone := *wc
	return &clone
}

// WarehouseIDFor derives the deterministic identifier for a warehouse
// authority.
func WarehouseIDFor(authority [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("warehouse"), authority[:])
}

// FarmerIDFor derives the deterministic identifier for a farmer owner.
func FarmerIDFor(owner [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("farmer"), owner[:])
}

// CustomerIDFor derives the deterministic identifier for a customer owner.
func CustomerIDFor(owner [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("customer"), owner[:])
}

func validateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrNameRequired
	}
	if len(trimmed) > MaxNameLen {
		return "", ErrNameTooLong
	}
	return trimmed, nil
}

func validateURI(uri string) (string, error) {
	trimmed := strings.TrimSpace(uri)
	if len(trimmed) > MaxURILen {
		return "", ErrURITooLong
	}
	return trimmed, nil
}
