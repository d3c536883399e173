package server

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"agroledger/native/escrow"
	"agroledger/native/offers"
	"agroledger/native/orders"
	"agroledger/native/params"
	"agroledger/native/registry"
)

var (
	errBadID     = errors.New("identifier must be 32 hex-encoded bytes")
	errBadAmount = errors.New("amount must be a positive decimal string")
)

func parseID(s string) ([32]byte, error) {
	var id [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != 32 {
		return id, errBadID
	}
	copy(id[:], raw)
	return id, nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, errBadAmount
	}
	return amount, nil
}

func parseMode(s string) (orders.FulfillmentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pickup":
		return orders.ModePickup, nil
	case "delivery":
		return orders.ModeDelivery, nil
	}
	return 0, orders.ErrInvalidMode
}

// parseNonce accepts an explicit 32-byte nonce or mints a random one so plain
// clients still get unique order identifiers.
func parseNonce(s string) ([32]byte, error) {
	if strings.TrimSpace(s) == "" {
		var nonce [32]byte
		hi, lo := uuid.New(), uuid.New()
		copy(nonce[:16], hi[:])
		copy(nonce[16:], lo[:])
		return nonce, nil
	}
	return parseID(s)
}

func hexID(id [32]byte) string  { return hex.EncodeToString(id[:]) }
func hexAddr(a [20]byte) string { return "0x" + hex.EncodeToString(a[:]) }

func amountStr(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return a.String()
}

type configView struct {
	Admin           string   `json:"admin"`
	LogisticsWallet string   `json:"logisticsWallet"`
	Paused          bool     `json:"paused"`
	AllowedTokens   []string `json:"allowedTokens"`
}

func newConfigView(cfg *params.ProgramConfig) configView {
	return configView{
		Admin:           hexAddr(cfg.Admin),
		LogisticsWallet: hexAddr(cfg.LogisticsWallet),
		Paused:          cfg.Paused,
		AllowedTokens:   cfg.AllowedTokens,
	}
}

type warehouseView struct {
	ID          string `json:"id"`
	Authority   string `json:"authority"`
	Name        string `json:"name"`
	MetadataURI string `json:"metadataUri"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"createdAt"`
}

func newWarehouseView(w *registry.Warehouse) warehouseView {
	return warehouseView{
		ID:          hexID(w.ID),
		Authority:   hexAddr(w.Authority),
		Name:        w.Name,
		MetadataURI: w.MetadataURI,
		Active:      w.Active,
		CreatedAt:   w.CreatedAt,
	}
}

type farmerView struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	WarehouseID string `json:"warehouseId"`
	Name        string `json:"name"`
	MetadataURI string `json:"metadataUri"`
	CreatedAt   int64  `json:"createdAt"`
}

func newFarmerView(f *registry.Farmer) farmerView {
	return farmerView{
		ID:          hexID(f.ID),
		Owner:       hexAddr(f.Owner),
		WarehouseID: hexID(f.WarehouseID),
		Name:        f.Name,
		MetadataURI: f.MetadataURI,
		CreatedAt:   f.CreatedAt,
	}
}

type customerView struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	MetadataURI string `json:"metadataUri"`
	CreatedAt   int64  `json:"createdAt"`
}

func newCustomerView(c *registry.Customer) customerView {
	return customerView{
		ID:          hexID(c.ID),
		Owner:       hexAddr(c.Owner),
		Name:        c.Name,
		MetadataURI: c.MetadataURI,
		CreatedAt:   c.CreatedAt,
	}
}

type confirmationView struct {
	WarehouseID string `json:"warehouseId"`
	CustomerID  string `json:"customerId"`
	Confirmed   bool   `json:"confirmed"`
	ConfirmedAt int64  `json:"confirmedAt"`
}

func newConfirmationView(wc *registry.WarehouseCustomer) confirmationView {
	return confirmationView{
		WarehouseID: hexID(wc.WarehouseID),
		CustomerID:  hexID(wc.CustomerID),
		Confirmed:   wc.Confirmed,
		ConfirmedAt: wc.ConfirmedAt,
	}
}

type offerView struct {
	ID           string `json:"id"`
	FarmerID     string `json:"farmerId"`
	WarehouseID  string `json:"warehouseId"`
	Token        string `json:"token"`
	UnitPrice    string `json:"unitPrice"`
	QtyTotal     uint64 `json:"qtyTotal"`
	QtyRemaining uint64 `json:"qtyRemaining"`
	Active       bool   `json:"active"`
	MetadataURI  string `json:"metadataUri"`
	CreatedAt    int64  `json:"createdAt"`
}

func newOfferView(o *offers.LotOffer) offerView {
	return offerView{
		ID:           hexID(o.ID),
		FarmerID:     hexID(o.FarmerID),
		WarehouseID:  hexID(o.WarehouseID),
		Token:        o.Token,
		UnitPrice:    amountStr(o.UnitPrice),
		QtyTotal:     o.QtyTotal,
		QtyRemaining: o.QtyRemaining,
		Active:       o.Active,
		MetadataURI:  o.MetadataURI,
		CreatedAt:    o.CreatedAt,
	}
}

type orderView struct {
	ID              string `json:"id"`
	BuyerCustomerID string `json:"buyerCustomerId"`
	OfferID         string `json:"offerId"`
	FarmerID        string `json:"farmerId"`
	WarehouseID     string `json:"warehouseId"`
	Quantity        uint64 `json:"quantity"`
	Token           string `json:"token"`
	UnitPrice       string `json:"unitPrice"`
	GoodsAmount     string `json:"goodsAmount"`
	EscrowAmount    string `json:"escrowAmount"`
	DeliveryQuote   string `json:"deliveryQuote,omitempty"`
	Mode            string `json:"mode"`
	State           string `json:"state"`
	CreatedAt       int64  `json:"createdAt"`
	ExpiresAt       int64  `json:"expiresAt"`
}

func newOrderView(o *orders.Order) orderView {
	view := orderView{
		ID:              hexID(o.ID),
		BuyerCustomerID: hexID(o.BuyerCustomerID),
		OfferID:         hexID(o.OfferID),
		FarmerID:        hexID(o.FarmerID),
		WarehouseID:     hexID(o.WarehouseID),
		Quantity:        o.Quantity,
		Token:           o.Token,
		UnitPrice:       amountStr(o.UnitPrice),
		GoodsAmount:     amountStr(o.GoodsAmount),
		EscrowAmount:    amountStr(o.EscrowAmount),
		Mode:            o.Mode.String(),
		State:           o.State.String(),
		CreatedAt:       o.CreatedAt,
		ExpiresAt:       o.ExpiresAt,
	}
	if o.DeliveryQuote != nil {
		view.DeliveryQuote = o.DeliveryQuote.String()
	}
	return view
}

type vaultView struct {
	OrderID string `json:"orderId"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

func newVaultView(v *escrow.Vault) vaultView {
	return vaultView{
		OrderID: hexID(v.OrderID),
		Token:   v.Token,
		Amount:  amountStr(v.Amount),
	}
}
