package state

import (
	"encoding/hex"

	"agroledger/core/types"
	"agroledger/native/escrow"
	"agroledger/native/offers"
	"agroledger/native/orders"
	"agroledger/native/params"
	"agroledger/native/registry"
)

const configKey = "params/config"

func warehouseKey(id [32]byte) string { return "warehouse/" + hex.EncodeToString(id[:]) }
func farmerKey(id [32]byte) string    { return "farmer/" + hex.EncodeToString(id[:]) }
func customerKey(id [32]byte) string  { return "customer/" + hex.EncodeToString(id[:]) }
func offerKey(id [32]byte) string     { return "offer/" + hex.EncodeToString(id[:]) }
func orderKey(id [32]byte) string     { return "order/" + hex.EncodeToString(id[:]) }
func vaultKey(id [32]byte) string     { return "vault/" + hex.EncodeToString(id[:]) }
func accountKey(addr [20]byte) string { return "account/" + hex.EncodeToString(addr[:]) }

func warehouseCustomerKey(warehouseID, customerID [32]byte) string {
	return "wcustomer/" + hex.EncodeToString(warehouseID[:]) + "/" + hex.EncodeToString(customerID[:])
}

// ConfigGet loads the program config singleton.
func (t *Txn) ConfigGet() (*params.ProgramConfig, bool, error) {
	cfg := new(params.ProgramConfig)
	ok, err := t.getJSON(configKey, cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

// ConfigPut stores the program config singleton.
func (t *Txn) ConfigPut(cfg *params.ProgramConfig) error {
	return t.putJSON(configKey, cfg)
}

func (t *Txn) WarehouseGet(id [32]byte) (*registry.Warehouse, bool, error) {
	warehouse := new(registry.Warehouse)
	ok, err := t.getJSON(warehouseKey(id), warehouse)
	if err != nil || !ok {
		return nil, false, err
	}
	return warehouse, true, nil
}

func (t *Txn) WarehousePut(w *registry.Warehouse) error {
	return t.putJSON(warehouseKey(w.ID), w)
}

func (t *Txn) FarmerGet(id [32]byte) (*registry.Farmer, bool, error) {
	farmer := new(registry.Farmer)
	ok, err := t.getJSON(farmerKey(id), farmer)
	if err != nil || !ok {
		return nil, false, err
	}
	return farmer, true, nil
}

func (t *Txn) FarmerPut(f *registry.Farmer) error {
	return t.putJSON(farmerKey(f.ID), f)
}

func (t *Txn) CustomerGet(id [32]byte) (*registry.Customer, bool, error) {
	customer := new(registry.Customer)
	ok, err := t.getJSON(customerKey(id), customer)
	if err != nil || !ok {
		return nil, false, err
	}
	return customer, true, nil
}

func (t *Txn) CustomerPut(c *registry.Customer) error {
	return t.putJSON(customerKey(c.ID), c)
}

func (t *Txn) WarehouseCustomerGet(warehouseID, customerID [32]byte) (*registry.WarehouseCustomer, bool, error) {
	record := new(registry.WarehouseCustomer)
	ok, err := t.getJSON(warehouseCustomerKey(warehouseID, customerID), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

func (t *Txn) WarehouseCustomerPut(wc *registry.WarehouseCustomer) error {
	return t.putJSON(warehouseCustomerKey(wc.WarehouseID, wc.CustomerID), wc)
}

func (t *Txn) OfferGet(id [32]byte) (*offers.LotOffer, bool, error) {
	offer := new(offers.LotOffer)
	ok, err := t.getJSON(offerKey(id), offer)
	if err != nil || !ok {
		return nil, false, err
	}
	return offer, true, nil
}

func (t *Txn) OfferPut(o *offers.LotOffer) error {
	return t.putJSON(offerKey(o.ID), o)
}

func (t *Txn) OrderGet(id [32]byte) (*orders.Order, bool, error) {
	order := new(orders.Order)
	ok, err := t.getJSON(orderKey(id), order)
	if err != nil || !ok {
		return nil, false, err
	}
	return order, true, nil
}

func (t *Txn) OrderPut(o *orders.Order) error {
	return t.putJSON(orderKey(o.ID), o)
}

func (t *Txn) VaultGet(orderID [32]byte) (*escrow.Vault, bool, error) {
	vault := new(escrow.Vault)
	ok, err := t.getJSON(vaultKey(orderID), vault)
	if err != nil || !ok {
		return nil, false, err
	}
	return vault, true, nil
}

func (t *Txn) VaultPut(v *escrow.Vault) error {
	return t.putJSON(vaultKey(v.OrderID), v)
}

// AccountGet loads the account for addr; a missing record reads as an empty
// account so callers never see nil.
func (t *Txn) AccountGet(addr [20]byte) (*types.Account, error) {
	account := types.NewAccount()
	if _, err := t.getJSON(accountKey(addr), account); err != nil {
		return nil, err
	}
	return account, nil
}

func (t *Txn) AccountPut(addr [20]byte, account *types.Account) error {
	return t.putJSON(accountKey(addr), account)
}
