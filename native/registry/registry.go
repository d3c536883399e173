package registry

import (
	"time"

	"agroledger/native/params"
)

// State is the slice of the transactional store the registry needs.
type State interface {
	params.State
	WarehouseGet(id [32]byte) (*Warehouse, bool, error)
	WarehousePut(*Warehouse) error
	FarmerGet(id [32]byte) (*Farmer, bool, error)
	FarmerPut(*Farmer) error
	CustomerGet(id [32]byte) (*Customer, bool, error)
	CustomerPut(*Customer) error
	WarehouseCustomerGet(warehouseID, customerID [32]byte) (*WarehouseCustomer, bool, error)
	WarehouseCustomerPut(*WarehouseCustomer) error
}

// Engine implements identity registration and the warehouse-customer
// confirmation relationship.
type Engine struct {
	nowFn func() int64
}

// NewEngine constructs a registry engine using wall-clock time.
func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// RegisterWarehouse creates a warehouse identity keyed by its authority.
func (e *Engine) RegisterWarehouse(st State, authority [20]byte, name, metadataURI string) (*Warehouse, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	validName, err := validateName(name)
	if err != nil {
		return nil, err
	}
	validURI, err := validateURI(metadataURI)
	if err != nil {
		return nil, err
	}
	id := WarehouseIDFor(authority)
	if _, ok, err := st.WarehouseGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrWarehouseExists
	}
	warehouse := &Warehouse{
		ID:          id,
		Authority:   authority,
		Name:        validName,
		MetadataURI: validURI,
		Active:      true,
		CreatedAt:   e.now(),
	}
	if err := st.WarehousePut(warehouse); err != nil {
		return nil, err
	}
	st.Emit(NewWarehouseRegisteredEvent(warehouse))
	return warehouse.Clone(), nil
}

// RegisterFarmer creates a farmer identity linked to an active warehouse.
func (e *Engine) RegisterFarmer(st State, owner [20]byte, warehouseID [32]byte, name, metadataURI string) (*Farmer, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	validName, err := validateName(name)
	if err != nil {
		return nil, err
	}
	validURI, err := validateURI(metadataURI)
	if err != nil {
		return nil, err
	}
	warehouse, ok, err := st.WarehouseGet(warehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWarehouseNotFound
	}
	if !warehouse.Active {
		return nil, ErrWarehouseInactive
	}
	id := FarmerIDFor(owner)
	if _, ok, err := st.FarmerGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrFarmerExists
	}
	farmer := &Farmer{
		ID:          id,
		Owner:       owner,
		WarehouseID: warehouseID,
		Name:        validName,
		MetadataURI: validURI,
		CreatedAt:   e.now(),
	}
	if err := st.FarmerPut(farmer); err != nil {
		return nil, err
	}
	st.Emit(NewFarmerRegisteredEvent(farmer))
	return farmer.Clone(), nil
}

// RegisterCustomer creates a customer identity keyed by its owner.
func (e *Engine) RegisterCustomer(st State, owner [20]byte, name, metadataURI string) (*Customer, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	validName, err := validateName(name)
	if err != nil {
		return nil, err
	}
	validURI, err := validateURI(metadataURI)
	if err != nil {
		return nil, err
	}
	id := CustomerIDFor(owner)
	if _, ok, err := st.CustomerGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrCustomerExists
	}
	customer := &Customer{
		ID:          id,
		Owner:       owner,
		Name:        validName,
		MetadataURI: validURI,
		CreatedAt:   e.now(),
	}
	if err := st.CustomerPut(customer); err != nil {
		return nil, err
	}
	st.Emit(NewCustomerRegisteredEvent(customer))
	return customer.Clone(), nil
}

// ConfirmCustomer creates or re-activates the warehouse-customer confirmation.
// Only the warehouse authority may confirm. No physical address is accepted or
// stored; the exchange is delegated to an off-ledger collaborator listening
// for the emitted event.
func (e *Engine) ConfirmCustomer(st State, caller [20]byte, warehouseID, customerID [32]byte) (*WarehouseCustomer, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	warehouse, ok, err := st.WarehouseGet(warehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWarehouseNotFound
	}
	if warehouse.Authority != caller {
		return nil, ErrUnauthorized
	}
	if _, ok, err := st.CustomerGet(customerID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrCustomerNotFound
	}
	record, ok, err := st.WarehouseCustomerGet(warehouseID, customerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		record = &WarehouseCustomer{WarehouseID: warehouseID, CustomerID: customerID}
	}
	record.Confirmed = true
	record.ConfirmedAt = e.now()
	if err := st.WarehouseCustomerPut(record); err != nil {
		return nil, err
	}
	st.Emit(NewCustomerConfirmedEvent(record))
	return record.Clone(), nil
}

// RevokeCustomer clears the confirmation flag without deleting history.
func (e *Engine) RevokeCustomer(st State, caller [20]byte, warehouseID, customerID [32]byte) (*WarehouseCustomer, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	warehouse, ok, err := st.WarehouseGet(warehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWarehouseNotFound
	}
	if warehouse.Authority != caller {
		return nil, ErrUnauthorized
	}
	record, ok, err := st.WarehouseCustomerGet(warehouseID, customerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfirmed
	}
	record.Confirmed = false
	if err := st.WarehouseCustomerPut(record); err != nil {
		return nil, err
	}
	st.Emit(NewCustomerRevokedEvent(record))
	return record.Clone(), nil
}

// DeactivateWarehouse marks a warehouse inactive. The admin or the warehouse
// authority may deactivate; the record is never removed.
func (e *Engine) DeactivateWarehouse(st State, caller [20]byte, warehouseID [32]byte) (*Warehouse, error) {
	if err := params.Guard(st); err != nil {
		return nil, err
	}
	cfg, err := params.Config(st)
	if err != nil {
		return nil, err
	}
	warehouse, ok, err := st.WarehouseGet(warehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWarehouseNotFound
	}
	if caller != warehouse.Authority && caller != cfg.Admin {
		return nil, ErrUnauthorized
	}
	if !warehouse.Active {
		return warehouse.Clone(), nil
	}
	warehouse.Active = false
	if err := st.WarehousePut(warehouse); err != nil {
		return nil, err
	}
	st.Emit(NewWarehouseDeactivatedEvent(warehouse))
	return warehouse.Clone(), nil
}

// RequireConfirmed loads the confirmation record and fails unless it exists
// and is currently confirmed.
func RequireConfirmed(st State, warehouseID, customerID [32]byte) error {
	record, ok, err := st.WarehouseCustomerGet(warehouseID, customerID)
	if err != nil {
		return err
	}
	if !ok || !record.Confirmed {
		return ErrNotConfirmed
	}
	return nil
}
