package registry

import (
	"errors"
	"strings"
	"testing"

	"agroledger/core/types"
	"agroledger/native/params"
)

type linkKey struct {
	warehouse [32]byte
	customer  [32]byte
}

type mockState struct {
	cfg        *params.ProgramConfig
	warehouses map[[32]byte]*Warehouse
	farmers    map[[32]byte]*Farmer
	customers  map[[32]byte]*Customer
	links      map[linkKey]*WarehouseCustomer
	events     []*types.Event
}

func newMockState() *mockState {
	return &mockState{
		warehouses: make(map[[32]byte]*Warehouse),
		farmers:    make(map[[32]byte]*Farmer),
		customers:  make(map[[32]byte]*Customer),
		links:      make(map[linkKey]*WarehouseCustomer),
	}
}

func (m *mockState) ConfigGet() (*params.ProgramConfig, bool, error) {
	if m.cfg == nil {
		return nil, false, nil
	}
	return m.cfg.Clone(), true, nil
}

func (m *mockState) ConfigPut(cfg *params.ProgramConfig) error {
	m.cfg = cfg.Clone()
	return nil
}

func (m *mockState) WarehouseGet(id [32]byte) (*Warehouse, bool, error) {
	record, ok := m.warehouses[id]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) WarehousePut(record *Warehouse) error {
	m.warehouses[record.ID] = record.Clone()
	return nil
}

func (m *mockState) FarmerGet(id [32]byte) (*Farmer, bool, error) {
	record, ok := m.farmers[id]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) FarmerPut(record *Farmer) error {
	m.farmers[record.ID] = record.Clone()
	return nil
}

func (m *mockState) CustomerGet(id [32]byte) (*Customer, bool, error) {
	record, ok := m.customers[id]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) CustomerPut(record *Customer) error {
	m.customers[record.ID] = record.Clone()
	return nil
}

func (m *mockState) WarehouseCustomerGet(warehouseID, customerID [32]byte) (*WarehouseCustomer, bool, error) {
	record, ok := m.links[linkKey{warehouseID, customerID}]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) WarehouseCustomerPut(record *WarehouseCustomer) error {
	m.links[linkKey{record.WarehouseID, record.CustomerID}] = record.Clone()
	return nil
}

func (m *mockState) Emit(evt *types.Event) {
	if evt != nil {
		m.events = append(m.events, evt)
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func setup(t *testing.T) (*mockState, *Engine) {
	t.Helper()
	st := newMockState()
	if _, err := params.Initialize(st, newTestAddress(0x01), newTestAddress(0x02), false, []string{"USDC"}); err != nil {
		t.Fatalf("initialize config: %v", err)
	}
	engine := NewEngine()
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return st, engine
}

func TestRegisterWarehouse(t *testing.T) {
	st, engine := setup(t)
	authority := newTestAddress(0x03)

	warehouse, err := engine.RegisterWarehouse(st, authority, "  Central Depot  ", "ipfs://depot")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if warehouse.ID != WarehouseIDFor(authority) {
		t.Fatalf("id not derived from authority")
	}
	if warehouse.Name != "Central Depot" {
		t.Fatalf("name = %q, want trimmed", warehouse.Name)
	}
	if !warehouse.Active {
		t.Fatalf("new warehouse not active")
	}
	if warehouse.CreatedAt != 1_700_000_000 {
		t.Fatalf("createdAt = %d", warehouse.CreatedAt)
	}

	if _, err := engine.RegisterWarehouse(st, authority, "Other Name", ""); !errors.Is(err, ErrWarehouseExists) {
		t.Fatalf("duplicate authority: err = %v", err)
	}
}

func TestRegisterWarehouseValidation(t *testing.T) {
	st, engine := setup(t)

	if _, err := engine.RegisterWarehouse(st, newTestAddress(0x03), "   ", ""); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("blank name: err = %v", err)
	}
	if _, err := engine.RegisterWarehouse(st, newTestAddress(0x03), strings.Repeat("n", MaxNameLen+1), ""); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("long name: err = %v", err)
	}
	if _, err := engine.RegisterWarehouse(st, newTestAddress(0x03), "Depot", strings.Repeat("u", MaxURILen+1)); !errors.Is(err, ErrURITooLong) {
		t.Fatalf("long uri: err = %v", err)
	}
}

func TestRegisterFarmerRequiresActiveWarehouse(t *testing.T) {
	st, engine := setup(t)
	authority := newTestAddress(0x03)
	owner := newTestAddress(0x04)

	var missing [32]byte
	missing[0] = 0xFF
	if _, err := engine.RegisterFarmer(st, owner, missing, "Hilltop Farm", ""); !errors.Is(err, ErrWarehouseNotFound) {
		t.Fatalf("missing warehouse: err = %v", err)
	}

	warehouse, err := engine.RegisterWarehouse(st, authority, "Central Depot", "")
	if err != nil {
		t.Fatalf("register warehouse: %v", err)
	}
	farmer, err := engine.RegisterFarmer(st, owner, warehouse.ID, "Hilltop Farm", "")
	if err != nil {
		t.Fatalf("register farmer: %v", err)
	}
	if farmer.WarehouseID != warehouse.ID {
		t.Fatalf("farmer not linked to warehouse")
	}
	if _, err := engine.RegisterFarmer(st, owner, warehouse.ID, "Hilltop Farm", ""); !errors.Is(err, ErrFarmerExists) {
		t.Fatalf("duplicate owner: err = %v", err)
	}

	if _, err := engine.DeactivateWarehouse(st, authority, warehouse.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := engine.RegisterFarmer(st, newTestAddress(0x05), warehouse.ID, "Valley Farm", ""); !errors.Is(err, ErrWarehouseInactive) {
		t.Fatalf("inactive warehouse: err = %v", err)
	}
}

func TestConfirmRevokeLifecycle(t *testing.T) {
	st, engine := setup(t)
	authority := newTestAddress(0x03)

	warehouse, err := engine.RegisterWarehouse(st, authority, "Central Depot", "")
	if err != nil {
		t.Fatalf("register warehouse: %v", err)
	}
	customer, err := engine.RegisterCustomer(st, newTestAddress(0x05), "Corner Grocer", "")
	if err != nil {
		t.Fatalf("register customer: %v", err)
	}

	if err := RequireConfirmed(st, warehouse.ID, customer.ID); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("unconfirmed: err = %v", err)
	}

	if _, err := engine.ConfirmCustomer(st, newTestAddress(0x09), warehouse.ID, customer.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger confirm: err = %v", err)
	}
	record, err := engine.ConfirmCustomer(st, authority, warehouse.ID, customer.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !record.Confirmed || record.ConfirmedAt != 1_700_000_000 {
		t.Fatalf("record = %+v", record)
	}
	if err := RequireConfirmed(st, warehouse.ID, customer.ID); err != nil {
		t.Fatalf("confirmed: %v", err)
	}

	if _, err := engine.RevokeCustomer(st, newTestAddress(0x09), warehouse.ID, customer.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger revoke: err = %v", err)
	}
	revoked, err := engine.RevokeCustomer(st, authority, warehouse.ID, customer.ID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Confirmed {
		t.Fatalf("still confirmed after revoke")
	}
	if err := RequireConfirmed(st, warehouse.ID, customer.ID); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("revoked: err = %v", err)
	}

	// Re-confirming flips the flag back on the existing record.
	if _, err := engine.ConfirmCustomer(st, authority, warehouse.ID, customer.ID); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if err := RequireConfirmed(st, warehouse.ID, customer.ID); err != nil {
		t.Fatalf("re-confirmed: %v", err)
	}
}

func TestConfirmRequiresExistingCustomer(t *testing.T) {
	st, engine := setup(t)
	authority := newTestAddress(0x03)
	warehouse, err := engine.RegisterWarehouse(st, authority, "Central Depot", "")
	if err != nil {
		t.Fatalf("register warehouse: %v", err)
	}
	var missing [32]byte
	missing[0] = 0xEE
	if _, err := engine.ConfirmCustomer(st, authority, warehouse.ID, missing); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("missing customer: err = %v", err)
	}
	if _, err := engine.RevokeCustomer(st, authority, warehouse.ID, missing); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("revoke without record: err = %v", err)
	}
}

func TestDeactivateWarehouseAuthorization(t *testing.T) {
	st, engine := setup(t)
	authority := newTestAddress(0x03)
	admin := newTestAddress(0x01)

	warehouse, err := engine.RegisterWarehouse(st, authority, "Central Depot", "")
	if err != nil {
		t.Fatalf("register warehouse: %v", err)
	}

	if _, err := engine.DeactivateWarehouse(st, newTestAddress(0x09), warehouse.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger deactivate: err = %v", err)
	}

	deactivated, err := engine.DeactivateWarehouse(st, admin, warehouse.ID)
	if err != nil {
		t.Fatalf("admin deactivate: %v", err)
	}
	if deactivated.Active {
		t.Fatalf("still active")
	}

	// Idempotent for the authority as well.
	again, err := engine.DeactivateWarehouse(st, authority, warehouse.ID)
	if err != nil {
		t.Fatalf("repeat deactivate: %v", err)
	}
	if again.Active {
		t.Fatalf("reactivated")
	}
}

func TestMutationsRejectedWhilePaused(t *testing.T) {
	st, engine := setup(t)
	paused := true
	if _, err := params.Update(st, newTestAddress(0x01), params.Mutation{Paused: &paused}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := engine.RegisterWarehouse(st, newTestAddress(0x03), "Central Depot", ""); !errors.Is(err, params.ErrProgramPaused) {
		t.Fatalf("register while paused: err = %v", err)
	}
}
