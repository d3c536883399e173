package server

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"agroledger/core/state"
	"agroledger/gateway/auth"
	"agroledger/gateway/middleware"
	"agroledger/gateway/models"
	"agroledger/native/escrow"
	"agroledger/native/offers"
	"agroledger/native/orders"
	"agroledger/native/registry"
	"agroledger/storage"
)

const testSecret = "test-secret"

type testHarness struct {
	t       *testing.T
	handler http.Handler
	outbox  *storage.Outbox

	admin     [20]byte
	authority [20]byte
	farmer    [20]byte
	buyer     [20]byte
	logistics [20]byte
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "gateway.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	// The outbox shares the process with the gorm store, so both must resolve
	// to the same registered sqlite driver.
	outbox, err := storage.NewOutbox(filepath.Join(dir, "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = outbox.Close() })

	store := state.NewStore(storage.NewMemDB())
	store.SetOutbox(outbox)
	ledger := offers.NewLedger()
	custodian := escrow.NewCustodian(escrow.Split{FarmerBps: 8500})
	engine := orders.NewEngine(ledger, custodian, orders.Expiry{
		Pickup:   72 * time.Hour,
		Delivery: 168 * time.Hour,
	})

	srv := New(Options{
		Store:     store,
		DB:        db,
		Verifier:  auth.NewVerifier(testSecret),
		Registry:  registry.NewEngine(),
		Offers:    ledger,
		Custodian: custodian,
		Orders:    engine,
		Limits: map[string]middleware.RateLimit{
			"api": {RequestsPerMinute: 6000, Burst: 1000},
		},
	})

	h := &testHarness{t: t, handler: srv.Handler(), outbox: outbox}
	h.admin = address(0x01)
	h.logistics = address(0x0F)
	h.authority = address(0x03)
	h.farmer = address(0x04)
	h.buyer = address(0x05)
	return h
}

func address(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func hexNonce(fill byte) string {
	var nonce [32]byte
	for i := range nonce {
		nonce[i] = fill
	}
	return hex.EncodeToString(nonce[:])
}

func signToken(t *testing.T, caller [20]byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": hex.EncodeToString(caller[:]),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *testHarness) do(method, path string, caller [20]byte, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+signToken(h.t, caller))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) decode(rec *httptest.ResponseRecorder, v any) {
	h.t.Helper()
	require.NoError(h.t, json.NewDecoder(rec.Body).Decode(v))
}

// seed walks the registration flow up to a funded, confirmed buyer and a live
// offer, returning the offer ID.
func (h *testHarness) seed() string {
	h.t.Helper()

	rec := h.do(http.MethodPost, "/v1/config/init", h.admin, map[string]any{
		"logisticsWallet": "0x" + hex.EncodeToString(h.logistics[:]),
		"allowedTokens":   []string{"USDC"},
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())

	var warehouse struct {
		ID string `json:"id"`
	}
	rec = h.do(http.MethodPost, "/v1/warehouses", h.authority, map[string]any{"name": "Central Depot"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	h.decode(rec, &warehouse)

	var farmer struct {
		ID string `json:"id"`
	}
	rec = h.do(http.MethodPost, "/v1/farmers", h.farmer, map[string]any{
		"warehouseId": warehouse.ID,
		"name":        "Hilltop Farm",
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	h.decode(rec, &farmer)

	var customer struct {
		ID string `json:"id"`
	}
	rec = h.do(http.MethodPost, "/v1/customers", h.buyer, map[string]any{"name": "Corner Grocer"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	h.decode(rec, &customer)

	rec = h.do(http.MethodPost, "/v1/warehouses/"+warehouse.ID+"/customers/"+customer.ID+"/confirm", h.authority, map[string]any{})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/accounts/0x"+hex.EncodeToString(h.buyer[:])+"/credit", h.admin, map[string]any{
		"token":  "USDC",
		"amount": "100",
	})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	var offer struct {
		ID           string `json:"id"`
		QtyRemaining uint64 `json:"qtyRemaining"`
	}
	rec = h.do(http.MethodPost, "/v1/offers", h.farmer, map[string]any{
		"farmerId":  farmer.ID,
		"token":     "USDC",
		"unitPrice": "5",
		"quantity":  10,
		"nonce":     hexNonce(0xA1),
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	h.decode(rec, &offer)
	require.Equal(h.t, uint64(10), offer.QtyRemaining)
	return offer.ID
}

func TestPickupOrderLifecycle(t *testing.T) {
	h := newHarness(t)
	offerID := h.seed()

	var order struct {
		ID           string `json:"id"`
		State        string `json:"state"`
		Mode         string `json:"mode"`
		GoodsAmount  string `json:"goodsAmount"`
		EscrowAmount string `json:"escrowAmount"`
	}
	rec := h.do(http.MethodPost, "/v1/orders", h.buyer, map[string]any{
		"offerId":  offerID,
		"quantity": 2,
		"mode":     "pickup",
		"nonce":    hexNonce(0xB1),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	h.decode(rec, &order)
	assert.Equal(t, "escrowed_pickup", order.State)
	assert.Equal(t, "pickup", order.Mode)
	assert.Equal(t, "10", order.GoodsAmount)
	assert.Equal(t, "10", order.EscrowAmount)

	var vault struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	rec = h.do(http.MethodGet, "/v1/orders/"+order.ID+"/vault", h.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.decode(rec, &vault)
	assert.Equal(t, "USDC", vault.Token)
	assert.Equal(t, "10", vault.Amount)

	rec = h.do(http.MethodPost, "/v1/orders/"+order.ID+"/transit", h.authority, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/orders/"+order.ID+"/fulfill", h.authority, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.decode(rec, &order)
	assert.Equal(t, "fulfilled", order.State)

	// 85/15 split of the 10-unit goods amount; dust would go to the warehouse.
	var farmerAccount struct {
		Balances map[string]string `json:"balances"`
	}
	rec = h.do(http.MethodGet, "/v1/accounts/0x"+hex.EncodeToString(h.farmer[:]), h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.decode(rec, &farmerAccount)
	assert.Equal(t, "8", farmerAccount.Balances["USDC"])

	var authorityAccount struct {
		Balances map[string]string `json:"balances"`
	}
	rec = h.do(http.MethodGet, "/v1/accounts/0x"+hex.EncodeToString(h.authority[:]), h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.decode(rec, &authorityAccount)
	assert.Equal(t, "2", authorityAccount.Balances["USDC"])

	var buyerAccount struct {
		Balances map[string]string `json:"balances"`
	}
	rec = h.do(http.MethodGet, "/v1/accounts/0x"+hex.EncodeToString(h.buyer[:]), h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.decode(rec, &buyerAccount)
	assert.Equal(t, "90", buyerAccount.Balances["USDC"])

	// Fulfillment does not restock the offer.
	var offer struct {
		QtyRemaining uint64 `json:"qtyRemaining"`
	}
	rec = h.do(http.MethodGet, "/v1/offers/"+offerID, h.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.decode(rec, &offer)
	assert.Equal(t, uint64(8), offer.QtyRemaining)

	// Lifecycle events landed in the outbox as part of the same commits.
	entries, err := h.outbox.Pending(0, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestDeliveryOrderQuoteFlow(t *testing.T) {
	h := newHarness(t)
	offerID := h.seed()

	var order struct {
		ID            string `json:"id"`
		State         string `json:"state"`
		DeliveryQuote string `json:"deliveryQuote"`
	}
	rec := h.do(http.MethodPost, "/v1/orders", h.buyer, map[string]any{
		"offerId":  offerID,
		"quantity": 2,
		"mode":     "delivery",
		"nonce":    hexNonce(0xB2),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	h.decode(rec, &order)
	assert.Equal(t, "pending_delivery_quote", order.State)

	rec = h.do(http.MethodPost, "/v1/orders/"+order.ID+"/quote", h.authority, map[string]any{"quote": "3"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.decode(rec, &order)
	assert.Equal(t, "delivery_quoted", order.State)
	assert.Equal(t, "3", order.DeliveryQuote)

	rec = h.do(http.MethodPost, "/v1/orders/"+order.ID+"/accept-quote", h.buyer, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.decode(rec, &order)
	assert.Equal(t, "escrowed_ready", order.State)

	rec = h.do(http.MethodPost, "/v1/orders/"+order.ID+"/transit", h.authority, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodPost, "/v1/orders/"+order.ID+"/fulfill", h.buyer, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Delivery fee lands on the logistics wallet.
	var logisticsAccount struct {
		Balances map[string]string `json:"balances"`
	}
	rec = h.do(http.MethodGet, "/v1/accounts/0x"+hex.EncodeToString(h.logistics[:]), h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.decode(rec, &logisticsAccount)
	assert.Equal(t, "3", logisticsAccount.Balances["USDC"])
}

func TestCancelRestoresStockAndFunds(t *testing.T) {
	h := newHarness(t)
	offerID := h.seed()

	var order struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	rec := h.do(http.MethodPost, "/v1/orders", h.buyer, map[string]any{
		"offerId":  offerID,
		"quantity": 4,
		"mode":     "pickup",
		"nonce":    hexNonce(0xB3),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	h.decode(rec, &order)

	// The warehouse authority cannot cancel a pickup escrow.
	rec = h.do(http.MethodPost, "/v1/orders/"+order.ID+"/cancel", h.authority, map[string]any{})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/orders/"+order.ID+"/cancel", h.buyer, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	h.decode(rec, &order)
	assert.Equal(t, "canceled", order.State)

	var offer struct {
		QtyRemaining uint64 `json:"qtyRemaining"`
	}
	rec = h.do(http.MethodGet, "/v1/offers/"+offerID, h.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.decode(rec, &offer)
	assert.Equal(t, uint64(10), offer.QtyRemaining)

	var buyerAccount struct {
		Balances map[string]string `json:"balances"`
	}
	rec = h.do(http.MethodGet, "/v1/accounts/0x"+hex.EncodeToString(h.buyer[:]), h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.decode(rec, &buyerAccount)
	assert.Equal(t, "100", buyerAccount.Balances["USDC"])
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	offerID := h.seed()

	code := func(rec *httptest.ResponseRecorder) string {
		var body struct {
			Code string `json:"code"`
		}
		h.decode(rec, &body)
		return body.Code
	}

	// Unknown order.
	rec := h.do(http.MethodGet, "/v1/orders/"+hexNonce(0xEE), h.buyer, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", code(rec))

	// More than the remaining stock.
	rec = h.do(http.MethodPost, "/v1/orders", h.buyer, map[string]any{
		"offerId":  offerID,
		"quantity": 11,
		"mode":     "pickup",
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "INSUFFICIENT_STOCK", code(rec))

	// Unknown fulfillment mode.
	rec = h.do(http.MethodPost, "/v1/orders", h.buyer, map[string]any{
		"offerId":  offerID,
		"quantity": 1,
		"mode":     "teleport",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "INVALID_ARGUMENT", code(rec))

	// Second config init conflicts.
	rec = h.do(http.MethodPost, "/v1/config/init", h.admin, map[string]any{
		"logisticsWallet": "0x" + hex.EncodeToString(h.logistics[:]),
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", code(rec))

	// Non-admin config update.
	paused := true
	rec = h.do(http.MethodPost, "/v1/config/update", h.buyer, map[string]any{"paused": paused})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", code(rec))
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong signing key.
	admin := address(0x01)
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": hex.EncodeToString(admin[:]),
	})
	signed, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotencyReplay(t *testing.T) {
	h := newHarness(t)
	h.seed()

	body := map[string]any{"name": "Second Depot"}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/v1/warehouses", &buf)
	req.Header.Set("Authorization", "Bearer "+signToken(t, address(0x07)))
	req.Header.Set("Idempotency-Key", "warehouse-create-1")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := rec.Body.String()

	// Replaying the key returns the stored response instead of a duplicate
	// registration conflict.
	buf.Reset()
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req = httptest.NewRequest(http.MethodPost, "/v1/warehouses", &buf)
	req.Header.Set("Authorization", "Bearer "+signToken(t, address(0x07)))
	req.Header.Set("Idempotency-Key", "warehouse-create-1")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, first, rec.Body.String())

	// The same key with a different payload is rejected, not replayed.
	buf.Reset()
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{"name": "Third Depot"}))
	req = httptest.NewRequest(http.MethodPost, "/v1/warehouses", &buf)
	req.Header.Set("Authorization", "Bearer "+signToken(t, address(0x07)))
	req.Header.Set("Idempotency-Key", "warehouse-create-1")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var mismatch struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&mismatch))
	assert.Equal(t, "IDEMPOTENCY_MISMATCH", mismatch.Code)
}

func TestIdempotencyDoesNotRecordFailures(t *testing.T) {
	h := newHarness(t)
	h.seed()

	send := func(body map[string]any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, "/v1/warehouses", &buf)
		req.Header.Set("Authorization", "Bearer "+signToken(t, address(0x08)))
		req.Header.Set("Idempotency-Key", "warehouse-create-2")
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send(map[string]any{"name": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// The failed attempt was not recorded, so a corrected request under the
	// same key executes instead of replaying the failure.
	rec = send(map[string]any{"name": "North Depot"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
