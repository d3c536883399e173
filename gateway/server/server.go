package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"agroledger/core/state"
	"agroledger/gateway/auth"
	"agroledger/gateway/middleware"
	"agroledger/gateway/models"
	"agroledger/native/escrow"
	"agroledger/native/offers"
	"agroledger/native/orders"
	"agroledger/native/params"
	"agroledger/native/registry"
	"agroledger/observability"
)

// retryAttempts bounds optimistic-commit retries before surfacing ErrConflict.
const retryAttempts = 3

// Options carries the collaborators the server needs.
type Options struct {
	Store     *state.Store
	DB        *gorm.DB
	Logger    *slog.Logger
	Verifier  *auth.Verifier
	Registry  *registry.Engine
	Offers    *offers.Ledger
	Custodian *escrow.Custodian
	Orders    *orders.Engine
	Limits    map[string]middleware.RateLimit
}

// Server exposes the settlement engines over HTTP.
type Server struct {
	store     *state.Store
	db        *gorm.DB
	log       *slog.Logger
	verifier  *auth.Verifier
	registry  *registry.Engine
	offers    *offers.Ledger
	custodian *escrow.Custodian
	orders    *orders.Engine
	router    http.Handler
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		store:     opts.Store,
		db:        opts.DB,
		log:       logger,
		verifier:  opts.Verifier,
		registry:  opts.Registry,
		offers:    opts.Offers,
		custodian: opts.Custodian,
		orders:    opts.Orders,
	}
	srv.router = srv.buildRouter(opts.Limits)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(limits map[string]middleware.RateLimit) http.Handler {
	limiter := middleware.NewRateLimiter(limits)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.verifier.Authenticate)
		api.Use(limiter.Middleware("api"))
		if s.db != nil {
			api.Use(middleware.Idempotency(s.db))
		}
		api.Use(s.audit)

		api.Post("/config/init", s.InitConfig)
		api.Post("/config/update", s.UpdateConfig)
		api.Get("/config", s.GetConfig)

		api.Post("/warehouses", s.RegisterWarehouse)
		api.Post("/warehouses/{id}/deactivate", s.DeactivateWarehouse)
		api.Post("/warehouses/{id}/customers/{cid}/confirm", s.ConfirmCustomer)
		api.Post("/warehouses/{id}/customers/{cid}/revoke", s.RevokeCustomer)
		api.Post("/farmers", s.RegisterFarmer)
		api.Post("/customers", s.RegisterCustomer)

		api.Post("/offers", s.CreateOffer)
		api.Post("/offers/{id}/deactivate", s.DeactivateOffer)
		api.Get("/offers/{id}", s.GetOffer)

		api.Post("/orders", s.CreateOrder)
		api.Post("/orders/{id}/quote", s.QuoteDelivery)
		api.Post("/orders/{id}/accept-quote", s.AcceptQuote)
		api.Post("/orders/{id}/transit", s.MarkInTransit)
		api.Post("/orders/{id}/fulfill", s.Fulfill)
		api.Post("/orders/{id}/cancel", s.Cancel)
		api.Post("/orders/{id}/refuse", s.Refuse)
		api.Post("/orders/{id}/expire", s.Expire)
		api.Get("/orders/{id}", s.GetOrder)
		api.Get("/orders/{id}/vault", s.GetVault)

		api.Post("/accounts/{address}/credit", s.CreditAccount)
		api.Get("/accounts/{address}", s.GetAccount)
	})

	return r
}

// instrument wraps every request with latency and outcome metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		observability.Gateway().Observe(route, r.Method, ww.Status(), time.Since(start))
	})
}

// audit records who invoked what after the handler ran.
func (s *Server) audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.db == nil || r.Method == http.MethodGet {
			return
		}
		caller, _ := auth.Caller(r.Context())
		entry := models.AuditLog{
			RequestID: chimw.GetReqID(r.Context()),
			Caller:    hexAddr(caller),
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    ww.Status(),
			CreatedAt: time.Now(),
		}
		if entry.RequestID == "" {
			entry.RequestID = uuid.NewString()
		}
		if err := s.db.Create(&entry).Error; err != nil {
			s.log.Warn("audit log write failed", "error", err)
		}
	})
}

// update runs fn in a read-write transaction, retrying a bounded number of
// times when the optimistic commit loses a race.
func (s *Server) update(fn func(*state.Txn) error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = s.store.Update(fn)
		if !errors.Is(err, state.ErrConflict) {
			return err
		}
		observability.Settlement().RecordConflict()
	}
	return err
}

// transition runs an order transition and, when the engine reports the order
// has passed its deadline, applies the expiry in its own commit before
// responding. The failed transition itself is discarded.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, orderID [32]byte, fn func(*state.Txn) (*orders.Order, error)) {
	var order *orders.Order
	err := s.update(func(t *state.Txn) error {
		var innerErr error
		order, innerErr = fn(t)
		return innerErr
	})
	if errors.Is(err, orders.ErrOrderExpired) {
		expireErr := s.update(func(t *state.Txn) error {
			var innerErr error
			order, innerErr = s.orders.Expire(t, orderID)
			return innerErr
		})
		if expireErr != nil {
			s.writeError(w, r, expireErr)
			return
		}
		s.writeJSON(w, http.StatusGone, map[string]any{
			"code":  "ORDER_EXPIRED",
			"order": newOrderView(order),
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Settlement().RecordTransition(order.State.String())
	s.writeJSON(w, http.StatusOK, newOrderView(order))
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := auth.Caller(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
	}
	return caller, ok
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, param string) ([32]byte, bool) {
	id, err := parseID(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return id, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{
		"code":  code,
		"error": err.Error(),
	})
}

// mapError translates engine sentinels to HTTP statuses and stable codes.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, state.ErrConflict):
		return http.StatusConflict, "COMMIT_CONFLICT"
	case errors.Is(err, params.ErrProgramPaused):
		return http.StatusConflict, "PROGRAM_PAUSED"
	case errors.Is(err, params.ErrUnauthorized),
		errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, offers.ErrUnauthorized),
		errors.Is(err, orders.ErrUnauthorized):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, registry.ErrNotConfirmed):
		return http.StatusForbidden, "NOT_CONFIRMED"
	case errors.Is(err, params.ErrNotInitialized),
		errors.Is(err, registry.ErrWarehouseNotFound),
		errors.Is(err, registry.ErrFarmerNotFound),
		errors.Is(err, registry.ErrCustomerNotFound),
		errors.Is(err, offers.ErrOfferNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, escrow.ErrVaultNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, params.ErrAlreadyInitialized),
		errors.Is(err, registry.ErrWarehouseExists),
		errors.Is(err, registry.ErrFarmerExists),
		errors.Is(err, registry.ErrCustomerExists),
		errors.Is(err, offers.ErrOfferExists),
		errors.Is(err, orders.ErrOrderExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, orders.ErrInvalidStateTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, orders.ErrOrderExpired):
		return http.StatusGone, "ORDER_EXPIRED"
	case errors.Is(err, orders.ErrNotExpired):
		return http.StatusConflict, "NOT_EXPIRED"
	case errors.Is(err, registry.ErrWarehouseInactive),
		errors.Is(err, offers.ErrOfferInactive):
		return http.StatusConflict, "INACTIVE"
	case errors.Is(err, offers.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, escrow.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"
	case errors.Is(err, errBadID),
		errors.Is(err, errBadAmount),
		errors.Is(err, params.ErrTokenNotAllowed),
		errors.Is(err, params.ErrInvalidToken),
		errors.Is(err, params.ErrTooManyAllowedTokens),
		errors.Is(err, registry.ErrNameRequired),
		errors.Is(err, registry.ErrNameTooLong),
		errors.Is(err, registry.ErrURITooLong),
		errors.Is(err, offers.ErrInvalidPrice),
		errors.Is(err, offers.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidQuote),
		errors.Is(err, orders.ErrInvalidMode),
		errors.Is(err, escrow.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (s *Server) InitConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		LogisticsWallet string   `json:"logisticsWallet"`
		Paused          bool     `json:"paused"`
		AllowedTokens   []string `json:"allowedTokens"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	logistics, err := auth.ParseAddress(req.LogisticsWallet)
	if err != nil {
		http.Error(w, "invalid logistics wallet", http.StatusBadRequest)
		return
	}
	var cfg *params.ProgramConfig
	err = s.update(func(t *state.Txn) error {
		var innerErr error
		cfg, innerErr = params.Initialize(t, caller, logistics, req.Paused, req.AllowedTokens)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newConfigView(cfg))
}

func (s *Server) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Paused          *bool     `json:"paused"`
		LogisticsWallet *string   `json:"logisticsWallet"`
		AllowedTokens   *[]string `json:"allowedTokens"`
		Admin           *string   `json:"admin"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	mut := params.Mutation{Paused: req.Paused, AllowedTokens: req.AllowedTokens}
	if req.LogisticsWallet != nil {
		addr, err := auth.ParseAddress(*req.LogisticsWallet)
		if err != nil {
			http.Error(w, "invalid logistics wallet", http.StatusBadRequest)
			return
		}
		mut.LogisticsWallet = &addr
	}
	if req.Admin != nil {
		addr, err := auth.ParseAddress(*req.Admin)
		if err != nil {
			http.Error(w, "invalid admin address", http.StatusBadRequest)
			return
		}
		mut.Admin = &addr
	}
	var cfg *params.ProgramConfig
	err := s.update(func(t *state.Txn) error {
		var innerErr error
		cfg, innerErr = params.Update(t, caller, mut)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newConfigView(cfg))
}

func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	var cfg *params.ProgramConfig
	err := s.store.View(func(t *state.Txn) error {
		var innerErr error
		cfg, innerErr = params.Config(t)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newConfigView(cfg))
}

func (s *Server) RegisterWarehouse(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		MetadataURI string `json:"metadataUri"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	var warehouse *registry.Warehouse
	err := s.update(func(t *state.Txn) error {
		var innerErr error
		warehouse, innerErr = s.registry.RegisterWarehouse(t, caller, req.Name, req.MetadataURI)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newWarehouseView(warehouse))
}

func (s *Server) DeactivateWarehouse(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var warehouse *registry.Warehouse
	err := s.update(func(t *state.Txn) error {
		var innerErr error
		warehouse, innerErr = s.registry.DeactivateWarehouse(t, caller, id)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWarehouseView(warehouse))
}

func (s *Server) RegisterFarmer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		WarehouseID string `json:"warehouseId"`
		Name        string `json:"name"`
		MetadataURI string `json:"metadataUri"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	warehouseID, err := parseID(req.WarehouseID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var farmer *registry.Farmer
	err = s.update(func(t *state.Txn) error {
		var innerErr error
		farmer, innerErr = s.registry.RegisterFarmer(t, caller, warehouseID, req.Name, req.MetadataURI)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newFarmerView(farmer))
}

func (s *Server) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		MetadataURI string `json:"metadataUri"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	var customer *registry.Customer
	err := s.update(func(t *state.Txn) error {
		var innerErr error
		customer, innerErr = s.registry.RegisterCustomer(t, caller, req.Name, req.MetadataURI)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newCustomerView(customer))
}

func (s *Server) ConfirmCustomer(w http.ResponseWriter, r *http.Request) {
	s.confirmation(w, r, s.registry.ConfirmCustomer)
}

func (s *Server) RevokeCustomer(w http.ResponseWriter, r *http.Request) {
	s.confirmation(w, r, s.registry.RevokeCustomer)
}

func (s *Server) confirmation(w http.ResponseWriter, r *http.Request, fn func(registry.State, [20]byte, [32]byte, [32]byte) (*registry.WarehouseCustomer, error)) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	warehouseID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	customerID, ok := s.pathID(w, r, "cid")
	if !ok {
		return
	}
	var record *registry.WarehouseCustomer
	err := s.update(func(t *state.Txn) error {
		var innerErr error
		record, innerErr = fn(t, caller, warehouseID, customerID)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newConfirmationView(record))
}

func (s *Server) CreateOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		FarmerID    string `json:"farmerId"`
		Token       string `json:"token"`
		UnitPrice   string `json:"unitPrice"`
		Quantity    uint64 `json:"quantity"`
		MetadataURI string `json:"metadataUri"`
		Nonce       string `json:"nonce"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	farmerID, err := parseID(req.FarmerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unitPrice, err := parseAmount(req.UnitPrice)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	nonce, err := parseNonce(req.Nonce)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var offer *offers.LotOffer
	err = s.update(func(t *state.Txn) error {
		var innerErr error
		offer, innerErr = s.offers.Create(t, caller, farmerID, req.Token, unitPrice, req.Quantity, req.MetadataURI, nonce)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newOfferView(offer))
}

func (s *Server) DeactivateOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var offer *offers.LotOffer
	err := s.update(func(t *state.Txn) error {
		var innerErr error
		offer, innerErr = s.offers.Deactivate(t, caller, id)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newOfferView(offer))
}

func (s *Server) GetOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var offer *offers.LotOffer
	err := s.store.View(func(t *state.Txn) error {
		record, found, innerErr := t.OfferGet(id)
		if innerErr != nil {
			return innerErr
		}
		if !found {
			return offers.ErrOfferNotFound
		}
		offer = record
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newOfferView(offer))
}

func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		OfferID  string `json:"offerId"`
		Quantity uint64 `json:"quantity"`
		Mode     string `json:"mode"`
		Nonce    string `json:"nonce"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	offerID, err := parseID(req.OfferID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nonce, err := parseNonce(req.Nonce)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var order *orders.Order
	err = s.update(func(t *state.Txn) error {
		var innerErr error
		order, innerErr = s.orders.Create(t, caller, offerID, req.Quantity, mode, nonce)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Settlement().RecordTransition(order.State.String())
	s.writeJSON(w, http.StatusCreated, newOrderView(order))
}

func (s *Server) QuoteDelivery(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Quote string `json:"quote"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	quote, err := parseAmount(req.Quote)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.transition(w, r, id, func(t *state.Txn) (*orders.Order, error) {
		return s.orders.QuoteDelivery(t, caller, id, quote)
	})
}

func (s *Server) AcceptQuote(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.orders.AcceptQuote)
}

func (s *Server) MarkInTransit(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.orders.MarkInTransit)
}

func (s *Server) Fulfill(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.orders.Fulfill)
}

func (s *Server) Cancel(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.orders.Cancel)
}

func (s *Server) Refuse(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.orders.Refuse)
}

func (s *Server) simpleTransition(w http.ResponseWriter, r *http.Request, fn func(orders.State, [20]byte, [32]byte) (*orders.Order, error)) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	s.transition(w, r, id, func(t *state.Txn) (*orders.Order, error) {
		return fn(t, caller, id)
	})
}

func (s *Server) Expire(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var order *orders.Order
	err := s.update(func(t *state.Txn) error {
		var innerErr error
		order, innerErr = s.orders.Expire(t, id)
		return innerErr
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Settlement().RecordTransition(order.State.String())
	s.writeJSON(w, http.StatusOK, newOrderView(order))
}

func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var order *orders.Order
	err := s.store.View(func(t *state.Txn) error {
		record, found, innerErr := t.OrderGet(id)
		if innerErr != nil {
			return innerErr
		}
		if !found {
			return orders.ErrOrderNotFound
		}
		order = record
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newOrderView(order))
}

func (s *Server) GetVault(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var vault *escrow.Vault
	err := s.store.View(func(t *state.Txn) error {
		record, found, innerErr := t.VaultGet(id)
		if innerErr != nil {
			return innerErr
		}
		if !found {
			return escrow.ErrVaultNotFound
		}
		vault = record
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newVaultView(vault))
}

// CreditAccount mints balance onto a ledger account. Settlement money enters
// the system off-platform, so only the program admin can record it.
func (s *Server) CreditAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	target, err := auth.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		http.Error(w, "invalid account address", http.StatusBadRequest)
		return
	}
	var req struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var balance *big.Int
	err = s.update(func(t *state.Txn) error {
		cfg, innerErr := params.Config(t)
		if innerErr != nil {
			return innerErr
		}
		if cfg.Admin != caller {
			return params.ErrUnauthorized
		}
		token, innerErr := params.RequireTokenAllowed(t, req.Token)
		if innerErr != nil {
			return innerErr
		}
		account, innerErr := t.AccountGet(target)
		if innerErr != nil {
			return innerErr
		}
		account.SetBalance(token, new(big.Int).Add(account.Balance(token), amount))
		if innerErr := t.AccountPut(target, account); innerErr != nil {
			return innerErr
		}
		balance = account.Balance(token)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"address": hexAddr(target),
		"token":   req.Token,
		"balance": amountStr(balance),
	})
}

func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	target, err := auth.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		http.Error(w, "invalid account address", http.StatusBadRequest)
		return
	}
	balances := map[string]string{}
	err = s.store.View(func(t *state.Txn) error {
		account, innerErr := t.AccountGet(target)
		if innerErr != nil {
			return innerErr
		}
		for token, amount := range account.Balances {
			balances[token] = amountStr(amount)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"address":  hexAddr(target),
		"balances": balances,
	})
}
