package escrow

import (
	"fmt"
	"math/big"

	"agroledger/core/types"
	"agroledger/native/params"
)

// State is the slice of the transactional store the custodian needs.
type State interface {
	params.State
	AccountGet(addr [20]byte) (*types.Account, error)
	AccountPut(addr [20]byte, account *types.Account) error
	VaultGet(orderID [32]byte) (*Vault, bool, error)
	VaultPut(*Vault) error
}

// Transferrer moves value between accounts. The custodian never touches
// balances directly; the external collaborator does, inside the same
// transaction.
type Transferrer interface {
	Transfer(st State, from, to [20]byte, token string, amount *big.Int) error
}

// LedgerTransferrer is the default Transferrer over the store's account
// records.
type LedgerTransferrer struct{}

// Transfer moves amount of token between the two accounts, failing with
// ErrInsufficientFunds when the source balance does not cover it. A zero
// amount is a no-op, as is a covered self-transfer: touching the same account
// through two snapshots would let the second write overwrite the first.
func (LedgerTransferrer) Transfer(st State, from, to [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromAcc, err := st.AccountGet(from)
	if err != nil {
		return err
	}
	balance := fromAcc.Balance(token)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	toAcc, err := st.AccountGet(to)
	if err != nil {
		return err
	}
	fromAcc.SetBalance(token, new(big.Int).Sub(balance, amount))
	toAcc.SetBalance(token, new(big.Int).Add(toAcc.Balance(token), amount))
	if err := st.AccountPut(from, fromAcc); err != nil {
		return err
	}
	return st.AccountPut(to, toAcc)
}

// Split is the configured settlement formula: the farmer receives FarmerBps of
// the goods revenue, the warehouse authority the remainder, and any delivery
// quote settles to the logistics wallet in full. The exact percentage is a
// deployment input, never hardcoded.
type Split struct {
	FarmerBps uint32
}

// Validate rejects an out-of-range farmer share.
func (s Split) Validate() error {
	if s.FarmerBps == 0 || s.FarmerBps > 10_000 {
		return ErrInvalidSplit
	}
	return nil
}

// Payout is the per-recipient breakdown computed from order attributes at
// settlement time.
type Payout struct {
	Farmer    *big.Int
	Warehouse *big.Int
	Logistics *big.Int
}

// Total sums the payout legs.
func (p Payout) Total() *big.Int {
	total := big.NewInt(0)
	for _, leg := range []*big.Int{p.Farmer, p.Warehouse, p.Logistics} {
		if leg != nil {
			total.Add(total, leg)
		}
	}
	return total
}

// Recipients names the accounts a settlement pays into. The logistics wallet
// comes from the program config at settlement time.
type Recipients struct {
	Farmer    [20]byte
	Warehouse [20]byte
}

// Custodian moves value into and out of program-held vaults in lockstep with
// order-state transitions. Every method runs inside the caller's transaction;
// a failure aborts the whole operation with no partial state.
type Custodian struct {
	transfer Transferrer
	split    Split
}

// NewCustodian constructs a custodian with the default ledger transferrer.
func NewCustodian(split Split) *Custodian {
	return &Custodian{transfer: LedgerTransferrer{}, split: split}
}

// SetTransferrer overrides the value-transfer collaborator. Passing nil resets
// the default.
func (c *Custodian) SetTransferrer(t Transferrer) {
	if t == nil {
		c.transfer = LedgerTransferrer{}
		return
	}
	c.transfer = t
}

// Deposit moves amount of token from the buyer into the vault scoped to the
// order. A transfer failure aborts order creation entirely.
func (c *Custodian) Deposit(st State, orderID [32]byte, buyer [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := c.transfer.Transfer(st, buyer, VaultAddress(token), token, amount); err != nil {
		return err
	}
	if err := c.credit(st, orderID, token, amount); err != nil {
		return err
	}
	st.Emit(NewDepositedEvent(orderID, token, amount))
	return nil
}

// ComputeSplit derives the deterministic payout from the goods revenue and the
// optional delivery quote. Integer division dust lands in the warehouse leg so
// the legs always sum to the vault balance.
func (c *Custodian) ComputeSplit(goods, quote *big.Int) (Payout, error) {
	if err := c.split.Validate(); err != nil {
		return Payout{}, err
	}
	if goods == nil || goods.Sign() <= 0 {
		return Payout{}, ErrInvalidAmount
	}
	farmer := new(big.Int).Mul(goods, new(big.Int).SetUint64(uint64(c.split.FarmerBps)))
	farmer.Div(farmer, big.NewInt(10_000))
	warehouse := new(big.Int).Sub(goods, farmer)
	logistics := big.NewInt(0)
	if quote != nil && quote.Sign() > 0 {
		logistics = new(big.Int).Set(quote)
	}
	return Payout{Farmer: farmer, Warehouse: warehouse, Logistics: logistics}, nil
}

// Settle distributes the vault funds per the computed payout. The vault must
// hold exactly the payout total; afterwards its balance is zero. Any transfer
// failure surfaces as ErrSettlementFailure and, because the enclosing
// transaction is discarded, the order remains in its pre-settlement state.
func (c *Custodian) Settle(st State, orderID [32]byte, recipients Recipients, payout Payout) error {
	vault, err := c.load(st, orderID)
	if err != nil {
		return err
	}
	total := payout.Total()
	if total.Sign() <= 0 || vault.Balance().Cmp(total) != 0 {
		return ErrVaultMismatch
	}
	cfg, err := params.Config(st)
	if err != nil {
		return err
	}
	vaultAddr := VaultAddress(vault.Token)
	legs := []struct {
		to     [20]byte
		amount *big.Int
	}{
		{recipients.Farmer, payout.Farmer},
		{recipients.Warehouse, payout.Warehouse},
		{cfg.LogisticsWallet, payout.Logistics},
	}
	for _, leg := range legs {
		if leg.amount == nil || leg.amount.Sign() == 0 {
			continue
		}
		if err := c.transfer.Transfer(st, vaultAddr, leg.to, vault.Token, leg.amount); err != nil {
			return fmt.Errorf("%w: %v", ErrSettlementFailure, err)
		}
	}
	if err := c.debit(st, vault, total); err != nil {
		return err
	}
	st.Emit(NewSettledEvent(vault.OrderID, vault.Token, payout))
	return nil
}

// Refund returns the full escrowed amount to the buyer and zeroes the vault.
// It runs in the same transaction as the stock release and the state change,
// so a crash between them is never observable.
func (c *Custodian) Refund(st State, orderID [32]byte, buyer [20]byte, expected *big.Int) error {
	vault, err := c.load(st, orderID)
	if err != nil {
		return err
	}
	balance := vault.Balance()
	if balance.Sign() <= 0 {
		return ErrVaultMismatch
	}
	if expected != nil && balance.Cmp(expected) != 0 {
		return ErrVaultMismatch
	}
	if err := c.transfer.Transfer(st, VaultAddress(vault.Token), buyer, vault.Token, balance); err != nil {
		return err
	}
	if err := c.debit(st, vault, balance); err != nil {
		return err
	}
	st.Emit(NewRefundedEvent(vault.OrderID, vault.Token, balance))
	return nil
}

// Balance reports the vault balance for an order; a missing vault reads zero.
func (c *Custodian) Balance(st State, orderID [32]byte) (*big.Int, error) {
	vault, ok, err := st.VaultGet(orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return vault.Balance(), nil
}

func (c *Custodian) load(st State, orderID [32]byte) (*Vault, error) {
	vault, ok, err := st.VaultGet(orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVaultNotFound
	}
	return vault, nil
}

func (c *Custodian) credit(st State, orderID [32]byte, token string, amount *big.Int) error {
	vault, ok, err := st.VaultGet(orderID)
	if err != nil {
		return err
	}
	if !ok {
		vault = &Vault{OrderID: orderID, Token: token, Amount: big.NewInt(0)}
	}
	if vault.Token != token {
		return ErrVaultMismatch
	}
	vault.Amount = new(big.Int).Add(vault.Balance(), amount)
	return st.VaultPut(vault)
}

func (c *Custodian) debit(st State, vault *Vault, amount *big.Int) error {
	balance := vault.Balance()
	if balance.Cmp(amount) < 0 {
		return ErrVaultMismatch
	}
	vault.Amount = new(big.Int).Sub(balance, amount)
	return st.VaultPut(vault)
}
