// Package ledgertest provides an in-memory ledger node for tests. FakeChain
// answers the contract calls made through the bindings, mines transactions
// instantly, and replays reverts the way a JSON-RPC node reports them.
package ledgertest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/agrosync/internal/binding"
	"github.com/mrz1836/agrosync/internal/ledger"
)

// ChainID is the chain the fake reports.
const ChainID uint64 = 80002

// Contract addresses served by the fake.
var (
	FactoryAddress    = common.HexToAddress("0x00000000000000000000000000000000000f0001")
	InvestmentAddress = common.HexToAddress("0x00000000000000000000000000000000000f0002")
	TokenAddress      = common.HexToAddress("0x00000000000000000000000000000000000f0003")
)

// ErrUnsupported is returned for log subscriptions.
var ErrUnsupported = errors.New("ledgertest: not supported")

// RevertError is a node error for a reverted execution.
type RevertError struct {
	Reason string
	data   string
}

func newRevert(reason string) *RevertError {
	return &RevertError{Reason: reason, data: hexutil.Encode(packRevert(reason))}
}

func (e *RevertError) Error() string { return "execution reverted: " + e.Reason }

// ErrorCode returns the JSON-RPC code nodes use for reverts.
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData returns the hex-encoded Error(string) payload.
func (e *RevertError) ErrorData() interface{} { return e.data }

type failure struct {
	err   error
	times int
}

// FakeChain is an in-memory node serving the project registry, the investment
// manager, and the stable token.
type FakeChain struct {
	mu sync.Mutex

	contracts map[common.Address]abi.ABI
	signer    types.Signer

	users      map[common.Address]*ledger.RawProfile
	userCount  int64
	projects   []*ledger.RawProject
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
	investors  map[common.Address]*ledger.InvestorData
	nonces     map[common.Address]uint64

	block    uint64
	now      int64
	receipts map[common.Hash]*types.Receipt
	held     map[common.Hash]*types.Receipt
	hold     bool

	calls     map[string]int
	sent      map[string]int
	failures  map[string]*failure
	mineFails map[string]string
	replays   map[string]string
}

// NewFakeChain creates an empty chain with the three contracts deployed.
func NewFakeChain() *FakeChain {
	f := &FakeChain{
		contracts:  make(map[common.Address]abi.ABI),
		signer:     types.LatestSignerForChainID(new(big.Int).SetUint64(ChainID)),
		users:      make(map[common.Address]*ledger.RawProfile),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
		investors:  make(map[common.Address]*ledger.InvestorData),
		nonces:     make(map[common.Address]uint64),
		block:      100,
		now:        1_700_000_000,
		receipts:   make(map[common.Hash]*types.Receipt),
		held:       make(map[common.Hash]*types.Receipt),
		calls:      make(map[string]int),
		sent:       make(map[string]int),
		failures:   make(map[string]*failure),
		mineFails:  make(map[string]string),
		replays:    make(map[string]string),
	}
	f.contracts[FactoryAddress] = mustABI(binding.ProjectFactoryABI)
	f.contracts[InvestmentAddress] = mustABI(binding.InvestmentManagerABI)
	f.contracts[TokenAddress] = mustABI(binding.StableTokenABI)
	return f
}

// Addresses returns the deployed contract addresses.
func (f *FakeChain) Addresses() binding.Addresses {
	return binding.Addresses{
		ProjectFactory:    FactoryAddress,
		InvestmentManager: InvestmentAddress,
		StableToken:       TokenAddress,
	}
}

// Bind returns a ready binding manager for key against this chain.
func (f *FakeChain) Bind(tb testing.TB, key *ecdsa.PrivateKey) *binding.Manager {
	tb.Helper()
	opts, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(ChainID))
	require.NoError(tb, err)

	m := binding.NewManager(binding.Options{Addresses: f.Addresses()})
	m.Update(f, opts)
	require.True(tb, m.Ready())
	tb.Cleanup(m.Close)
	return m
}

// NewKey generates a key and funds its account with balance token units.
func (f *FakeChain) NewKey(tb testing.TB, balance int64) (*ecdsa.PrivateKey, common.Address) {
	tb.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(tb, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	f.SetBalance(addr, big.NewInt(balance))
	return key, addr
}

// SetBalance sets the token balance of an account.
func (f *FakeChain) SetBalance(account common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = new(big.Int).Set(amount)
}

// SetAllowance sets how much spender may draw from owner.
func (f *FakeChain) SetAllowance(owner, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[[2]common.Address{owner, spender}] = new(big.Int).Set(amount)
}

// Balance returns the token balance of an account.
func (f *FakeChain) Balance(account common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balanceOf(account))
}

// Allowance returns the current allowance.
func (f *FakeChain) Allowance(owner, spender common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowanceOf(owner, spender))
}

// AddUser registers an account directly.
func (f *FakeChain) AddUser(account common.Address, name, profileRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.register(account, name, profileRef)
}

// AddProject stores a project directly and returns its ID. Zero-valued
// amounts are filled in.
func (f *FakeChain) AddProject(p ledger.RawProject) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Id = big.NewInt(int64(len(f.projects) + 1))
	fillProject(&p, f.now)
	f.projects = append(f.projects, &p)
	return new(big.Int).Set(p.Id)
}

// Project returns a copy of a stored project, or nil.
func (f *FakeChain) Project(id int64) *ledger.RawProject {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.project(big.NewInt(id))
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Calls returns how many times a read method was called.
func (f *FakeChain) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Sent returns how many transactions invoked method.
func (f *FakeChain) Sent(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[method]
}

// Nonce returns the next nonce of an account.
func (f *FakeChain) Nonce(account common.Address) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account]
}

// FailCalls makes the next times calls of method return err. Negative times fails forever.
func (f *FakeChain) FailCalls(method string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = &failure{err: err, times: times}
}

// RevertOnMine makes the next transaction invoking method pass estimation
// but revert when mined.
func (f *FakeChain) RevertOnMine(method, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mineFails[method] = reason
}

// HoldReceipts withholds receipts until ReleaseReceipts is called.
func (f *FakeChain) HoldReceipts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = true
}

// ReleaseReceipts publishes every withheld receipt.
func (f *FakeChain) ReleaseReceipts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = false
	for h, r := range f.held {
		f.receipts[h] = r
		delete(f.held, h)
	}
}

// Pending returns how many receipts are withheld.
func (f *FakeChain) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.held)
}

// CodeAt implements bind.ContractCaller.
func (f *FakeChain) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	if _, ok := f.contracts[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

// PendingCodeAt implements bind.ContractTransactor.
func (f *FakeChain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return f.CodeAt(ctx, account, nil)
}

// CallContract implements bind.ContractCaller.
func (f *FakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method, args, err := f.decode(msg.To, msg.Data)
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++
	if err := f.injected(method.Name); err != nil {
		return nil, err
	}

	if !method.IsConstant() {
		if reason, ok := f.replays[method.Name]; ok {
			delete(f.replays, method.Name)
			return nil, newRevert(reason)
		}
		if err := f.validate(msg.From, method.Name, args); err != nil {
			return nil, err
		}
		if method.Name == "approve" {
			return method.Outputs.Pack(true)
		}
		return method.Outputs.Pack(f.returnValues(method)...)
	}
	return f.read(method, args)
}

// EstimateGas implements bind.ContractTransactor.
func (f *FakeChain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method, args, err := f.decode(msg.To, msg.Data)
	if err != nil {
		return 0, err
	}
	if err := f.validate(msg.From, method.Name, args); err != nil {
		return 0, err
	}
	return 150_000, nil
}

// SuggestGasPrice implements bind.ContractTransactor.
func (f *FakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

// SuggestGasTipCap implements bind.ContractTransactor.
func (f *FakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// HeaderByNumber implements bind.ContractTransactor.
func (f *FakeChain) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Header{
		Number:  new(big.Int).SetUint64(f.block),
		Time:    uint64(f.now),
		BaseFee: big.NewInt(1_000_000_000),
	}, nil
}

// PendingNonceAt implements bind.ContractTransactor.
func (f *FakeChain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

// SendTransaction implements bind.ContractTransactor. Transactions are mined
// into their own block immediately.
func (f *FakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from, err := types.Sender(f.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != f.nonces[from] {
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), f.nonces[from])
	}

	method, args, err := f.decode(tx.To(), tx.Data())
	if err != nil {
		return err
	}
	if err := f.injected(method.Name); err != nil {
		return err
	}
	f.nonces[from]++
	f.sent[method.Name]++
	f.block++
	f.now += 12

	receipt := &types.Receipt{
		Type:        tx.Type(),
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		GasUsed:     90_000,
		BlockNumber: new(big.Int).SetUint64(f.block),
	}

	reason, forced := f.mineFails[method.Name]
	if forced {
		delete(f.mineFails, method.Name)
	} else if rerr := f.validate(from, method.Name, args); rerr != nil {
		forced = true
	}
	if forced {
		receipt.Status = types.ReceiptStatusFailed
		if reason != "" {
			f.replays[method.Name] = reason
		}
	} else {
		receipt.Logs = f.apply(from, method.Name, args, tx.Hash())
	}

	if f.hold {
		f.held[tx.Hash()] = receipt
	} else {
		f.receipts[tx.Hash()] = receipt
	}
	return nil
}

// TransactionReceipt implements bind.DeployBackend.
func (f *FakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// FilterLogs implements bind.ContractFilterer over the stored receipts.
func (f *FakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.Log
	for _, r := range f.receipts {
		for _, l := range r.Logs {
			if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
				continue
			}
			out = append(out, *l)
		}
	}
	return out, nil
}

// SubscribeFilterLogs implements bind.ContractFilterer.
func (f *FakeChain) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, ErrUnsupported
}

func (f *FakeChain) decode(to *common.Address, data []byte) (*abi.Method, []any, error) {
	if to == nil {
		return nil, nil, errors.New("contract creation not supported")
	}
	parsed, ok := f.contracts[*to]
	if !ok {
		return nil, nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	if len(data) < 4 {
		return nil, nil, newRevert("")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}

func (f *FakeChain) injected(method string) error {
	fl, ok := f.failures[method]
	if !ok || fl.times == 0 {
		return nil
	}
	if fl.times > 0 {
		fl.times--
	}
	return fl.err
}

func (f *FakeChain) returnValues(method *abi.Method) []any {
	if method.Name == "createProject" {
		return []any{big.NewInt(int64(len(f.projects) + 1))}
	}
	return nil
}

func (f *FakeChain) read(method *abi.Method, args []any) ([]byte, error) {
	switch method.Name {
	case "isUserRegistered":
		_, ok := f.users[args[0].(common.Address)]
		return method.Outputs.Pack(ok)
	case "getUserProfile":
		p, ok := f.users[args[0].(common.Address)]
		if !ok {
			p = emptyProfile()
		}
		return method.Outputs.Pack(*p)
	case "getProject":
		p := f.project(args[0].(*big.Int))
		if p == nil {
			empty := ledger.RawProject{}
			fillProject(&empty, 0)
			empty.Id = new(big.Int)
			return method.Outputs.Pack(empty)
		}
		return method.Outputs.Pack(*p)
	case "getAllProjects":
		all := make([]ledger.RawProject, 0, len(f.projects))
		for _, p := range f.projects {
			all = append(all, *p)
		}
		return method.Outputs.Pack(all)
	case "getPlatformStats":
		funding, investments := new(big.Int), new(big.Int)
		for _, d := range f.investors {
			funding.Add(funding, d.TotalInvested)
			investments.Add(investments, big.NewInt(int64(len(d.ProjectIDs))))
		}
		return method.Outputs.Pack(
			big.NewInt(int64(len(f.projects))),
			big.NewInt(f.userCount),
			investments,
			funding,
		)
	case "getInvestorData":
		d := f.investor(args[0].(common.Address))
		return method.Outputs.Pack(d.TotalInvested, d.ActiveInvestments, d.ClaimedReturns, d.PendingAmount, d.ProjectIDs)
	case "balanceOf":
		return method.Outputs.Pack(f.balanceOf(args[0].(common.Address)))
	case "allowance":
		return method.Outputs.Pack(f.allowanceOf(args[0].(common.Address), args[1].(common.Address)))
	case "decimals":
		return method.Outputs.Pack(uint8(6))
	}
	return nil, fmt.Errorf("unknown method %s", method.Name)
}

// validate applies the contract's require checks without changing state.
func (f *FakeChain) validate(from common.Address, method string, args []any) error {
	switch method {
	case "registerUser":
		if _, ok := f.users[from]; ok {
			return newRevert("User already registered")
		}
		if args[0].(string) == "" {
			return newRevert("Name required")
		}
	case "createProject":
		if _, ok := f.users[from]; !ok {
			return newRevert("User not registered")
		}
		if args[4].(*big.Int).Sign() <= 0 {
			return newRevert("Invalid target amount")
		}
		if args[5].(*big.Int).Sign() <= 0 {
			return newRevert("Invalid duration")
		}
	case "investInProject":
		id, amount := args[0].(*big.Int), args[1].(*big.Int)
		p := f.project(id)
		if p == nil {
			return newRevert("Project does not exist")
		}
		if p.Status != ledger.StatusActive {
			return newRevert("Project not active")
		}
		if amount.Sign() <= 0 {
			return newRevert("Invalid amount")
		}
		if f.allowanceOf(from, InvestmentAddress).Cmp(amount) < 0 {
			return newRevert("ERC20: insufficient allowance")
		}
		if f.balanceOf(from).Cmp(amount) < 0 {
			return newRevert("ERC20: transfer amount exceeds balance")
		}
	}
	return nil
}

func (f *FakeChain) apply(from common.Address, method string, args []any, txHash common.Hash) []*types.Log {
	switch method {
	case "registerUser":
		f.register(from, args[0].(string), args[1].(string))
		ev := f.contracts[FactoryAddress].Events["UserRegistered"]
		data, _ := ev.Inputs.NonIndexed().Pack(args[0].(string))
		return []*types.Log{f.log(FactoryAddress, txHash, data, ev.ID, common.BytesToHash(from.Bytes()))}

	case "createProject":
		p := ledger.RawProject{
			Id:                big.NewInt(int64(len(f.projects) + 1)),
			Farmer:            from,
			Title:             args[0].(string),
			Description:       args[1].(string),
			ImageIPFSHash:     args[2].(string),
			DocumentsIPFSHash: args[3].(string),
			TargetAmountUSDC:  new(big.Int).Set(args[4].(*big.Int)),
			DurationDays:      new(big.Int).Set(args[5].(*big.Int)),
			Location:          args[6].(string),
			Category:          args[7].(string),
		}
		fillProject(&p, f.now)
		f.projects = append(f.projects, &p)
		if u, ok := f.users[from]; ok {
			u.ProjectCount.Add(u.ProjectCount, big.NewInt(1))
		}
		ev := f.contracts[FactoryAddress].Events["ProjectCreated"]
		data, _ := ev.Inputs.NonIndexed().Pack(p.Title, p.TargetAmountUSDC)
		return []*types.Log{f.log(FactoryAddress, txHash, data, ev.ID, common.BigToHash(p.Id), common.BytesToHash(from.Bytes()))}

	case "approve":
		f.allowances[[2]common.Address{from, args[0].(common.Address)}] = new(big.Int).Set(args[1].(*big.Int))
		return nil

	case "investInProject":
		id, amount := args[0].(*big.Int), args[1].(*big.Int)
		p := f.project(id)
		key := [2]common.Address{from, InvestmentAddress}
		f.allowances[key] = new(big.Int).Sub(f.allowanceOf(from, InvestmentAddress), amount)
		f.balances[from] = new(big.Int).Sub(f.balanceOf(from), amount)

		d := f.investor(from)
		first := true
		for _, pid := range d.ProjectIDs {
			if pid.Cmp(id) == 0 {
				first = false
			}
		}
		if first {
			d.ProjectIDs = append(d.ProjectIDs, new(big.Int).Set(id))
			d.ActiveInvestments.Add(d.ActiveInvestments, big.NewInt(1))
			p.InvestorCount.Add(p.InvestorCount, big.NewInt(1))
		}
		d.TotalInvested.Add(d.TotalInvested, amount)
		if u, ok := f.users[from]; ok {
			u.TotalInvested.Add(u.TotalInvested, amount)
		}
		if u, ok := f.users[p.Farmer]; ok {
			u.TotalRaised.Add(u.TotalRaised, amount)
		}
		p.CurrentAmountUSDC.Add(p.CurrentAmountUSDC, amount)
		if p.CurrentAmountUSDC.Cmp(p.TargetAmountUSDC) >= 0 {
			p.Status = ledger.StatusCompleted
		}

		ev := f.contracts[InvestmentAddress].Events["InvestmentMade"]
		data, _ := ev.Inputs.NonIndexed().Pack(amount)
		return []*types.Log{f.log(InvestmentAddress, txHash, data, ev.ID, common.BigToHash(id), common.BytesToHash(from.Bytes()))}
	}
	return nil
}

func (f *FakeChain) log(addr common.Address, txHash common.Hash, data []byte, topics ...common.Hash) *types.Log {
	return &types.Log{
		Address:     addr,
		Topics:      topics,
		Data:        data,
		BlockNumber: f.block,
		TxHash:      txHash,
	}
}

func (f *FakeChain) register(account common.Address, name, profileRef string) {
	p := emptyProfile()
	p.IsRegistered = true
	p.Name = name
	p.ProfileIPFSHash = profileRef
	p.RegisteredAt = big.NewInt(f.now)
	f.users[account] = p
	f.userCount++
}

func (f *FakeChain) project(id *big.Int) *ledger.RawProject {
	if id == nil || !id.IsInt64() {
		return nil
	}
	i := id.Int64()
	if i < 1 || i > int64(len(f.projects)) {
		return nil
	}
	return f.projects[i-1]
}

func (f *FakeChain) investor(account common.Address) *ledger.InvestorData {
	d, ok := f.investors[account]
	if !ok {
		d = &ledger.InvestorData{
			TotalInvested:     new(big.Int),
			ActiveInvestments: new(big.Int),
			ClaimedReturns:    new(big.Int),
			PendingAmount:     new(big.Int),
			ProjectIDs:        []*big.Int{},
		}
		f.investors[account] = d
	}
	return d
}

func (f *FakeChain) balanceOf(account common.Address) *big.Int {
	if b, ok := f.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (f *FakeChain) allowanceOf(owner, spender common.Address) *big.Int {
	if a, ok := f.allowances[[2]common.Address{owner, spender}]; ok {
		return a
	}
	return new(big.Int)
}

func emptyProfile() *ledger.RawProfile {
	return &ledger.RawProfile{
		RegisteredAt:  new(big.Int),
		ProjectCount:  new(big.Int),
		TotalInvested: new(big.Int),
		TotalRaised:   new(big.Int),
	}
}

func fillProject(p *ledger.RawProject, now int64) {
	zero := func(v **big.Int) {
		if *v == nil {
			*v = new(big.Int)
		}
	}
	zero(&p.Id)
	zero(&p.TargetAmountUSDC)
	zero(&p.CurrentAmountUSDC)
	zero(&p.DurationDays)
	zero(&p.InvestorCount)
	if p.CreatedAt == nil {
		p.CreatedAt = big.NewInt(now)
	}
	if p.Deadline == nil {
		p.Deadline = new(big.Int).Add(p.CreatedAt, new(big.Int).Mul(p.DurationDays, big.NewInt(86400)))
	}
}

func packRevert(reason string) []byte {
	strType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: strType}}.Pack(reason)
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
