// Package localprovider implements wallet.Provider with an in-process
// secp256k1 signer derived from a BIP39 mnemonic. It serves development,
// tests and the demo console; chain operations are available when a chain
// with an RPC endpoint is active.
package localprovider

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/time/rate"

	"community-dapp/go-client/internal/wallet"
)

// Chain describes a network the provider knows about. An empty RPCURL means
// signing-only: chain operations fail until a backed chain is active.
type Chain struct {
	ID     uint64
	Name   string
	RPCURL string
}

// providerError carries an EIP-1193-style numeric code, the way a browser
// wallet bridge reports unknown chains and declined requests.
type providerError struct {
	code    int
	message string
}

func (e *providerError) Error() string  { return e.message }
func (e *providerError) ErrorCode() int { return e.code }

var errNotConnected = &providerError{code: 4100, message: "wallet is not connected"}

type Provider struct {
	log       *slog.Logger
	seed      []byte
	keys      []*ecdsa.PrivateKey
	addresses []common.Address
	limiter   *rate.Limiter

	mu        sync.Mutex
	selected  int
	connected bool
	decline   bool
	chains    map[uint64]Chain
	active    uint64
	backend   *rpcBackend
	handlers  map[int]func(wallet.AccountUpdate)
	nextID    int
}

type Option func(*Provider)

func WithLogger(log *slog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// WithRequestRate caps outbound RPC requests per second.
func WithRequestRate(rps float64) Option {
	return func(p *Provider) {
		if rps > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// WithAccounts derives n accounts instead of one. Account 0 is the plain
// keccak of the seed; later accounts mix the index in, so the set is stable
// for a given mnemonic.
func WithAccounts(n int) Option {
	return func(p *Provider) {
		if n > 1 {
			p.extendAccounts(n)
		}
	}
}

// New derives the signing key from the mnemonic and registers the given
// chains. The first chain becomes active.
func New(mnemonic string, chains []Chain, opts ...Option) (*Provider, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(crypto.Keccak256(seed))
	if err != nil {
		return nil, err
	}

	p := &Provider{
		log:       slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "localprovider"),
		keys:      []*ecdsa.PrivateKey{key},
		addresses: []common.Address{crypto.PubkeyToAddress(key.PublicKey)},
		limiter:   rate.NewLimiter(rate.Limit(10), 11),
		seed:      seed,
		chains:    make(map[uint64]Chain),
		handlers:  make(map[int]func(wallet.AccountUpdate)),
	}
	for _, c := range chains {
		p.chains[c.ID] = c
	}
	if len(chains) > 0 {
		p.active = chains[0].ID
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) extendAccounts(n int) {
	for i := len(p.keys); i < n; i++ {
		key, err := crypto.ToECDSA(crypto.Keccak256(p.seed, []byte{byte(i)}))
		if err != nil {
			// A keccak digest is a valid scalar for all practical inputs.
			continue
		}
		p.keys = append(p.keys, key)
		p.addresses = append(p.addresses, crypto.PubkeyToAddress(key.PublicKey))
	}
}

// Address is the currently selected account.
func (p *Provider) Address() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addresses[p.selected]
}

// Addresses lists every derived account in index order.
func (p *Provider) Addresses() []common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]common.Address, len(p.addresses))
	copy(out, p.addresses)
	return out
}

// SelectAccount switches the active account by index and, when connected,
// re-dials the backend and pushes an account update so subscribers observe
// the switch the way they would a wallet-side account change.
func (p *Provider) SelectAccount(ctx context.Context, index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.keys) {
		p.mu.Unlock()
		return fmt.Errorf("account index %d out of range (%d derived)", index, len(p.keys))
	}
	p.selected = index
	address := p.addresses[index]
	connected := p.connected
	var err error
	if connected && p.backend != nil {
		chain := p.chains[p.active]
		p.backend.close()
		p.backend, err = dialBackend(ctx, chain, p.keys[index], address, p.limiter)
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if connected {
		p.push(wallet.AccountUpdate{Account: address, Connected: true})
	}
	return nil
}

// Connect marks the wallet connected, dials the active chain's RPC endpoint
// if it has one, and pushes an account update to subscribers.
func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	chain, ok := p.chains[p.active]
	if ok && chain.RPCURL != "" && p.backend == nil {
		backend, err := dialBackend(ctx, chain, p.keys[p.selected], p.addresses[p.selected], p.limiter)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.backend = backend
	}
	p.connected = true
	address := p.addresses[p.selected]
	p.mu.Unlock()

	p.push(wallet.AccountUpdate{Account: address, Connected: true})
	return nil
}

// Disconnect drops the RPC backend and pushes a disconnected update.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	if p.backend != nil {
		p.backend.close()
		p.backend = nil
	}
	p.connected = false
	p.mu.Unlock()

	p.push(wallet.AccountUpdate{Connected: false})
}

// DeclineSignatures makes subsequent signature requests fail with the
// user-rejected code, mimicking a wallet holder pressing "cancel".
func (p *Provider) DeclineSignatures(decline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decline = decline
}

func (p *Provider) CurrentAccount() (common.Address, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return common.Address{}, false
	}
	return p.addresses[p.selected], true
}

func (p *Provider) CurrentChainID() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected || p.active == 0 {
		return 0, false
	}
	return p.active, true
}

func (p *Provider) SubscribeAccountChanges(handler func(wallet.AccountUpdate)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = handler

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

func (p *Provider) push(upd wallet.AccountUpdate) {
	p.mu.Lock()
	ids := make([]int, 0, len(p.handlers))
	for id := range p.handlers {
		ids = append(ids, id)
	}
	// Deterministic delivery order by subscription id.
	sort.Ints(ids)
	handlers := make([]func(wallet.AccountUpdate), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, p.handlers[id])
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(upd)
	}
}

// RequestSignature signs an EIP-191 personal message with the key of the
// requested account, which must be one of the derived accounts.
func (p *Provider) RequestSignature(_ context.Context, account common.Address, message string) ([]byte, error) {
	p.mu.Lock()
	connected, decline := p.connected, p.decline
	var key *ecdsa.PrivateKey
	for i, addr := range p.addresses {
		if addr == account {
			key = p.keys[i]
			break
		}
	}
	p.mu.Unlock()

	if !connected {
		return nil, errNotConnected
	}
	if decline {
		return nil, &providerError{code: wallet.CodeUserRejectedRequest, message: "user rejected the request"}
	}
	if key == nil {
		return nil, &providerError{code: 4100, message: "account is not managed by this wallet"}
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return nil, err
	}
	// Ethereum wallets report V as 27/28.
	sig[64] += 27
	return sig, nil
}

// SwitchNetwork activates a registered chain, re-dialing its RPC endpoint if
// connected. An unregistered chain fails with code 4902.
func (p *Provider) SwitchNetwork(ctx context.Context, chainID uint64) error {
	p.mu.Lock()
	chain, ok := p.chains[chainID]
	if !ok {
		p.mu.Unlock()
		return &providerError{code: wallet.CodeUnrecognizedChain, message: "unrecognized chain"}
	}
	if p.backend != nil {
		p.backend.close()
		p.backend = nil
	}
	p.active = chainID
	connected := p.connected
	address := p.addresses[p.selected]
	var err error
	if connected && chain.RPCURL != "" {
		p.backend, err = dialBackend(ctx, chain, p.keys[p.selected], address, p.limiter)
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if connected {
		p.push(wallet.AccountUpdate{Account: address, Connected: true})
	}
	return nil
}

func (p *Provider) currentBackend() (*rpcBackend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, errNotConnected
	}
	if p.backend == nil {
		return nil, &providerError{code: 4900, message: "active chain has no RPC endpoint"}
	}
	return p.backend, nil
}

func (p *Provider) EstimateGas(ctx context.Context, msg wallet.CallMsg) (uint64, error) {
	b, err := p.currentBackend()
	if err != nil {
		return 0, err
	}
	return b.estimateGas(ctx, msg)
}

func (p *Provider) SendTransaction(ctx context.Context, msg wallet.CallMsg) (common.Hash, error) {
	b, err := p.currentBackend()
	if err != nil {
		return common.Hash{}, err
	}
	return b.sendTransaction(ctx, msg)
}

func (p *Provider) ReadContract(ctx context.Context, msg wallet.CallMsg) ([]byte, error) {
	b, err := p.currentBackend()
	if err != nil {
		return nil, err
	}
	return b.readContract(ctx, msg)
}

func (p *Provider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b, err := p.currentBackend()
	if err != nil {
		return nil, err
	}
	return b.transactionReceipt(ctx, hash)
}
