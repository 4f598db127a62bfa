package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"community-dapp/go-client/internal/apperrors"
	"community-dapp/go-client/internal/session"
	"community-dapp/go-client/internal/uistate"
	"community-dapp/go-client/internal/wallet"
)

var (
	accountA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	accountB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
)

// stubProvider drives the controller through wallet account updates.
type stubProvider struct {
	mu       sync.Mutex
	account  common.Address
	online   bool
	handlers []func(wallet.AccountUpdate)
}

func (p *stubProvider) CurrentAccount() (common.Address, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account, p.online
}

func (p *stubProvider) CurrentChainID() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return 1, p.online
}

func (p *stubProvider) SubscribeAccountChanges(h func(wallet.AccountUpdate)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
	return func() {}
}

func (p *stubProvider) push(upd wallet.AccountUpdate) {
	p.mu.Lock()
	p.online = upd.Connected
	p.account = upd.Account
	handlers := append([]func(wallet.AccountUpdate){}, p.handlers...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(upd)
	}
}

func (p *stubProvider) RequestSignature(_ context.Context, account common.Address, _ string) ([]byte, error) {
	return append([]byte("signature-for-"), account.Bytes()...), nil
}

func (p *stubProvider) EstimateGas(context.Context, wallet.CallMsg) (uint64, error) {
	return 21000, nil
}

func (p *stubProvider) SendTransaction(context.Context, wallet.CallMsg) (common.Hash, error) {
	return common.Hash{}, errors.New("not supported")
}

func (p *stubProvider) ReadContract(context.Context, wallet.CallMsg) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (p *stubProvider) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, wallet.ErrReceiptNotFound
}

func (p *stubProvider) SwitchNetwork(context.Context, uint64) error { return nil }

func newController(t *testing.T, cfg Config) (*Controller, *stubProvider, *uistate.Store) {
	t.Helper()
	if cfg.AppID == "" {
		cfg.AppID = "myapp"
	}
	if cfg.AppName == "" {
		cfg.AppName = "My App"
	}
	p := &stubProvider{}
	ui := uistate.New()
	c, err := New(cfg, p, session.NewMemoryStorage(), ui, nil)
	if err != nil {
		t.Fatalf("controller construction failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c, p, ui
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("controller never reached state %q (currently %q)", want, c.State())
}

func TestMissingAppIdentityIsConfigurationError(t *testing.T) {
	p := &stubProvider{}
	ui := uistate.New()

	_, err := New(Config{AppName: "My App"}, p, session.NewMemoryStorage(), ui, nil)
	if apperrors.CodeOf(err) != apperrors.CodeConfiguration {
		t.Fatalf("expected configuration error for missing app id, got %v", err)
	}
	_, err = New(Config{AppID: "myapp"}, p, session.NewMemoryStorage(), ui, nil)
	if apperrors.CodeOf(err) != apperrors.CodeConfiguration {
		t.Fatalf("expected configuration error for missing app name, got %v", err)
	}
}

func TestAccountLifecycleStateSequence(t *testing.T) {
	c, p, ui := newController(t, Config{})

	var states []string
	var mu sync.Mutex
	if _, err := ui.Subscribe(ChannelState, func(v any) {
		mu.Lock()
		states = append(states, v.(string))
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// A connects.
	p.push(wallet.AccountUpdate{Account: accountA, Connected: true})
	waitForState(t, c, StateInitialised)

	// A disconnects.
	p.push(wallet.AccountUpdate{Connected: false})
	waitForState(t, c, StateClosed)
	if v, _ := ui.Value(ChannelSessionData); v.(session.Data).Account != (common.Address{}) {
		t.Fatalf("session data not reset on close: %+v", v)
	}
	if v, _ := ui.Value(ChannelSessionState); v != string(session.StateOpen) {
		t.Fatalf("session state not reset on close: %v", v)
	}

	// B connects.
	p.push(wallet.AccountUpdate{Account: accountB, Connected: true})
	waitForState(t, c, StateInitialised)
	if v, _ := ui.Value(ChannelSessionData); v.(session.Data).Account != accountB {
		t.Fatalf("session data not published for new account: %+v", v)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"initialising", "initialised", "closed", "initialising", "initialised"}
	if len(states) != len(want) {
		t.Fatalf("unexpected state sequence: %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("unexpected state sequence: %v, want %v", states, want)
		}
	}
}

func TestAccountSwitchTearsDownBeforeReopening(t *testing.T) {
	c, p, ui := newController(t, Config{})

	p.push(wallet.AccountUpdate{Account: accountA, Connected: true})
	waitForState(t, c, StateInitialised)
	if err := c.Login(context.Background(), false); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if v, _ := ui.Value(ChannelSessionState); v != string(session.StateLoggedIn) {
		t.Fatalf("expected logged-in session state, got %v", v)
	}

	// Direct switch to another account passes through closed semantics.
	p.push(wallet.AccountUpdate{Account: accountB, Connected: true})
	waitForState(t, c, StateInitialised)
	if v, _ := ui.Value(ChannelSessionState); v != string(session.StateOpen) {
		t.Fatalf("login must not leak into the new session, got %v", v)
	}
}

func TestLoginLogoutWithoutSessionRejected(t *testing.T) {
	c, _, _ := newController(t, Config{})

	if err := c.Login(context.Background(), false); !errors.Is(err, ErrNoSessionLogin) {
		t.Fatalf("expected ErrNoSessionLogin, got %v", err)
	}
	if err := c.Logout(context.Background()); !errors.Is(err, ErrNoSessionLogout) {
		t.Fatalf("expected ErrNoSessionLogout, got %v", err)
	}
}

// failingHooks makes Initialise fail until released, to exercise the failed
// state and the staleness check.
type failingHooks struct {
	session.NoopHooks
	mu      sync.Mutex
	fail    bool
	started chan struct{}
	release chan struct{}
}

func (h *failingHooks) Initialise(ctx context.Context) error {
	if h.started != nil {
		close(h.started)
	}
	if h.release != nil {
		<-h.release
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errors.New("registration check failed")
	}
	return nil
}

func (h *failingHooks) RestoreState(json.RawMessage) {}

func TestInitialiseFailurePublishesError(t *testing.T) {
	hooks := &failingHooks{fail: true}
	c, p, ui := newController(t, Config{
		NewHooks: func() session.Hooks { return hooks },
	})

	p.push(wallet.AccountUpdate{Account: accountA, Connected: true})
	waitForState(t, c, StateFailed)

	v, _ := ui.Value(ChannelError)
	if v == nil {
		t.Fatal("expected error published on failure")
	}

	// No automatic retry: state stays failed.
	time.Sleep(20 * time.Millisecond)
	if c.State() != StateFailed {
		t.Fatalf("expected failed to persist, got %v", c.State())
	}
}

func TestStaleInitialisationIsDiscarded(t *testing.T) {
	first := &failingHooks{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	var handedFirst bool
	var mu sync.Mutex
	c, p, ui := newController(t, Config{
		NewHooks: func() session.Hooks {
			mu.Lock()
			defer mu.Unlock()
			if !handedFirst {
				handedFirst = true
				return first
			}
			return session.NoopHooks{}
		},
	})

	// A connects; its initialisation blocks.
	p.push(wallet.AccountUpdate{Account: accountA, Connected: true})
	<-first.started

	// B supersedes A while A is still initialising.
	p.push(wallet.AccountUpdate{Account: accountB, Connected: true})
	waitForState(t, c, StateInitialised)

	// A's late result must not disturb B's session.
	close(first.release)
	time.Sleep(20 * time.Millisecond)
	if c.State() != StateInitialised {
		t.Fatalf("stale initialisation disturbed controller state: %v", c.State())
	}
	if v, _ := ui.Value(ChannelSessionData); v.(session.Data).Account != accountB {
		t.Fatalf("stale initialisation overwrote session data: %+v", v)
	}
}

func TestRememberedLoginSurvivesReconnect(t *testing.T) {
	storage := session.NewMemoryStorage()
	p := &stubProvider{}
	ui := uistate.New()
	c, err := New(Config{AppID: "myapp", AppName: "My App"}, p, storage, ui, nil)
	if err != nil {
		t.Fatalf("controller construction failed: %v", err)
	}
	t.Cleanup(c.Close)

	p.push(wallet.AccountUpdate{Account: accountA, Connected: true})
	waitForState(t, c, StateInitialised)
	if err := c.Login(context.Background(), true); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	p.push(wallet.AccountUpdate{Connected: false})
	waitForState(t, c, StateClosed)

	p.push(wallet.AccountUpdate{Account: accountA, Connected: true})
	waitForState(t, c, StateInitialised)
	if v, _ := ui.Value(ChannelSessionState); v != string(session.StateLoggedIn) {
		t.Fatalf("remembered login not restored, session state %v", v)
	}
	data, _ := ui.Value(ChannelSessionData)
	if data.(session.Data).Login == nil {
		t.Fatal("expected login data in restored session")
	}
}
