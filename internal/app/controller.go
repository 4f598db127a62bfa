// Package app composes the wallet connector and the session into the
// application controller: it maps wallet account changes to session
// open/close and keeps the UI-facing state store up to date.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"community-dapp/go-client/internal/apperrors"
	"community-dapp/go-client/internal/session"
	"community-dapp/go-client/internal/uistate"
	"community-dapp/go-client/internal/wallet"
)

type State string

const (
	StateClosed       State = "closed"
	StateInitialising State = "initialising"
	StateInitialised  State = "initialised"
	StateFailed       State = "failed"
)

// Channels the controller publishes on the UI state store.
const (
	ChannelState        = "state"
	ChannelError        = "error"
	ChannelSessionState = "session-state"
	ChannelSessionData  = "session-data"
)

var (
	ErrNoSessionLogin  = errors.New("connect wallet before logging in")
	ErrNoSessionLogout = errors.New("connect wallet before logging out")
)

// Config identifies the application and tunes its collaborators.
type Config struct {
	// AppID keys persisted session state; AppName appears in the wallet
	// login message. Both are required.
	AppID   string
	AppName string

	// NewHooks builds the app-specific session extension for each new
	// session. Optional; nil means the minimal no-op session.
	NewHooks func() session.Hooks

	WalletOptions []wallet.Option
}

// Controller owns the application state machine. State transitions are
// performed only here; the session and the connector never touch it.
type Controller struct {
	cfg     Config
	wallet  *wallet.Connector
	storage session.Storage
	ui      *uistate.Store
	log     *slog.Logger

	mu      sync.Mutex
	state   State
	session *session.Session
	offAcct func()
}

// New validates the configuration, constructs the wallet connector around the
// provider and registers the UI state surface.
func New(cfg Config, provider wallet.Provider, storage session.Storage, ui *uistate.Store, log *slog.Logger) (*Controller, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "application id must be configured")
	}
	if strings.TrimSpace(cfg.AppName) == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "application name must be configured")
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if cfg.NewHooks == nil {
		cfg.NewHooks = func() session.Hooks { return session.NoopHooks{} }
	}

	c := &Controller{
		cfg:     cfg,
		storage: storage,
		ui:      ui,
		log:     log.With("component", "app"),
		state:   StateClosed,
	}
	c.wallet = wallet.New(cfg.AppName, provider, cfg.WalletOptions...)

	ui.Register(ChannelState, string(StateClosed))
	ui.Register(ChannelError, nil)
	ui.Register(ChannelSessionState, string(session.StateOpen))
	ui.Register(ChannelSessionData, session.Data{})

	off, err := c.wallet.On(wallet.EventAccountChanged, c.handleAccountChanged)
	if err != nil {
		return nil, err
	}
	c.offAcct = off
	return c, nil
}

// Wallet exposes the connector for chain operations outside the session
// lifecycle (contract calls, chain switching).
func (c *Controller) Wallet() *wallet.Connector { return c.wallet }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Login proxies to the current session.
func (c *Controller) Login(ctx context.Context, rememberMe bool) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return ErrNoSessionLogin
	}
	return sess.Login(ctx, rememberMe)
}

// Logout proxies to the current session.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return ErrNoSessionLogout
	}
	return sess.Logout()
}

// Close detaches the controller from wallet events and tears down any live
// session state.
func (c *Controller) Close() {
	if c.offAcct != nil {
		c.offAcct()
		c.offAcct = nil
	}
	c.wallet.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSessionLocked()
	c.setStateLocked(StateClosed)
}

// handleAccountChanged performs full teardown before evaluating the new
// account. There is no direct transition between two live sessions.
func (c *Controller) handleAccountChanged(payload any) {
	upd, ok := payload.(wallet.AccountUpdate)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeSessionLocked()
	if upd.Connected {
		c.openSessionLocked()
	} else {
		c.setStateLocked(StateClosed)
	}
}

// closeSessionLocked resets the session surface unconditionally: even when no
// session is live, a previous failed attempt may have left an error published.
func (c *Controller) closeSessionLocked() {
	c.session = nil
	_ = c.ui.Dispatch(ChannelError, nil)
	_ = c.ui.Dispatch(ChannelSessionData, session.Data{})
	_ = c.ui.Dispatch(ChannelSessionState, string(session.StateOpen))
}

func (c *Controller) openSessionLocked() {
	sess, err := session.New(c.cfg.AppID, c.wallet, c.storage,
		session.WithHooks(c.cfg.NewHooks()),
		session.WithLogger(c.log),
		session.WithStateListener(func(st session.State) {
			_ = c.ui.Dispatch(ChannelSessionState, string(st))
		}),
	)
	if err != nil {
		c.log.Warn("session construction failed", "err", err)
		c.setStateLocked(StateFailed)
		_ = c.ui.Dispatch(ChannelError, err)
		return
	}
	c.session = sess
	c.setStateLocked(StateInitialising)

	// Initialisation may outlive this session: a later account change
	// supersedes it, and its result is then discarded.
	go c.initialiseSession(sess)
}

func (c *Controller) initialiseSession(sess *session.Session) {
	data, err := sess.Initialise(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess {
		c.log.Debug("discarding stale session initialisation", "session", sess.ID())
		return
	}
	if err != nil {
		c.log.Warn("session initialisation failed", "session", sess.ID(), "err", err)
		c.setStateLocked(StateFailed)
		_ = c.ui.Dispatch(ChannelError, err)
		return
	}
	_ = c.ui.Dispatch(ChannelSessionData, data)
	c.setStateLocked(StateInitialised)
}

func (c *Controller) setStateLocked(state State) {
	c.state = state
	_ = c.ui.Dispatch(ChannelState, string(state))
}
