// Package session owns the locally persisted login context for one
// (application, chain, account) triple. A session's identity is fixed at
// construction; a wallet account change produces a new session instance, not
// a mutation of this one.
package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"community-dapp/go-client/internal/apperrors"
)

type State string

const (
	StateOpen     State = "open"
	StateLoggedIn State = "logged-in"
)

// Wallet is the subset of the wallet connector a session consumes: identity
// reads and the login signature request. The session knows nothing about
// chain transactions.
type Wallet interface {
	Account() (common.Address, bool)
	ChainID() (uint64, bool)
	Login(ctx context.Context, account common.Address) ([]byte, error)
}

// record is the full persisted form of a session. Every save overwrites the
// whole record.
type record struct {
	Key  string          `json:"key,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ID derives the session identity. Deterministic and collision-free across
// distinct (app, chain, account) triples; the account segment is lowercase
// hex without the 0x prefix.
func ID(appID string, chainID uint64, account common.Address) string {
	return fmt.Sprintf("%s-%d-%s", appID, chainID, hex.EncodeToString(account.Bytes()))
}

type Session struct {
	id      string
	wallet  Wallet
	storage Storage
	hooks   Hooks
	log     *slog.Logger
	// onStateChange fires only when the derived state actually transitions.
	onStateChange func(State)

	mu       sync.Mutex
	account  common.Address
	chainID  uint64
	state    State
	loginKey *LoginKey
}

type Option func(*Session)

func WithHooks(h Hooks) Option {
	return func(s *Session) {
		if h != nil {
			s.hooks = h
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithStateListener registers the listener notified on state transitions.
func WithStateListener(fn func(State)) Option {
	return func(s *Session) { s.onStateChange = fn }
}

// New constructs a session for the wallet's current account and chain,
// loading any persisted record for its identity. Malformed stored key data is
// treated as "not logged in" rather than a fatal error.
func New(appID string, w Wallet, storage Storage, opts ...Option) (*Session, error) {
	if strings.TrimSpace(appID) == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "application id is required")
	}
	if w == nil || storage == nil {
		return nil, apperrors.New(apperrors.CodeConfiguration, "wallet and storage are required")
	}
	account, ok := w.Account()
	if !ok {
		return nil, apperrors.New(apperrors.CodeWalletUnavailable, "wallet account is not available")
	}
	chainID, ok := w.ChainID()
	if !ok {
		return nil, apperrors.New(apperrors.CodeWalletUnavailable, "wallet chain is not available")
	}

	s := &Session{
		id:      ID(appID, chainID, account),
		wallet:  w,
		storage: storage,
		hooks:   NoopHooks{},
		log:     slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "session"),
		account: account,
		chainID: chainID,
		state:   StateOpen,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session", s.id)
	s.loadState()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialise runs identity-specific setup and returns the public session
// data. The minimal session has nothing to set up.
func (s *Session) Initialise(ctx context.Context) (Data, error) {
	if err := s.hooks.Initialise(ctx); err != nil {
		return Data{}, err
	}
	return s.Data(), nil
}

// LoginData is the public view of the session's key material.
type LoginData struct {
	Address   common.Address `json:"address"`
	PublicKey string         `json:"publicKey"`
}

// Data is the public session state exposed to the UI. Login is nil when not
// logged in.
type Data struct {
	Account common.Address `json:"account"`
	ChainID uint64         `json:"chainId"`
	Login   *LoginData     `json:"login,omitempty"`
}

func (s *Session) Data() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Data{Account: s.account, ChainID: s.chainID}
	if s.loginKey != nil {
		d.Login = &LoginData{Address: s.loginKey.Address, PublicKey: s.loginKey.PublicKey}
	}
	return d
}

// Login derives the session's key material from a wallet signature over the
// login message. Already logged in is a no-op. The record is persisted only
// when rememberMe is set; otherwise the login is lost on reload.
func (s *Session) Login(ctx context.Context, rememberMe bool) error {
	s.mu.Lock()
	if s.state == StateLoggedIn {
		s.mu.Unlock()
		return nil
	}
	account := s.account
	s.mu.Unlock()

	signature, err := s.wallet.Login(ctx, account)
	if err != nil {
		return err
	}
	key, err := DeriveLoginKey(signature)
	if err != nil {
		return err
	}
	if err := s.hooks.AfterLogin(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.loginKey = key
	var saveErr error
	if rememberMe {
		saveErr = s.saveStateLocked()
	}
	changed, state := s.calculateStateLocked()
	s.mu.Unlock()

	s.notify(changed, state)
	return saveErr
}

// Logout clears the key material and always writes the cleared record
// through, regardless of how the login was created.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.loginKey = nil
	s.hooks.AfterLogout()
	saveErr := s.saveStateLocked()
	changed, state := s.calculateStateLocked()
	s.mu.Unlock()

	s.notify(changed, state)
	return saveErr
}

// loadState restores the persisted record exactly once, at construction.
func (s *Session) loadState() {
	var rec record
	value, ok, err := s.storage.Get(s.id)
	if err != nil {
		s.log.Warn("failed to read persisted session state", "err", err)
	} else if ok {
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			s.log.Warn("persisted session state is malformed, ignoring", "err", err)
			rec = record{}
		}
	}

	s.mu.Lock()
	if rec.Key != "" {
		key, err := ParseLoginKey(rec.Key)
		if err != nil {
			s.log.Warn("persisted login key is malformed, ignoring", "err", err)
		} else {
			s.loginKey = key
		}
	}
	s.hooks.RestoreState(rec.Data)
	changed, state := s.calculateStateLocked()
	s.mu.Unlock()

	s.notify(changed, state)
}

// saveStateLocked overwrites the full persisted record for this identity.
func (s *Session) saveStateLocked() error {
	rec := record{Data: s.hooks.CaptureState()}
	if s.loginKey != nil {
		rec.Key = s.loginKey.Hex()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.storage.Set(s.id, string(raw))
}

func (s *Session) calculateStateLocked() (changed bool, state State) {
	old := s.state
	if s.loginKey != nil {
		s.state = StateLoggedIn
	} else {
		s.state = StateOpen
	}
	return s.state != old, s.state
}

func (s *Session) notify(changed bool, state State) {
	if changed {
		s.log.Debug("session state changed", "state", string(state))
		if s.onStateChange != nil {
			s.onStateChange(state)
		}
	}
}
