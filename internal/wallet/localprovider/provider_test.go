package localprovider

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"community-dapp/go-client/internal/wallet"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var testChains = []Chain{
	{ID: 1, Name: "mainnet"},
	{ID: 84531, Name: "Base Goerli"},
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(testMnemonic, testChains)
	if err != nil {
		t.Fatalf("provider construction failed: %v", err)
	}
	return p
}

func TestDeterministicAccountFromMnemonic(t *testing.T) {
	a := newTestProvider(t)
	b := newTestProvider(t)
	if a.Address() != b.Address() {
		t.Fatalf("same mnemonic produced different accounts: %s vs %s", a.Address(), b.Address())
	}

	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		t.Fatalf("entropy failed: %v", err)
	}
	other, err := bip39.NewMnemonic(entropy)
	if err != nil {
		t.Fatalf("mnemonic failed: %v", err)
	}
	c, err := New(other, testChains)
	if err != nil {
		t.Fatalf("provider construction failed: %v", err)
	}
	if c.Address() == a.Address() {
		t.Fatal("different mnemonics produced the same account")
	}
}

func TestRejectsInvalidMnemonic(t *testing.T) {
	if _, err := New("definitely not a valid mnemonic phrase", testChains); err == nil {
		t.Fatal("expected error for invalid mnemonic")
	}
}

func TestSignatureRecoversToAccount(t *testing.T) {
	p := newTestProvider(t)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	message := "Login to My App"
	sig, err := p.RequestSignature(context.Background(), p.Address(), message)
	if err != nil {
		t.Fatalf("signature failed: %v", err)
	}
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		t.Fatalf("unexpected signature shape: len=%d v=%d", len(sig), sig[64])
	}

	recovery := make([]byte, 65)
	copy(recovery, sig)
	recovery[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), recovery)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != p.Address() {
		t.Fatal("signature does not recover to the provider account")
	}
}

func TestDeclinedSignatureReportsUserRejection(t *testing.T) {
	p := newTestProvider(t)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	p.DeclineSignatures(true)

	_, err := p.RequestSignature(context.Background(), p.Address(), "Login to My App")
	if wallet.NumericCode(err) != wallet.CodeUserRejectedRequest {
		t.Fatalf("expected code 4001, got %v", err)
	}
}

func TestSwitchToUnknownChainReports4902(t *testing.T) {
	p := newTestProvider(t)
	err := p.SwitchNetwork(context.Background(), 999999)
	if wallet.NumericCode(err) != wallet.CodeUnrecognizedChain {
		t.Fatalf("expected code 4902, got %v", err)
	}

	if err := p.SwitchNetwork(context.Background(), 84531); err != nil {
		t.Fatalf("switch to registered chain failed: %v", err)
	}
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if id, ok := p.CurrentChainID(); !ok || id != 84531 {
		t.Fatalf("active chain not switched: id=%d ok=%v", id, ok)
	}
}

func TestConnectLifecyclePushesUpdates(t *testing.T) {
	p := newTestProvider(t)

	var updates []wallet.AccountUpdate
	off := p.SubscribeAccountChanges(func(u wallet.AccountUpdate) {
		updates = append(updates, u)
	})

	if _, ok := p.CurrentAccount(); ok {
		t.Fatal("account must be absent before connect")
	}
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if acc, ok := p.CurrentAccount(); !ok || acc != p.Address() {
		t.Fatalf("unexpected account after connect: %s ok=%v", acc, ok)
	}
	p.Disconnect()
	off()
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}

	if len(updates) != 2 {
		t.Fatalf("expected 2 updates before unsubscribe, got %d", len(updates))
	}
	if !updates[0].Connected || updates[0].Account != p.Address() {
		t.Fatalf("unexpected connect update: %+v", updates[0])
	}
	if updates[1].Connected {
		t.Fatalf("unexpected disconnect update: %+v", updates[1])
	}
}

func TestSelectAccountSwitchesAndNotifies(t *testing.T) {
	p, err := New(testMnemonic, testChains, WithAccounts(3))
	if err != nil {
		t.Fatalf("provider construction failed: %v", err)
	}
	addrs := p.Addresses()
	if len(addrs) != 3 {
		t.Fatalf("expected 3 derived accounts, got %d", len(addrs))
	}
	if addrs[0] == addrs[1] || addrs[1] == addrs[2] {
		t.Fatal("derived accounts must be distinct")
	}

	var updates []wallet.AccountUpdate
	p.SubscribeAccountChanges(func(u wallet.AccountUpdate) {
		updates = append(updates, u)
	})
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := p.SelectAccount(context.Background(), 2); err != nil {
		t.Fatalf("select failed: %v", err)
	}

	if acc, ok := p.CurrentAccount(); !ok || acc != addrs[2] {
		t.Fatalf("unexpected account after select: %s ok=%v", acc, ok)
	}
	if len(updates) != 2 || updates[1].Account != addrs[2] || !updates[1].Connected {
		t.Fatalf("expected a connected update for the new account, got %+v", updates)
	}

	// The new account's key signs for it.
	sig, err := p.RequestSignature(context.Background(), addrs[2], "Login to My App")
	if err != nil {
		t.Fatalf("signature failed: %v", err)
	}
	recovery := make([]byte, 65)
	copy(recovery, sig)
	recovery[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("Login to My App")), recovery)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != addrs[2] {
		t.Fatal("signature does not recover to the selected account")
	}

	if err := p.SelectAccount(context.Background(), 7); err == nil {
		t.Fatal("expected error for out-of-range account index")
	}
}

func TestChainOpsWithoutBackendFail(t *testing.T) {
	p := newTestProvider(t)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if _, err := p.EstimateGas(context.Background(), wallet.CallMsg{From: p.Address()}); err == nil {
		t.Fatal("expected error without an RPC backend")
	}
	if _, err := p.TransactionReceipt(context.Background(), [32]byte{1}); err == nil {
		t.Fatal("expected error without an RPC backend")
	}
}
