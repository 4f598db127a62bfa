package session

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidKeyMaterial = errors.New("invalid login key material")

// LoginKey is the app-level login credential: a secp256k1 keypair derived
// deterministically from a wallet signature, distinct from the wallet's own
// key.
type LoginKey struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  string // compressed public key, 0x-prefixed hex
	Address    common.Address
}

// DeriveLoginKey derives key material from the keccak hash of a login
// signature. The same signature always yields the same key.
func DeriveLoginKey(signature []byte) (*LoginKey, error) {
	if len(signature) == 0 {
		return nil, ErrInvalidKeyMaterial
	}
	priv, err := crypto.ToECDSA(crypto.Keccak256(signature))
	if err != nil {
		return nil, err
	}
	return newLoginKey(priv), nil
}

// ParseLoginKey restores key material from its persisted hex form.
func ParseLoginKey(hexKey string) (*LoginKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrInvalidKeyMaterial
	}
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}
	return newLoginKey(priv), nil
}

func newLoginKey(priv *ecdsa.PrivateKey) *LoginKey {
	return &LoginKey{
		PrivateKey: priv,
		PublicKey:  "0x" + hex.EncodeToString(crypto.CompressPubkey(&priv.PublicKey)),
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
	}
}

// Hex returns the private key material in its persisted form.
func (k *LoginKey) Hex() string {
	return hex.EncodeToString(crypto.FromECDSA(k.PrivateKey))
}
