package contract

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

// WalletProvider is the signing capability injected into the gateway. It
// replaces any ambient global wallet object so tests can supply doubles.
type WalletProvider interface {
	Address() splitbill.Address
	NewTransactor(ctx context.Context) (*bind.TransactOpts, error)
}

// KeyedWallet signs transactions with an in-memory private key.
type KeyedWallet struct {
	privateKey *ecdsa.PrivateKey
	address    splitbill.Address
	chainID    *big.Int
}

// NewKeyedWallet builds a KeyedWallet from a hex-encoded private key.
func NewKeyedWallet(privateKeyHex string, chainID *big.Int) (*KeyedWallet, error) {
	if chainID == nil {
		return nil, fmt.Errorf("%w: chain id is required", splitbill.ErrInvalidServiceConfig)
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	privateKey, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed private key: %v", splitbill.ErrInvalidServiceConfig, err)
	}
	address, err := splitbill.NewAddress(crypto.PubkeyToAddress(privateKey.PublicKey).Hex())
	if err != nil {
		return nil, err
	}
	return &KeyedWallet{privateKey: privateKey, address: address, chainID: chainID}, nil
}

// Address returns the wallet's normalized address.
func (wallet *KeyedWallet) Address() splitbill.Address {
	return wallet.address
}

// NewTransactor returns fresh transact options bound to the request context.
func (wallet *KeyedWallet) NewTransactor(ctx context.Context) (*bind.TransactOpts, error) {
	transactor, err := bind.NewKeyedTransactorWithChainID(wallet.privateKey, wallet.chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: transactor init: %v", splitbill.ErrConnection, err)
	}
	transactor.Context = ctx
	return transactor, nil
}
