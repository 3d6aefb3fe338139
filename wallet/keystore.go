package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
)

// KeystoreProvider serves accounts from a local encrypted keystore directory.
// The passphrase given to RequestAccounts plays the role of the user's approval.
type KeystoreProvider struct {
	sync.Mutex
	ks      *keystore.KeyStore
	account common.Address // zero: first account in the keystore
}

// OpenKeystore opens the keystore at dir. A missing directory means no wallet.
func OpenKeystore(dir string, account string, lightKDF bool) (*KeystoreProvider, error) {
	if dir == "" {
		return nil, ErrProviderMissing
	}
	if fi, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrProviderMissing
		}
		return nil, fmt.Errorf("keystore: stat `%s`: %w", dir, err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("keystore: `%s` is not a directory", dir)
	}

	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if lightKDF {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	return NewKeystoreProvider(keystore.NewKeyStore(dir, scryptN, scryptP), account)
}

func NewKeystoreProvider(ks *keystore.KeyStore, account string) (*KeystoreProvider, error) {
	p := &KeystoreProvider{ks: ks}
	if account != "" {
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("keystore: invalid account address `%s`", account)
		}
		p.account = common.HexToAddress(account)
	}
	return p, nil
}

func (p *KeystoreProvider) pick() (accounts.Account, error) {
	all := p.ks.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, ErrProviderMissing
	}
	if p.account == (common.Address{}) {
		return all[0], nil
	}
	acct, err := p.ks.Find(accounts.Account{Address: p.account})
	if err != nil {
		return accounts.Account{}, fmt.Errorf("keystore: account %s: %w", p.account.Hex(), ErrProviderMissing)
	}
	return acct, nil
}

// RequestAccounts implements Provider.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context, passphrase string) (*Session, error) {
	p.Lock()
	defer p.Unlock()

	acct, err := p.pick()
	if err != nil {
		return nil, err
	}
	if passphrase == "" {
		return nil, ErrRejected
	}

	if err := p.ks.Unlock(acct, passphrase); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			glog.V(3).Infof("keystore: unlock %s declined", acct.Address.Hex())
			return nil, ErrRejected
		}
		return nil, fmt.Errorf("keystore: unlock %s: %w", acct.Address.Hex(), err)
	}
	glog.Infof("keystore: account %s unlocked", acct.Address.Hex())

	ks := p.ks
	return NewSession(acct.Address, func(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
		return bind.NewKeyStoreTransactorWithChainID(ks, acct, chainID)
	}), nil
}
