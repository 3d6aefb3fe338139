package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/glog"
)

// ExternalProvider asks an external signer (Clef or compatible) for accounts.
// The signer shows its own approval prompt; the passphrase is not used.
type ExternalProvider struct {
	endpoint string

	mu     sync.Mutex
	signer *external.ExternalSigner // dialed on first use, nil until a dial succeeds
}

func NewExternalProvider(endpoint string) *ExternalProvider {
	return &ExternalProvider{endpoint: endpoint}
}

// RequestAccounts implements Provider.
func (p *ExternalProvider) RequestAccounts(ctx context.Context, _ string) (*Session, error) {
	signer, err := p.dial()
	if err != nil {
		return nil, err
	}

	// The signer swallows a denied listing and reports no accounts.
	accts := signer.Accounts()
	if len(accts) == 0 {
		return nil, ErrRejected
	}
	acct := accts[0]
	glog.Infof("external signer: account %s granted", acct.Address.Hex())

	return NewSession(acct.Address, func(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
		return &bind.TransactOpts{
			From:    acct.Address,
			Context: ctx,
			Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
				if addr != acct.Address {
					return nil, bind.ErrNotAuthorized
				}
				signed, err := signer.SignTx(acct, tx, chainID)
				if err != nil {
					return nil, classifySignerError(acct, err)
				}
				return signed, nil
			},
		}, nil
	}), nil
}

// dial connects to the signer once; every page shares the connection.
func (p *ExternalProvider) dial() (*external.ExternalSigner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signer != nil {
		return p.signer, nil
	}
	signer, err := external.NewExternalSigner(p.endpoint)
	if err != nil {
		glog.Errorf("external signer: dial `%s` error: %v", p.endpoint, err)
		return nil, fmt.Errorf("%w: %v", ErrProviderMissing, err)
	}
	glog.V(3).Infof("external signer: connected to %s", p.endpoint)
	p.signer = signer
	return signer, nil
}

// classifySignerError maps signer denials onto ErrRejected.
func classifySignerError(acct accounts.Account, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "rejected") {
		return fmt.Errorf("sign tx for %s: %w", acct.Address.Hex(), ErrRejected)
	}
	return fmt.Errorf("sign tx for %s: %w", acct.Address.Hex(), err)
}
