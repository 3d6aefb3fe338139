package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrProviderMissing means there is no wallet to talk to. Not retried.
	ErrProviderMissing = errors.New("wallet provider is not available")

	// ErrRejected means the user declined the request. Safe to retry.
	ErrRejected = errors.New("request rejected by user")
)

type Provider interface {
	// RequestAccounts asks the wallet for access to an account.
	RequestAccounts(ctx context.Context, passphrase string) (*Session, error)
}

// TransactorFunc builds signing options bound to a chain id.
type TransactorFunc func(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)

// Session is a connected account plus the handle that signs for it.
type Session struct {
	Account    common.Address
	transactor TransactorFunc
}

func NewSession(account common.Address, transactor TransactorFunc) *Session {
	return &Session{
		Account:    account,
		transactor: transactor,
	}
}

// TransactOpts returns options that route signing through this session.
func (s *Session) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := s.transactor(ctx, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

func (s *Session) String() string {
	return s.Account.Hex()
}
