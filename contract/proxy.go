package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/golang/glog"

	"github.com/mqy/greetboard/wallet"
)

var (
	ErrEmptyText = errors.New("message text is empty")
	ErrReadOnly  = errors.New("proxy has no signer")
	ErrReverted  = errors.New("transaction reverted")
)

// Backend is the RPC surface the proxy needs; *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// IProxy is the typed interface over the Greeting contract.
type IProxy interface {
	// Submit sends a `sendGreeting` transaction and returns it while still pending.
	Submit(ctx context.Context, text string) (*types.Transaction, error)

	// WaitMined blocks until tx is included; a failed receipt is an error.
	WaitMined(ctx context.Context, tx *types.Transaction) error

	// List returns all greetings in contract order, oldest first.
	List(ctx context.Context) ([]Message, error)

	// Subscribe calls onNew once per `Greeted` event until unsubscribed.
	Subscribe(ctx context.Context, onNew func()) (event.Subscription, error)

	Close()
}

type Proxy struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	opts     *bind.TransactOpts
	closer   func()
}

// NewProxy binds the Greeting contract at address. opts may be nil for a read-only proxy.
func NewProxy(address common.Address, backend Backend, opts *bind.TransactOpts) *Proxy {
	return &Proxy{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		opts:     opts,
	}
}

// Dial connects to rpcURL and binds the contract with the session's signer.
// Subscriptions need a websocket or IPC endpoint.
func Dial(ctx context.Context, rpcURL string, address common.Address, sess *wallet.Session) (*Proxy, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc `%s`: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	opts, err := sess.TransactOpts(ctx, chainID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("transact opts for %s: %w", sess, err)
	}

	glog.Infof("proxy: bound contract %s on chain %s for %s", address.Hex(), chainID, sess)
	p := NewProxy(address, client, opts)
	p.closer = client.Close
	return p, nil
}

func (p *Proxy) Submit(ctx context.Context, text string) (*types.Transaction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if p.opts == nil {
		return nil, ErrReadOnly
	}

	opts := *p.opts
	opts.Context = ctx
	tx, err := p.contract.Transact(&opts, methodSend, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", methodSend, err)
	}
	glog.V(5).Infof("proxy: sent tx %s from %s", tx.Hash().Hex(), opts.From.Hex())
	return tx, nil
}

func (p *Proxy) WaitMined(ctx context.Context, tx *types.Transaction) error {
	receipt, err := bind.WaitMined(ctx, p.backend, tx)
	if err != nil {
		return fmt.Errorf("wait tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("tx %s in block %s: %w", tx.Hash().Hex(), receipt.BlockNumber, ErrReverted)
	}
	glog.V(5).Infof("proxy: tx %s mined in block %s", tx.Hash().Hex(), receipt.BlockNumber)
	return nil
}

func (p *Proxy) List(ctx context.Context) ([]Message, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodList); err != nil {
		return nil, fmt.Errorf("%s: %w", methodList, err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	infos := *abi.ConvertType(out[0], new([]greetingInfo)).(*[]greetingInfo)
	msgs := make([]Message, 0, len(infos))
	for _, g := range infos {
		msgs = append(msgs, toMessage(g))
	}
	return msgs, nil
}

func (p *Proxy) Subscribe(ctx context.Context, onNew func()) (event.Subscription, error) {
	logs, sub, err := p.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, eventNew)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", eventNew, err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				glog.V(5).Infof("proxy: %s in tx %s, removed: %v", eventNew, l.TxHash.Hex(), l.Removed)
				onNew()
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (p *Proxy) Close() {
	if p.closer != nil {
		p.closer()
	}
}
