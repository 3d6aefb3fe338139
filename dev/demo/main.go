package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"

	"github.com/mqy/greetboard/contract"
	"github.com/mqy/greetboard/page"
	"github.com/mqy/greetboard/wallet"
)

// The demo greeter plays other users: it sends a greeting on every tick so that
// open pages see notifications arrive.

var (
	rpcUrl         = flag.String("rpc-url", "ws://127.0.0.1:8545", "chain RPC endpoint")
	contractAddr   = flag.String("contract", contract.DefaultAddress, "Greeting contract address")
	keystoreDir    = flag.String("keystore", "", "keystore dir with the greeter key")
	passphrase     = flag.String("passphrase", "", "greeter key passphrase")
	tickerDuration = flag.Duration("ticker-duration", 30*time.Second, "ticker duration")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if *keystoreDir == "" {
		panic("--keystore is required.")
	}
	if !common.IsHexAddress(*contractAddr) {
		panic("--contract is not a hex address.")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ks, err := wallet.OpenKeystore(*keystoreDir, "", true)
	if err != nil {
		panic(err)
	}
	sess, err := ks.RequestAccounts(ctx, *passphrase)
	if err != nil {
		panic(err)
	}

	proxy, err := contract.Dial(ctx, *rpcUrl, common.HexToAddress(*contractAddr), sess)
	if err != nil {
		panic(err)
	}
	defer proxy.Close()

	ticker := time.NewTicker(*tickerDuration)
	defer ticker.Stop()

	for i := 1; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tx, err := proxy.Submit(ctx, fmt.Sprintf("hello #%d from %s", i, page.ShortAddress(sess.Account.Hex())))
		if err != nil {
			glog.Errorf("submit: %v", err)
			continue
		}
		if err := proxy.WaitMined(ctx, tx); err != nil {
			glog.Errorf("tx %s: %v", tx.Hash().Hex(), err)
			continue
		}
		glog.Infof("greeting #%d mined in tx %s", i, tx.Hash().Hex())
	}
}
