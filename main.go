package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/greetboard/contract"
	"github.com/mqy/greetboard/page"
	"github.com/mqy/greetboard/server"
	"github.com/mqy/greetboard/tui"
	"github.com/mqy/greetboard/wallet"
	"github.com/mqy/greetboard/web"
	"github.com/mqy/greetboard/ws"
)

var (
	flagAddr     = flag.String("addr", "127.0.0.1:8000", "server address, ip:port")
	flagPidFile  = flag.String("pid-file", "greetboard.pid", "pid file")
	flagRpcUrl   = flag.String("rpc-url", "ws://127.0.0.1:8545", "chain RPC endpoint, ws:// or ipc path; must support log subscriptions")
	flagContract = flag.String("contract", contract.DefaultAddress, "Greeting contract address")

	flagKeystore = flag.String("keystore", "", "keystore dir of the wallet")
	flagAccount  = flag.String("account", "", "keystore account to use, defaults to the first one")
	flagSigner   = flag.String("signer", "", "external signer (clef) endpoint, overrides --keystore")
	flagLightKDF = flag.Bool("light-kdf", false, "keystore: use light scrypt parameters, for dev keys only")

	flagPageQuota      = flag.Uint("page-quota", 4, "max open pages, allowed value in [1, 64]")
	flagPprofDir       = flag.String("pprof-dir", "pprof", "dir to save pprof data files")
	flagDisableMetrics = flag.Bool("disable-metrics", false, "disable prometheus metrics")
	flagStaticDir      = flag.String("static-dir", "", "serve the page from this dir instead of the embedded one")

	flagTui = flag.Bool("tui", false, "show the page in this terminal instead of serving it")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	pid := os.Getpid()

	if err := savePid(*flagPidFile, pid); err != nil {
		return errorf("pid file: %v", err)
	}
	defer func() {
		_ = os.Remove(*flagPidFile)
	}()

	provider, err := newProvider()
	if err != nil {
		return errorf("wallet: %v", err)
	}
	dial := newDialer(*flagRpcUrl, common.HexToAddress(*flagContract))

	if *flagTui {
		return runTui(provider, dial)
	}

	pprofDir := filepath.Join(*flagPprofDir, strconv.Itoa(pid))
	if err := os.MkdirAll(pprofDir, 0750); err != nil {
		return errorf("--pprof-dir: error create dir `%s`: %v", pprofDir, err)
	}
	defer func() {
		_ = os.RemoveAll(pprofDir)
	}()

	hub := ws.NewHub(provider, dial, ws.Conf{PageQuota: int(*flagPageQuota)})

	pageHandler, err := web.Handler(*flagStaticDir)
	if err != nil {
		return errorf("--static-dir: %v", err)
	}

	mux := http.NewServeMux()
	if !*flagDisableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
	}
	mux.Handle("/ws", hub)
	mux.Handle("/", pageHandler)

	srv := server.New(&server.Conf{
		Addr: *flagAddr,
		Hub:  hub,
		Mux:  mux,
	})
	lis, err := srv.Listen()
	if err != nil {
		return errorf("%v", err)
	}

	stopNotifyChan := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Run(ctx, lis, stopNotifyChan)

	glog.Infof("greetboard server is serving http://%s, contract %s via %s", *flagAddr, *flagContract, *flagRpcUrl)
	glog.Infof("`kill -USR1 %d` to dump goroutines; `kill -USR2 %d` to start/stop profiler; `CTRL+c` or `kill %d` to graceful stop", pid, pid, pid)

	var stopping bool

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)

	var prof *Profiler

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			dumpGoroutines(pprofDir)
		case syscall.SIGUSR2:
			if prof == nil {
				prof = StartProfiler(pprofDir)
			} else {
				prof.Stop()
				prof = nil
			}
		case syscall.SIGTERM, syscall.SIGINT:
			if stopping {
				glog.Infof("greetboard server is already in stop")
				continue
			}
			stopping = true
			glog.Infof("received signal `%s` stopping", sig.String())
			go func() {
				if prof != nil {
					prof.Stop()
				}
				cancel()
				<-stopNotifyChan
				close(stopNotifyChan)
				signal.Stop(sigCh)
				close(sigCh)
			}()
		}
	}

	glog.Info("greetboard server exited")
	return 0
}

// runTui drives a single page from the terminal. glog keeps writing to its log files.
func runTui(provider wallet.Provider, dial page.Dialer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	views := tui.NewViews()
	c := page.NewController("tui", provider, dial, views.Push)
	go c.Run(ctx)

	err := tui.Run(ctx, c, views)
	cancel()
	<-c.Done()
	if err != nil {
		return errorf("tui: %v", err)
	}
	return 0
}

// newProvider picks the wallet: the external signer when configured, otherwise the keystore.
// No keystore means no wallet; pages then report it as unavailable.
func newProvider() (wallet.Provider, error) {
	if *flagSigner != "" {
		glog.Infof("wallet: external signer %s", *flagSigner)
		return wallet.NewExternalProvider(*flagSigner), nil
	}

	ks, err := wallet.OpenKeystore(*flagKeystore, *flagAccount, *flagLightKDF)
	if errors.Is(err, wallet.ErrProviderMissing) {
		glog.Warningf("wallet: %v, pages will have no wallet", err)
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	glog.Infof("wallet: keystore %s", *flagKeystore)
	return ks, nil
}

func newDialer(rpcURL string, address common.Address) page.Dialer {
	return func(ctx context.Context, sess *wallet.Session) (contract.IProxy, error) {
		p, err := contract.Dial(ctx, rpcURL, address, sess)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func validateFlags() int {
	if !*flagTui {
		if *flagAddr == "" {
			return errorf("--addr is required")
		}
		if err := validateAddr(*flagAddr); err != nil {
			return errorf("--addr: %v", err)
		}
		if *flagPprofDir == "" {
			return errorf("--pprof-dir is required")
		}
	}
	if *flagPidFile == "" {
		return errorf("--pid-file is required")
	}

	if *flagRpcUrl == "" {
		return errorf("--rpc-url is required")
	}
	if strings.HasPrefix(*flagRpcUrl, "http://") || strings.HasPrefix(*flagRpcUrl, "https://") {
		return errorf("--rpc-url: `%s` can not subscribe to logs, use ws:// or an ipc path", *flagRpcUrl)
	}

	if !common.IsHexAddress(*flagContract) {
		return errorf("--contract: `%s` is not a hex address", *flagContract)
	}
	if *flagAccount != "" && !common.IsHexAddress(*flagAccount) {
		return errorf("--account: `%s` is not a hex address", *flagAccount)
	}

	if *flagPageQuota < ws.MinPageQuota || *flagPageQuota > ws.MaxPageQuota {
		return errorf("--page-quota MUST in range [%d, %d]", ws.MinPageQuota, ws.MaxPageQuota)
	}

	if *flagStaticDir != "" {
		if _, err := os.Stat(*flagStaticDir); err != nil {
			return errorf("error stat static dir `%s`: %v", *flagStaticDir, err)
		}
	}

	return 0
}

func validateAddr(s string) error {
	ips, _, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("error split host port from `%s`: %v", s, err)
	}
	ip := net.ParseIP(ips)
	if ip == nil {
		return fmt.Errorf("error parse IP from host `%s`", ips)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("`%s` is not loopback or private address", ips)
	}
	return nil
}

func errorf(fmt string, args ...interface{}) int {
	glog.Errorf(fmt, args...)
	return 1
}

func savePid(name string, pid int) error {
	if _, err := os.Stat(name); err == nil {
		// Ok, see, if we have a stale lockfile here
		content, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		if len(content) > 0 {
			oldPid, err := strconv.Atoi(strings.TrimSpace(string(content)))
			if err != nil {
				return err
			}

			proc, err := os.FindProcess(oldPid)
			if err != nil {
				return err
			}
			defer proc.Release()

			if err := proc.Signal(syscall.Signal(0)); err == nil {
				return fmt.Errorf("pid file: exists with pid: %d, the process is running", oldPid)
			}
			glog.Infof("pid file exists with pid: %d, but is not running", oldPid)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("pid file: stat error: %v", err)
	}

	if err := os.WriteFile(name, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("pid file: write error: %v", err)
	}
	glog.Infof("pid file: write pid done")
	return nil
}
