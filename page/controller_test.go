package page

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/greetboard/contract"
	contract_mock "github.com/mqy/greetboard/contract/mock"
	"github.com/mqy/greetboard/wallet"
	wallet_mock "github.com/mqy/greetboard/wallet/mock"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type viewRecorder struct {
	sync.Mutex
	views []*View
}

func (r *viewRecorder) onView(v *View) {
	r.Lock()
	r.views = append(r.views, v)
	r.Unlock()
}

func (r *viewRecorder) last() *View {
	r.Lock()
	defer r.Unlock()
	if len(r.views) == 0 {
		return &View{}
	}
	return r.views[len(r.views)-1]
}

func (r *viewRecorder) eventually(t *testing.T, cond func(v *View) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(r.last()) }, waitFor, tick)
}

func newTestSub() event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

// startPage runs a controller until the test ends. Create the gomock
// controller before calling it so teardown calls are checked.
func startPage(t *testing.T, provider wallet.Provider, proxy contract.IProxy) (*Controller, *viewRecorder) {
	rec := &viewRecorder{}
	dial := func(ctx context.Context, sess *wallet.Session) (contract.IProxy, error) {
		return proxy, nil
	}
	c := NewController(t.Name(), provider, dial, rec.onView)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c, rec
}

var testMsgs = []contract.Message{
	{Sender: addrAA, Text: "hi", Timestamp: 100},
	{Sender: addrBB, Text: "yo", Timestamp: 200},
}

type fixture struct {
	provider *wallet_mock.MockProvider
	proxy    *contract_mock.MockIProxy
	c        *Controller
	rec      *viewRecorder
	onNew    chan func()
}

// connectedPage returns a page that has finished connecting with testMsgs in its feed.
func connectedPage(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		provider: wallet_mock.NewMockProvider(ctrl),
		proxy:    contract_mock.NewMockIProxy(ctrl),
		onNew:    make(chan func(), 1),
	}

	f.provider.EXPECT().RequestAccounts(gomock.Any(), "secret").Return(wallet.NewSession(addrAA, nil), nil)
	gomock.InOrder(
		f.proxy.EXPECT().List(gomock.Any()).Return(testMsgs, nil),
		f.proxy.EXPECT().Subscribe(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, fn func()) (event.Subscription, error) {
				f.onNew <- fn
				return newTestSub(), nil
			}),
	)
	f.proxy.EXPECT().Close()

	f.c, f.rec = startPage(t, f.provider, f.proxy)
	f.c.Connect("secret")
	f.rec.eventually(t, func(v *View) bool {
		return v.Connected() && !v.Connecting && !v.Loading && len(v.Feed) == 2
	})
	return f
}

func TestConnectWithoutProvider(t *testing.T) {
	c, rec := startPage(t, nil, nil)

	c.Connect("")
	rec.eventually(t, func(v *View) bool { return v.Notice != nil })

	v := rec.last()
	assert.Equal(t, NoticeUnavailable, v.Notice.Kind)
	assert.False(t, v.Connected())
	assert.False(t, v.Connecting)
}

func TestConnectLoadsFeedOnceThenSubscribes(t *testing.T) {
	f := connectedPage(t)

	v := f.rec.last()
	assert.Equal(t, addrAA.Hex(), v.Account)
	assert.Nil(t, v.Notice)
	assert.Equal(t, 2, v.Feed[0].Label)
	assert.Equal(t, "yo", v.Feed[0].Text)
	assert.Equal(t, 1, v.Feed[1].Label)
	assert.Equal(t, "hi", v.Feed[1].Text)

	// Already connected: no second wallet request.
	f.c.Connect("secret")
	f.c.SetInput("marker")
	f.rec.eventually(t, func(v *View) bool { return v.Input == "marker" })
}

func TestNotificationTriggersOneList(t *testing.T) {
	f := connectedPage(t)

	onNew := <-f.onNew
	more := append([]contract.Message{}, testMsgs...)
	more = append(more, contract.Message{Sender: addrBB, Text: "again", Timestamp: 300})
	f.proxy.EXPECT().List(gomock.Any()).Return(more, nil).Times(1)

	onNew()
	f.rec.eventually(t, func(v *View) bool { return len(v.Feed) == 3 && !v.Loading })

	v := f.rec.last()
	assert.Equal(t, "again", v.Feed[0].Text)
	assert.Equal(t, 3, v.Feed[0].Label)
}

func TestUserRefreshFailureKeepsFeed(t *testing.T) {
	f := connectedPage(t)

	f.proxy.EXPECT().List(gomock.Any()).Return(nil, errors.New("rpc down"))
	f.c.Refresh()
	f.rec.eventually(t, func(v *View) bool { return v.Notice != nil && !v.Loading })

	v := f.rec.last()
	assert.Equal(t, NoticeFailed, v.Notice.Kind)
	assert.Len(t, v.Feed, 2)
}

func TestBlankInputNeverSubmits(t *testing.T) {
	f := connectedPage(t)

	f.c.SetInput("   ")
	f.c.Submit()
	f.c.SetInput("")
	f.c.Submit()

	// Events run in order, so once the marker shows up both submits were handled.
	f.c.SetInput("marker")
	f.rec.eventually(t, func(v *View) bool { return v.Input == "marker" })
	assert.False(t, f.rec.last().Submitting)
	assert.Equal(t, 0, f.rec.last().Sent)
}

func TestSubmitDisablesFormUntilMined(t *testing.T) {
	f := connectedPage(t)

	tx := types.NewTx(&types.LegacyTx{Nonce: 1})
	release := make(chan struct{})
	f.proxy.EXPECT().Submit(gomock.Any(), "gm").Return(tx, nil)
	f.proxy.EXPECT().WaitMined(gomock.Any(), tx).DoAndReturn(func(context.Context, *types.Transaction) error {
		<-release
		return nil
	})

	f.c.SetInput("gm")
	f.c.Submit()
	f.rec.eventually(t, func(v *View) bool { return v.Submitting })

	// Disabled while pending.
	f.c.SetInput("changed")
	f.c.Submit()

	close(release)
	f.rec.eventually(t, func(v *View) bool { return !v.Submitting })

	v := f.rec.last()
	assert.Equal(t, "", v.Input)
	assert.Equal(t, 1, v.Sent)
	assert.Equal(t, MaxInputLen, v.Remaining)
	assert.Nil(t, v.Notice)
}

func TestSubmitFailureKeepsInput(t *testing.T) {
	f := connectedPage(t)

	f.proxy.EXPECT().Submit(gomock.Any(), "gm").Return(nil, wallet.ErrRejected)
	f.c.SetInput("gm")
	f.c.Submit()
	f.rec.eventually(t, func(v *View) bool { return v.Notice != nil && !v.Submitting })

	v := f.rec.last()
	assert.Equal(t, NoticeCancelled, v.Notice.Kind)
	assert.Equal(t, "gm", v.Input)
	assert.Equal(t, 0, v.Sent)

	tx := types.NewTx(&types.LegacyTx{Nonce: 2})
	f.proxy.EXPECT().Submit(gomock.Any(), "gm").Return(tx, nil)
	f.proxy.EXPECT().WaitMined(gomock.Any(), tx).Return(contract.ErrReverted)
	f.c.Submit()
	f.rec.eventually(t, func(v *View) bool {
		return v.Notice != nil && v.Notice.Kind == NoticeFailed && !v.Submitting
	})
	assert.Equal(t, "gm", f.rec.last().Input)
}

func TestConnectRejectedThenRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := wallet_mock.NewMockProvider(ctrl)
	proxy := contract_mock.NewMockIProxy(ctrl)

	gomock.InOrder(
		provider.EXPECT().RequestAccounts(gomock.Any(), "").Return(nil, wallet.ErrRejected),
		provider.EXPECT().RequestAccounts(gomock.Any(), "secret").Return(wallet.NewSession(addrBB, nil), nil),
	)
	proxy.EXPECT().List(gomock.Any()).Return(nil, nil)
	proxy.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Return(newTestSub(), nil)
	proxy.EXPECT().Close()

	c, rec := startPage(t, provider, proxy)

	c.Connect("")
	rec.eventually(t, func(v *View) bool { return v.Notice != nil && !v.Connecting })
	assert.Equal(t, NoticeCancelled, rec.last().Notice.Kind)
	assert.False(t, rec.last().Connected())

	c.Connect("secret")
	rec.eventually(t, func(v *View) bool { return v.Connected() && !v.Connecting })
	assert.Nil(t, rec.last().Notice)
	assert.Empty(t, rec.last().Feed)
}

func TestInitialListFailureStillConnects(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := wallet_mock.NewMockProvider(ctrl)
	proxy := contract_mock.NewMockIProxy(ctrl)

	provider.EXPECT().RequestAccounts(gomock.Any(), "secret").Return(wallet.NewSession(addrAA, nil), nil)
	proxy.EXPECT().List(gomock.Any()).Return(nil, errors.New("execution reverted"))
	proxy.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Return(newTestSub(), nil)
	proxy.EXPECT().Close()

	c, rec := startPage(t, provider, proxy)
	c.Connect("secret")
	rec.eventually(t, func(v *View) bool { return v.Connected() && !v.Connecting && !v.Loading })

	v := rec.last()
	require.NotNil(t, v.Notice)
	assert.Equal(t, NoticeFailed, v.Notice.Kind)
	assert.Empty(t, v.Feed)
}

func TestRefreshIgnoredWhileConnecting(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := wallet_mock.NewMockProvider(ctrl)
	proxy := contract_mock.NewMockIProxy(ctrl)

	release := make(chan struct{})
	provider.EXPECT().RequestAccounts(gomock.Any(), "secret").Return(wallet.NewSession(addrAA, nil), nil)
	proxy.EXPECT().List(gomock.Any()).DoAndReturn(func(context.Context) ([]contract.Message, error) {
		<-release
		return testMsgs, nil
	}).Times(1)
	proxy.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Return(newTestSub(), nil)
	proxy.EXPECT().Close()

	c, rec := startPage(t, provider, proxy)
	c.Connect("secret")
	rec.eventually(t, func(v *View) bool { return v.Connected() && v.Loading })

	c.Refresh()
	c.SetInput("marker")
	rec.eventually(t, func(v *View) bool { return v.Input == "marker" })
	assert.True(t, rec.last().Connecting)

	close(release)
	rec.eventually(t, func(v *View) bool { return !v.Connecting && !v.Loading && len(v.Feed) == 2 })
	assert.Nil(t, rec.last().Notice)
}

func TestSubscriptionLossShowsNotice(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := wallet_mock.NewMockProvider(ctrl)
	proxy := contract_mock.NewMockIProxy(ctrl)

	lost := make(chan struct{})
	provider.EXPECT().RequestAccounts(gomock.Any(), "secret").Return(wallet.NewSession(addrAA, nil), nil)
	proxy.EXPECT().List(gomock.Any()).Return(testMsgs, nil)
	proxy.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Return(event.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case <-lost:
			return errors.New("connection reset")
		case <-quit:
			return nil
		}
	}), nil)
	proxy.EXPECT().Close()

	c, rec := startPage(t, provider, proxy)
	c.Connect("secret")
	rec.eventually(t, func(v *View) bool { return v.Connected() && !v.Connecting && !v.Loading })
	assert.Nil(t, rec.last().Notice)

	close(lost)
	rec.eventually(t, func(v *View) bool { return v.Notice != nil })

	v := rec.last()
	assert.Equal(t, NoticeFailed, v.Notice.Kind)
	assert.Contains(t, v.Notice.Text, "connection reset")
	assert.Len(t, v.Feed, 2)
}

func TestDoneAfterTeardown(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := wallet_mock.NewMockProvider(ctrl)
	proxy := contract_mock.NewMockIProxy(ctrl)

	var unsubscribed, closed atomic.Bool
	provider.EXPECT().RequestAccounts(gomock.Any(), "secret").Return(wallet.NewSession(addrAA, nil), nil)
	proxy.EXPECT().List(gomock.Any()).Return(nil, nil)
	proxy.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Return(event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		unsubscribed.Store(true)
		return nil
	}), nil)
	proxy.EXPECT().Close().Do(func() {
		// teardown is slow; Done must still wait for it.
		time.Sleep(50 * time.Millisecond)
		closed.Store(true)
	})

	rec := &viewRecorder{}
	dial := func(ctx context.Context, sess *wallet.Session) (contract.IProxy, error) {
		return proxy, nil
	}
	c := NewController(t.Name(), provider, dial, rec.onView)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	c.Connect("secret")
	rec.eventually(t, func(v *View) bool { return v.Connected() && !v.Connecting && !v.Loading })

	cancel()
	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("page did not stop")
	}
	assert.True(t, unsubscribed.Load())
	assert.True(t, closed.Load())
}
