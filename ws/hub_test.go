package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/greetboard/contract"
	contract_mock "github.com/mqy/greetboard/contract/mock"
	"github.com/mqy/greetboard/page"
	"github.com/mqy/greetboard/wallet"
	wallet_mock "github.com/mqy/greetboard/wallet/mock"
)

var testTx = types.NewTx(&types.LegacyTx{Nonce: 7})

func newTestSub() event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

func startHub(t *testing.T, provider wallet.Provider, dial page.Dialer, quota int) (*Hub, string) {
	hub, url, stop := runHub(t, provider, dial, quota)
	t.Cleanup(func() { <-stop() })
	return hub, url
}

// runHub serves a hub until stop is called; stop returns the hub's stop done channel.
func runHub(t *testing.T, provider wallet.Provider, dial page.Dialer, quota int) (*Hub, string, func() <-chan struct{}) {
	hub := NewHub(provider, dial, Conf{PageQuota: quota})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	stopDoneC := make(chan struct{}, 1)
	go hub.Run(ctx, stopDoneC)
	hub.Online()

	stop := func() <-chan struct{} {
		cancel()
		return stopDoneC
	}
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), stop
}

func dialPage(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *ClientMsg) {
	out, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))
}

// readUntil reads server messages until cond holds.
func readUntil(t *testing.T, conn *websocket.Conn, cond func(*ServerMsg) bool) *ServerMsg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg := &ServerMsg{}
		require.NoError(t, json.Unmarshal(data, msg))
		if cond(msg) {
			return msg
		}
	}
}

func TestOfflineHubRejects(t *testing.T) {
	hub := NewHub(nil, nil, Conf{PageQuota: 1})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestConnectWithoutWallet(t *testing.T) {
	_, url := startHub(t, nil, nil, 4)
	conn := dialPage(t, url)

	first := readUntil(t, conn, func(m *ServerMsg) bool { return m.View != nil })
	assert.False(t, first.View.Connected())

	send(t, conn, &ClientMsg{Connect: &ConnectReq{}})
	msg := readUntil(t, conn, func(m *ServerMsg) bool { return m.View != nil && m.View.Notice != nil })
	assert.Equal(t, page.NoticeUnavailable, msg.View.Notice.Kind)
}

func TestConnectAndSubmit(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := wallet_mock.NewMockProvider(ctrl)
	proxy := contract_mock.NewMockIProxy(ctrl)

	addr := common.HexToAddress(contract.DefaultAddress)
	provider.EXPECT().RequestAccounts(gomock.Any(), "pw").Return(wallet.NewSession(addr, nil), nil)
	proxy.EXPECT().List(gomock.Any()).Return([]contract.Message{{Text: "hello", Timestamp: 1}}, nil)
	proxy.EXPECT().Subscribe(gomock.Any(), gomock.Any()).Return(newTestSub(), nil)
	proxy.EXPECT().Submit(gomock.Any(), "gm").Return(testTx, nil)
	proxy.EXPECT().WaitMined(gomock.Any(), testTx).Return(nil)
	proxy.EXPECT().Close()

	dial := func(ctx context.Context, sess *wallet.Session) (contract.IProxy, error) {
		return proxy, nil
	}
	_, url := startHub(t, provider, dial, 4)
	conn := dialPage(t, url)

	send(t, conn, &ClientMsg{Connect: &ConnectReq{Passphrase: "pw"}})
	msg := readUntil(t, conn, func(m *ServerMsg) bool {
		return m.View != nil && m.View.Connected() && !m.View.Connecting && !m.View.Loading
	})
	require.Len(t, msg.View.Feed, 1)
	assert.Equal(t, "hello", msg.View.Feed[0].Text)
	assert.Equal(t, "0x5FbD...0aa3", msg.View.Short)

	send(t, conn, &ClientMsg{Submit: &SubmitReq{Text: "gm"}})
	msg = readUntil(t, conn, func(m *ServerMsg) bool { return m.View != nil && m.View.Sent == 1 })
	assert.Equal(t, "", msg.View.Input)
	assert.False(t, msg.View.Submitting)
}

func TestOversizedInputIsInvalid(t *testing.T) {
	_, url := startHub(t, nil, nil, 4)
	conn := dialPage(t, url)

	text := strings.Repeat("x", page.MaxInputLen+1)
	send(t, conn, &ClientMsg{Input: &text})
	msg := readUntil(t, conn, func(m *ServerMsg) bool { return m.Error != nil })
	assert.Equal(t, ErrorCodeInvalidArguments, msg.Error.Code)

	// The connection stays open.
	send(t, conn, &ClientMsg{Refresh: true})
	readUntil(t, conn, func(m *ServerMsg) bool { return m.View != nil })
}

func TestBadRequestClosesPage(t *testing.T) {
	hub, url := startHub(t, nil, nil, 4)
	conn := dialPage(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := readUntil(t, conn, func(m *ServerMsg) bool { return m.Error != nil })
	assert.Equal(t, ErrorCodeInvalidArguments, msg.Error.Code)

	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestPageQuotaKicksOffOldest(t *testing.T) {
	hub, url := startHub(t, nil, nil, 1)

	first := dialPage(t, url)
	readUntil(t, first, func(m *ServerMsg) bool { return m.View != nil })

	second := dialPage(t, url)
	readUntil(t, first, func(m *ServerMsg) bool { return m.Kickoff })
	readUntil(t, second, func(m *ServerMsg) bool { return m.View != nil })

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopReleasesPages(t *testing.T) {
	before := testutil.ToFloat64(pagesActive)
	hub, url, stop := runHub(t, nil, nil, 4)

	for i := 0; i < 2; i++ {
		conn := dialPage(t, url)
		readUntil(t, conn, func(m *ServerMsg) bool { return m.View != nil })
	}
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, before+2, testutil.ToFloat64(pagesActive))

	select {
	case <-stop():
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, before, testutil.ToFloat64(pagesActive))
}

func TestSlowPeerDoesNotBlockStop(t *testing.T) {
	hub, url, stop := runHub(t, nil, nil, 4)
	conn := dialPage(t, url)

	// every oversized input is answered with an error echoing it; the peer never reads.
	text := strings.Repeat("x", 1500)
	out, err := json.Marshal(&ClientMsg{Input: &text})
	require.NoError(t, err)
	for i := 0; i < 20000; i++ {
		conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			break
		}
	}

	select {
	case <-stop():
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.Count())
}
