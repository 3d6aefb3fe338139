package ws

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/pborman/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mqy/greetboard/page"
	"github.com/mqy/greetboard/wallet"
)

var pagesActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "greetboard",
	Name:      "pages_active",
	Help:      "Number of open page connections.",
})

type Conf struct {
	// Max open pages; the oldest are kicked off beyond it.
	PageQuota int
}

// Hub works as a hub that manages and serves pages.
type Hub struct {
	conf     Conf
	provider wallet.Provider
	dial     page.Dialer
	hstore   *HandlerStore
	pages    sync.WaitGroup
	seq      uint64
	online   atomic.Bool
}

// NewHub creates a `Hub`. A nil provider serves pages without a wallet.
func NewHub(provider wallet.Provider, dial page.Dialer, conf Conf) *Hub {
	if conf.PageQuota < MinPageQuota {
		conf.PageQuota = MinPageQuota
	}
	return &Hub{
		conf:     conf,
		provider: provider,
		dial:     dial,
		hstore:   newHandlerStore(),
	}
}

// Run blocks until ctx is done, then closes every page.
func (h *Hub) Run(ctx context.Context, stopDoneNotifyC chan<- struct{}) {
	<-ctx.Done()
	h.Offline()
	glog.Infof("close connections ...")
	h.hstore.close()
	// kicked off and peer closed pages are no longer in the store.
	h.pages.Wait()
	glog.Infof("close connections done")
	stopDoneNotifyC <- struct{}{}
}

// ServeHTTP handles websocket requests from the peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.online.Load() {
		writeUnavailable(w, "This server is not accepting pages")
		return
	}

	sess := &Session{
		Sid:        strings.ReplaceAll(uuid.New(), "-", ""),
		CreateTime: time.Now().Unix(),
		Ip:         getRemoteIP(r),
	}

	// If the upgrade fails, then Upgrade replies to the client with an HTTP error response.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("ServeHTTP(): upgrader.Upgrade error, ip: %s, err: %s", sess.Ip, err)
		return
	}

	// NOTE:  after upgrade, `w.WriteHeader(...)`` causes error `response.Write on hijacked connection`.

	ctx, cancel := context.WithCancel(context.Background())
	handler := &Handler{
		dataChan: make(chan *SessionData, 16),
		viewC:    make(chan struct{}, 1),
		session:  sess,
		seq:      atomic.AddUint64(&h.seq, 1),
		conn:     conn,
		cancel:   cancel,
		hub:      h,
	}
	handler.page = page.NewController(sess.Sid, h.provider, h.dial, handler.pushView)
	handler.api = NewApi(handler.page)

	conn.SetCloseHandler(func(code int, text string) error {
		glog.Infof("session closed by peer, session: %s, code: %d, text: %s", handler, code, text)
		h.delHandler(sess.Sid)
		return nil
	})

	h.pages.Add(1)
	go func() {
		defer h.pages.Done()
		handler.page.Run(ctx)
	}()
	h.addHandler(handler)

	go handler.recvLoop()
	go handler.sendLoop()
}

func (h *Hub) addHandler(handler *Handler) {
	h.hstore.add(handler)
	pagesActive.Inc()
	glog.V(5).Infof("page online: %s", handler)

	for _, old := range h.hstore.beyondQuota(h.conf.PageQuota) {
		h.Kickoff(old.session.Sid)
	}
}

func (h *Hub) delHandler(sid string) {
	if h.hstore.del(sid) {
		pagesActive.Dec()
	}
}

// Online starts accepting pages.
func (h *Hub) Online() {
	glog.Infof("Online()")
	h.online.Store(true)
}

// Offline rejects new pages, open ones stay.
func (h *Hub) Offline() {
	glog.Infof("Offline()")
	h.online.Store(false)
}

// Kickoff tells the page it was replaced and closes it.
func (h *Hub) Kickoff(sid string) {
	if s := h.hstore.get(sid); s != nil {
		glog.V(5).Infof("Kickoff(): kickoff local session: %s", s)
		s.appendDataChan(&SessionData{ServerMsg: &ServerMsg{Kickoff: true}})
		h.delHandler(sid)
	}
}

// Count returns the number of open pages.
func (h *Hub) Count() int {
	return h.hstore.count()
}

func getRemoteIP(r *http.Request) string {
	ip := r.Header.Get("X-REAL-IP")
	if ip == "" {
		if ips := r.Header.Get("X-FORWARDED-FOR"); ips != "" {
			slice := strings.Split(ips, ",")
			for _, x := range slice {
				if x != "" {
					ip = strings.TrimSpace(x)
				}
			}
		}
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}

	return ip
}
