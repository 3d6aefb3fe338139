package page

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/golang/glog"

	"github.com/mqy/greetboard/contract"
	"github.com/mqy/greetboard/wallet"
)

// Dialer builds a contract proxy that signs through sess.
type Dialer func(ctx context.Context, sess *wallet.Session) (contract.IProxy, error)

// View is a snapshot of the page, published after every transition.
type View struct {
	Account    string  `json:"account,omitempty"`
	Short      string  `json:"short,omitempty"`
	Connecting bool    `json:"connecting"`
	Loading    bool    `json:"loading"`
	Submitting bool    `json:"submitting"`
	Input      string  `json:"input"`
	Remaining  int     `json:"remaining"`
	Sent       int     `json:"sent"` // confirmed submissions; a bump means "clear the form"
	Feed       []Item  `json:"feed"`
	Notice     *Notice `json:"notice,omitempty"`
}

func (v *View) Connected() bool {
	return v.Account != ""
}

// Controller owns the state of one page: wallet session, feed and form.
// Every transition runs on the Run goroutine; RPC calls run on their own
// goroutines and post their results back, so the loop never blocks on the chain.
type Controller struct {
	name     string
	provider wallet.Provider
	dial     Dialer
	onView   func(*View)
	loc      *time.Location

	events  chan func()
	done    chan struct{} // loop exited; post gives up
	stopped chan struct{} // teardown finished
	ctx     context.Context

	// loop-owned state.
	session    *wallet.Session
	proxy      contract.IProxy
	sub        event.Subscription
	feed       Feed
	input      string
	connecting bool
	loading    int
	submitting bool
	sent       int
	notice     *Notice
}

// NewController creates a page. A nil provider means no wallet is installed.
func NewController(name string, provider wallet.Provider, dial Dialer, onView func(*View)) *Controller {
	return &Controller{
		name:     name,
		provider: provider,
		dial:     dial,
		onView:   onView,
		loc:      time.Local,
		events:   make(chan func(), 16),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Run processes page events until ctx is done, then drops the subscription and the proxy.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	glog.V(5).Infof("page %s: running", c.name)
	defer func() {
		// close done first: a subscription callback blocked in post must see it
		// before Unsubscribe can return.
		close(c.done)
		c.teardown()
		close(c.stopped)
		glog.V(5).Infof("page %s: exited", c.name)
	}()

	c.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.events:
			fn()
			c.publish()
		}
	}
}

// Done is closed once Run has dropped the subscription and closed the proxy.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

// Connect requests wallet access, then loads the feed and subscribes for changes.
func (c *Controller) Connect(passphrase string) {
	c.post(func() { c.connect(passphrase) })
}

// SetInput replaces the form input, clamped to MaxInputLen characters.
func (c *Controller) SetInput(text string) {
	c.post(func() { c.setInput(text) })
}

// Submit sends the current input as a greeting.
func (c *Controller) Submit() {
	c.post(c.submit)
}

// Refresh reloads the feed.
func (c *Controller) Refresh() {
	c.post(func() { c.refresh(triggerUser) })
}

// post queues fn on the loop. It reports false when the loop has exited.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) connect(passphrase string) {
	if c.connecting || c.session != nil {
		glog.V(3).Infof("page %s: connect ignored, connecting: %v, session: %v", c.name, c.connecting, c.session)
		return
	}
	c.notice = nil

	if c.provider == nil {
		connectsTotal.WithLabelValues(string(NoticeUnavailable)).Inc()
		c.notice = newNotice("Connect", wallet.ErrProviderMissing)
		return
	}

	c.connecting = true
	ctx := c.ctx
	go func() {
		sess, err := c.provider.RequestAccounts(ctx, passphrase)
		if err == nil {
			var proxy contract.IProxy
			if proxy, err = c.dial(ctx, sess); err == nil {
				if !c.post(func() { c.connected(sess, proxy) }) {
					proxy.Close()
				}
				return
			}
		}
		c.post(func() { c.connectFailed(err) })
	}()
}

func (c *Controller) connectFailed(err error) {
	c.connecting = false
	c.notice = newNotice("Connect", err)
	connectsTotal.WithLabelValues(string(c.notice.Kind)).Inc()
	glog.Errorf("page %s: connect error: %v", c.name, err)
}

func (c *Controller) connected(sess *wallet.Session, proxy contract.IProxy) {
	connectsTotal.WithLabelValues("ok").Inc()
	glog.Infof("page %s: connected as %s", c.name, sess)

	c.session = sess
	c.proxy = proxy
	c.loading++

	// The initial list lands before the subscription exists, so no notification
	// can trigger a refresh ahead of it.
	ctx := c.ctx
	go func() {
		msgs, listErr := proxy.List(ctx)
		c.post(func() { c.listed(triggerInitial, msgs, listErr) })

		sub, subErr := proxy.Subscribe(ctx, c.notify)
		if !c.post(func() { c.subscribed(sub, subErr) }) && sub != nil {
			sub.Unsubscribe()
		}
	}()
}

func (c *Controller) subscribed(sub event.Subscription, err error) {
	c.connecting = false
	if err != nil {
		glog.Errorf("page %s: subscribe error: %v", c.name, err)
		c.notice = newNotice("Watching for new greetings", err)
		return
	}
	c.sub = sub

	go func() {
		if err, ok := <-sub.Err(); ok && err != nil {
			c.post(func() {
				glog.Errorf("page %s: subscription lost: %v", c.name, err)
				c.notice = newNotice("Watching for new greetings", err)
			})
		}
	}()
}

// notify runs on the subscription goroutine.
func (c *Controller) notify() {
	notificationsTotal.Inc()
	c.post(func() { c.refresh(triggerNotify) })
}

func (c *Controller) refresh(trigger string) {
	if c.proxy == nil {
		return
	}
	// a user refresh must not land ahead of the initial list.
	if trigger == triggerUser && c.connecting {
		glog.V(3).Infof("page %s: refresh ignored while connecting", c.name)
		return
	}
	c.loading++

	proxy, ctx := c.proxy, c.ctx
	go func() {
		msgs, err := proxy.List(ctx)
		c.post(func() { c.listed(trigger, msgs, err) })
	}()
}

// listed replaces the feed wholesale; with overlapping refreshes the last to land wins.
func (c *Controller) listed(trigger string, msgs []contract.Message, err error) {
	c.loading--
	refreshesTotal.WithLabelValues(trigger, result(err)).Inc()
	if err != nil {
		glog.Errorf("page %s: list (%s) error: %v", c.name, trigger, err)
		c.notice = newNotice("Loading greetings", err)
		return
	}
	c.feed = NewFeed(msgs)
	glog.V(5).Infof("page %s: feed refreshed (%s), %d greetings", c.name, trigger, len(c.feed))
}

func (c *Controller) setInput(text string) {
	if c.submitting {
		return
	}
	c.input = clampInput(text)
}

func (c *Controller) submit() {
	if c.proxy == nil || c.submitting {
		return
	}
	if !validInput(c.input) {
		glog.V(3).Infof("page %s: blank input, not submitting", c.name)
		return
	}
	c.notice = nil
	c.submitting = true

	text, proxy, ctx := c.input, c.proxy, c.ctx
	go func() {
		tx, err := proxy.Submit(ctx, text)
		if err == nil {
			glog.V(5).Infof("page %s: tx %s pending", c.name, tx.Hash().Hex())
			err = proxy.WaitMined(ctx, tx)
		}
		c.post(func() { c.submitted(err) })
	}()
}

func (c *Controller) submitted(err error) {
	c.submitting = false
	submissionsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		glog.Errorf("page %s: submit error: %v", c.name, err)
		c.notice = newNotice("Sending greeting", err)
		return
	}
	c.input = ""
	c.sent++
}

func (c *Controller) teardown() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.proxy != nil {
		c.proxy.Close()
		c.proxy = nil
	}
}

func (c *Controller) view() *View {
	v := &View{
		Connecting: c.connecting,
		Loading:    c.loading > 0,
		Submitting: c.submitting,
		Input:      c.input,
		Remaining:  remaining(c.input),
		Sent:       c.sent,
		Feed:       c.feed.Items(c.loc),
		Notice:     c.notice,
	}
	if c.session != nil {
		v.Account = c.session.Account.Hex()
		v.Short = ShortAddress(v.Account)
	}
	return v
}

func (c *Controller) publish() {
	if c.onView != nil {
		c.onView(c.view())
	}
}
