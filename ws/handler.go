package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/mqy/greetboard/page"
)

type SessionError int

const (
	ReadError  SessionError = 1
	WriteError SessionError = 2
	PingError  SessionError = 3
	BadRequest SessionError = 4
	ServerStop SessionError = 5
	KickedOff  SessionError = 6
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 4096
)

// CheckOrigin is left to the default same-origin check: connect requests carry passphrases.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Session describes one page connection.
type Session struct {
	Sid        string `json:"sid"`
	Ip         string `json:"ip"`
	CreateTime int64  `json:"create_time"`
}

// Handler manages an active page connection.
// Every websocket connection gets its own page controller.
type Handler struct {
	sync.Mutex

	hub     *Hub
	api     *PageApi
	page    *page.Controller
	cancel  context.CancelFunc
	session *Session
	seq     uint64
	conn    *websocket.Conn

	dataChan chan *SessionData

	// latest unsent view; views coalesce, only the newest matters.
	view  *page.View
	viewC chan struct{}

	closing bool
}

// SessionData is the data structure for `dataChan`.
type SessionData struct {
	Error     SessionError `json:"error,omitempty"`
	ServerMsg *ServerMsg   `json:"resp,omitempty"`
}

func (h *Handler) String() string {
	out, _ := json.Marshal(h.session)
	return string(out)
}

func (h *Handler) close(cause SessionError) {
	h.Lock()
	defer h.Unlock()
	if h.closing {
		return
	}

	h.closing = true

	// WriteControl may run concurrently with a sendLoop write.
	_ = h.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
	h.conn.Close()

	close(h.dataChan)
	h.cancel()

	glog.V(5).Infof("session closed, cause: %d, %s", cause, h)
	h.hub.delHandler(h.session.Sid)
}

// appendDataChan never blocks: a peer that does not drain its messages is closed.
func (h *Handler) appendDataChan(v *SessionData) {
	h.Lock()
	if h.closing {
		h.Unlock()
		return
	}
	select {
	case h.dataChan <- v:
		h.Unlock()
		return
	default:
	}
	h.Unlock()

	glog.Errorf("appendDataChan(): data chan full, session: %s", h)
	h.close(BadRequest)
}

// pushView is the page's view callback. It never blocks the page loop.
func (h *Handler) pushView(v *page.View) {
	h.Lock()
	h.view = v
	h.Unlock()

	select {
	case h.viewC <- struct{}{}:
	default:
	}
}

func (h *Handler) takeView() *page.View {
	h.Lock()
	defer h.Unlock()
	v := h.view
	h.view = nil
	return v
}

func sendServerMsg(conn *websocket.Conn, msg *ServerMsg) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, out)
}

func (h *Handler) recvLoop() {
	defer func() { glog.V(5).Infof("recvLoop(): exited, session: %s", h.String()) }()

	h.conn.SetReadLimit(readLimit)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(s string) error {
		h.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, msg, err := h.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Errorf("recvLoop(): read error: %v", err)
			}
			h.appendDataChan(&SessionData{Error: ReadError})
			return
		}

		if msgType != websocket.TextMessage {
			glog.Errorf("recvLoop(): unexpected message type: %d", msgType)
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
				Error: newInvalidArgumentError(nil, "websocket only supports TextMessage"),
			}})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		req := ClientMsg{}
		if err := json.Unmarshal(msg, &req); err != nil {
			glog.Errorf("recvLoop(): message error: err: %v", err)
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
				Error: newInvalidArgumentError(nil, fmt.Sprintf("unmarshal error: %v", err)),
			}})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		var apiErr *Error
		if v := req.Connect; v != nil {
			// the passphrase is never logged.
			glog.V(5).Infof("recvLoop(): connect, session: %s", h)
			apiErr = h.api.Connect(v)
		} else if v := req.Submit; v != nil {
			glog.V(5).Infof("recvLoop(): submit %q, session: %s", v.Text, h)
			apiErr = h.api.Submit(v)
		} else if v := req.Input; v != nil {
			apiErr = h.api.SetInput(*v)
		} else if req.Refresh {
			apiErr = h.api.Refresh()
		} else {
			glog.Errorf("recvLoop(): unsupported request: %s", string(msg))
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
				Error: newInvalidArgumentError(&req, "unsupported request"),
			}})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		if apiErr != nil {
			glog.Errorf("recvLoop(): request error: %+v", apiErr)
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{Error: apiErr}})
		}
	}
}

func (h *Handler) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("sendLoop(): exited, session: %s", h.String())
	}()

	for {
		select {
		case v, ok := <-h.dataChan:
			if !ok { // chan was closed
				h.conn.Close()
				glog.V(5).Infof("sendLoop(): data chan closed, session: %s", h.String())
				return
			}

			if v.Error > 0 {
				h.close(v.Error)
				return
			} else if v.ServerMsg == nil {
				// should not happen.
				panic(fmt.Sprintf("sendLoop(), unknown data from dataChan: %#+v", v))
			}

			if err := sendServerMsg(h.conn, v.ServerMsg); err != nil {
				glog.Errorf("sendLoop(), error write message. session: %s, err: %v", h.String(), err)
				h.close(WriteError)
				return
			}
			if v.ServerMsg.Kickoff {
				h.close(KickedOff)
				return
			}
		case <-h.viewC:
			v := h.takeView()
			if v == nil {
				continue
			}
			if glog.V(5) {
				glog.Infof("sendLoop(): view, feed: %d, notice: %+v, session: %s", len(v.Feed), v.Notice, h.String())
			}
			if err := sendServerMsg(h.conn, &ServerMsg{View: v}); err != nil {
				glog.Errorf("sendLoop(), error write view. session: %s, err: %v", h.String(), err)
				h.close(WriteError)
				return
			}
		case <-pingTicker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.Errorf("sendLoop(), error write ping message. session: %s, err: %v", h, err)
				h.close(PingError)
				return
			}
		}
	}
}

func writeUnavailable(w http.ResponseWriter, text string) {
	http.Error(w, text, http.StatusServiceUnavailable)
}
