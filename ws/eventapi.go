package ws

import (
	"fmt"
	"unicode/utf8"

	"github.com/mqy/greetboard/page"
)

const (
	MinPageQuota = 1
	MaxPageQuota = 64

	ErrorCodeInvalidArguments = 3
	ErrorCodeUnavailable      = 14
)

// ClientMsg is a request from the page. Exactly one field is set.
type ClientMsg struct {
	Connect *ConnectReq `json:"connect,omitempty"`
	Input   *string     `json:"input,omitempty"`
	Submit  *SubmitReq  `json:"submit,omitempty"`
	Refresh bool        `json:"refresh,omitempty"`
}

type ConnectReq struct {
	Passphrase string `json:"passphrase"`
}

type SubmitReq struct {
	Text string `json:"text"`
}

// ServerMsg is pushed to the page.
type ServerMsg struct {
	View    *page.View `json:"view,omitempty"`
	Error   *Error     `json:"error,omitempty"`
	Kickoff bool       `json:"kickoff,omitempty"`
}

type Error struct {
	Code   int        `json:"code"`
	Params []string   `json:"params,omitempty"`
	Req    *ClientMsg `json:"req,omitempty"`
}

// PageApi turns client requests into page actions.
type PageApi struct {
	page *page.Controller
}

func NewApi(p *page.Controller) *PageApi {
	return &PageApi{page: p}
}

func (a *PageApi) Connect(req *ConnectReq) *Error {
	a.page.Connect(req.Passphrase)
	return nil
}

func (a *PageApi) SetInput(text string) *Error {
	if n := utf8.RuneCountInString(text); n > page.MaxInputLen {
		return newInvalidArgumentError(&ClientMsg{Input: &text},
			fmt.Sprintf("input: %d characters exceeds limit %d", n, page.MaxInputLen))
	}
	a.page.SetInput(text)
	return nil
}

func (a *PageApi) Submit(req *SubmitReq) *Error {
	if n := utf8.RuneCountInString(req.Text); n > page.MaxInputLen {
		return newInvalidArgumentError(&ClientMsg{Submit: req},
			fmt.Sprintf("text: %d characters exceeds limit %d", n, page.MaxInputLen))
	}
	a.page.SetInput(req.Text)
	a.page.Submit()
	return nil
}

func (a *PageApi) Refresh() *Error {
	a.page.Refresh()
	return nil
}

func newInvalidArgumentError(req *ClientMsg, errs ...string) *Error {
	return &Error{
		Code:   ErrorCodeInvalidArguments,
		Params: errs,
		Req:    req,
	}
}
