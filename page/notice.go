package page

import (
	"errors"

	"github.com/mqy/greetboard/wallet"
)

type NoticeKind string

const (
	// NoticeUnavailable: no wallet provider. Blocking, not retried.
	NoticeUnavailable NoticeKind = "unavailable"
	// NoticeCancelled: the user declined; repeating the action is safe.
	NoticeCancelled NoticeKind = "cancelled"
	// NoticeFailed: RPC or transaction failure; the action was abandoned.
	NoticeFailed NoticeKind = "failed"
)

type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

func newNotice(action string, err error) *Notice {
	switch {
	case errors.Is(err, wallet.ErrProviderMissing):
		return &Notice{Kind: NoticeUnavailable, Text: "No wallet is available. Configure a keystore or an external signer."}
	case errors.Is(err, wallet.ErrRejected):
		return &Notice{Kind: NoticeCancelled, Text: action + " was declined."}
	default:
		return &Notice{Kind: NoticeFailed, Text: action + " failed: " + err.Error()}
	}
}
