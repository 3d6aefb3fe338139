package page

import (
	"strings"
	"time"

	"github.com/mqy/greetboard/contract"
)

const timeLayout = "Jan 2, 03:04 PM"

// Feed holds messages newest first. It is rebuilt from scratch on every refresh.
type Feed []contract.Message

// NewFeed reverses the contract order (oldest first) for display.
func NewFeed(msgs []contract.Message) Feed {
	out := make(Feed, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}

// Label is the 1-based position of the i-th displayed item in contract order.
func (f Feed) Label(i int) int {
	return len(f) - i
}

// Item is a display-ready feed entry.
type Item struct {
	Label     int    `json:"label"`
	Sender    string `json:"sender"`
	Short     string `json:"short"`
	Initials  string `json:"initials"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	When      string `json:"when"`
}

func (f Feed) Items(loc *time.Location) []Item {
	out := make([]Item, 0, len(f))
	for i, m := range f {
		sender := m.Sender.Hex()
		out = append(out, Item{
			Label:     f.Label(i),
			Sender:    sender,
			Short:     ShortAddress(sender),
			Initials:  Initials(sender),
			Text:      m.Text,
			Timestamp: m.Timestamp,
			When:      time.Unix(m.Timestamp, 0).In(loc).Format(timeLayout),
		})
	}
	return out
}

// ShortAddress renders 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// Initials are the two hex digits after the 0x prefix.
func Initials(addr string) string {
	if len(addr) < 4 {
		return strings.ToUpper(addr)
	}
	return strings.ToUpper(addr[2:4])
}
