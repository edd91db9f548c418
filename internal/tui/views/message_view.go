package views

import (
	"fmt"

	"github.com/nmanikumar5/swappio/internal/chat"
	"github.com/rivo/tview"
)

// MessageView displays the active conversation's thread.
type MessageView struct {
	*tview.TextView
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetCounterpart updates the title with the counterpart's name.
func (mv *MessageView) SetCounterpart(name string) {
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update re-renders the thread. Entries arrive oldest first; a pending
// entry is marked until its acknowledgement swaps it for the confirmed
// message.
func (mv *MessageView) Update(entries []chat.Entry) {
	mv.Clear()

	for _, e := range entries {
		sender := e.Sender
		// Pending and sent entries are always our own side.
		if e.Status != chat.StatusReceived {
			sender = "You"
		}
		marker := ""
		if e.Status == chat.StatusPending {
			marker = " [::d](sending...)[-:-:-]"
		}

		ts := e.CreatedAt.Format("15:04")
		_, _ = fmt.Fprintf(mv, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n", sender, ts, marker, e.Text)
	}

	mv.ScrollToEnd()
}
