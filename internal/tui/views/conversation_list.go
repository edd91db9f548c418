package views

import (
	"fmt"
	"time"

	"github.com/nmanikumar5/swappio/internal/store"
	"github.com/rivo/tview"
)

// ConversationList is the left-hand conversation table.
type ConversationList struct {
	*tview.Table
	convs      []store.Conversation
	selectedFn func() (int, int)
}

// NewConversationList creates a new conversation table.
func NewConversationList() *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")

	cl := &ConversationList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the table with cached conversations.
func (cl *ConversationList) Update(convs []store.Conversation) {
	cl.convs = convs
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" With").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, conv := range convs {
		row := i + 1
		name := conv.UserName
		if name == "" {
			name = conv.UserID
		}
		if conv.ListingID != "" {
			name = name + " · listing"
		}
		if conv.UnreadCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, conv.UnreadCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+conv.LastMessagePreview).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(conv.LastMessageAt)).SetMaxWidth(12))
	}
}

// Selected returns the currently selected conversation, nil when the
// cursor is on the header or the list is empty.
func (cl *ConversationList) Selected() *store.Conversation {
	row, _ := cl.selectedFn()
	idx := row - 1
	if idx >= 0 && idx < len(cl.convs) {
		return &cl.convs[idx]
	}
	return nil
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan 02")
}
