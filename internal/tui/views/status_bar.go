package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// StatusBar displays persistent session and connection status.
type StatusBar struct {
	*tview.TextView
	session string
	status  string
	flash   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetStatus updates the connection status display.
func (sb *StatusBar) SetStatus(status string) {
	sb.status = status
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" [::b]swappio[-:-:-] · %s · %s", sb.session, sb.status)
	if sb.flash != "" {
		line += " · [yellow]" + sb.flash + "[-]"
	}
	_, _ = fmt.Fprint(sb, line)
}
