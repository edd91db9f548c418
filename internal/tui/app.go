// Package tui is the interactive terminal client: a conversation list,
// the active message thread with pending-send markers, and a composer,
// all driven by bus events.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/nmanikumar5/swappio/internal/api"
	"github.com/nmanikumar5/swappio/internal/app"
	"github.com/nmanikumar5/swappio/internal/auth"
	"github.com/nmanikumar5/swappio/internal/bus"
	"github.com/nmanikumar5/swappio/internal/chat"
	"github.com/nmanikumar5/swappio/internal/status"
	"github.com/nmanikumar5/swappio/internal/store"
	"github.com/nmanikumar5/swappio/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// App is the TUI application shell.
type App struct {
	app   *tview.Application
	pages *tview.Pages

	statusBar *views.StatusBar
	convList  *views.ConversationList
	msgView   *views.MessageView
	composer  *views.Composer
	login     *views.Login

	bus       *bus.Bus
	db        *store.DB
	session   *auth.Session
	accounts  *api.Accounts
	messenger *chat.Messenger
	conn      *app.Connector
	machine   *status.Machine
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the TUI application.
func New(p app.Params, b *bus.Bus, db *store.DB, s *auth.Session, accounts *api.Accounts, messenger *chat.Messenger, conn *app.Connector, machine *status.Machine, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		login:     views.NewLogin(),
		bus:       b,
		db:        db,
		session:   s,
		accounts:  accounts,
		messenger: messenger,
		conn:      conn,
		machine:   machine,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(p.SessionName)
	a.statusBar.SetStatus(string(machine.Current()))
	a.setupCallbacks()
	a.setupLayout()
	a.setupKeys()

	return a
}

func (a *App) setupLayout() {
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewFlex().
			AddItem(a.convList, 0, 1, true).
			AddItem(right, 0, 2, false), 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	loginPage := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(a.login, 11, 0, true).
			AddItem(nil, 0, 1, false), 50, 0, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage("main", main, true, false)
	a.pages.AddPage("login", loginPage, true, false)
}

func (a *App) setupKeys() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focus := a.app.GetFocus()
		typing := focus == a.composer.InputField || a.login.HasFocus()

		switch {
		case event.Key() == tcell.KeyTab && !a.login.HasFocus():
			if focus == a.composer.InputField {
				a.app.SetFocus(a.convList)
			} else {
				a.app.SetFocus(a.composer)
			}
			return nil
		case event.Key() == tcell.KeyEscape && focus == a.composer.InputField:
			a.app.SetFocus(a.convList)
			return nil
		case event.Rune() == 'q' && !typing:
			a.app.Stop()
			return nil
		}
		return event
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if conv := a.convList.Selected(); conv != nil {
			a.openConversation(conv)
		}
	})

	a.composer.SetOnSend(func(text string) {
		if _, err := a.messenger.Send(text); err != nil {
			a.statusBar.SetFlash("Send failed: " + err.Error())
		}
	})

	a.login.SetOnSubmit(func(email, password string) {
		go func() {
			user, err := a.accounts.Login(a.ctx, email, password)
			if err != nil {
				a.logger.Warn("login failed", zap.Error(err))
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetFlash("Login failed: " + err.Error())
				})
				return
			}
			a.logger.Info("logged in", zap.String("user", user.ID))
			go a.conn.Connect(a.ctx)
			a.app.QueueUpdateDraw(func() {
				a.pages.SwitchToPage("main")
				a.app.SetFocus(a.convList)
			})
		}()
	})
}

func (a *App) openConversation(conv *store.Conversation) {
	name := conv.UserName
	if name == "" {
		name = conv.UserID
	}
	userID, listingID := conv.UserID, conv.ListingID

	go func() {
		thread, err := a.messenger.Open(a.ctx, userID, listingID)
		if err != nil {
			a.logger.Warn("open conversation failed", zap.Error(err))
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash("Load failed: " + err.Error())
			})
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetCounterpart(name)
			a.msgView.Update(thread.Entries())
			a.app.SetFocus(a.composer)
		})
	}()
}

func (a *App) reloadConversations() {
	convs, err := a.db.ListConversations(100, 0)
	if err != nil {
		a.logger.Warn("conversation reload failed", zap.Error(err))
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.convList.Update(convs)
	})
}

func (a *App) redrawThread() {
	thread := a.messenger.Thread()
	if thread == nil {
		return
	}
	entries := thread.Entries()
	a.app.QueueUpdateDraw(func() {
		a.msgView.Update(entries)
	})
}

// eventLoop translates bus events into view updates. All drawing goes
// through QueueUpdateDraw; tview is not safe to touch from here directly.
func (a *App) eventLoop() {
	chatCh, chatUnsub := a.bus.Subscribe("chat.", 64)
	syncCh, syncUnsub := a.bus.Subscribe("sync.", 64)
	sessCh, sessUnsub := a.bus.Subscribe("session.status_changed", 16)
	defer chatUnsub()
	defer syncUnsub()
	defer sessUnsub()

	for {
		select {
		case evt := <-chatCh:
			switch evt.Kind {
			case "chat.updated":
				a.redrawThread()
			case "chat.send_unacked":
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetFlash("Message not confirmed yet, still sending")
				})
			}
		case <-syncCh:
			a.reloadConversations()
		case evt := <-sessCh:
			if change, ok := evt.Payload.(status.StatusChange); ok {
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetStatus(string(change.To))
				})
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// Run starts the TUI and blocks until the user quits.
func (a *App) Run() error {
	defer a.cancel()

	if a.session.Authenticated() {
		a.pages.SwitchToPage("main")
		go func() {
			// Show cached conversations before the network sync lands.
			time.Sleep(50 * time.Millisecond)
			a.reloadConversations()
		}()
	} else {
		a.pages.SwitchToPage("login")
	}

	go a.eventLoop()

	return a.app.SetRoot(a.pages, true).Run()
}

// Stop terminates the TUI event loop.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
