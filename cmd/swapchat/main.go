package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nmanikumar5/swappio/internal/app"
	"github.com/nmanikumar5/swappio/internal/session"
	"github.com/nmanikumar5/swappio/internal/tui"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fxApp := fx.New(
		app.Module(app.Params{SessionName: sessionName}),
		fx.Provide(tui.New),
		fx.Invoke(runTUI),
		fx.NopLogger,
	)

	fxApp.Run()
}

// runTUI hands the terminal to the TUI once the client is up and shuts
// the whole fx app down when the user quits.
func runTUI(lc fx.Lifecycle, ui *tui.App, sh fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := ui.Run(); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
				_ = sh.Shutdown()
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			ui.Stop()
			return nil
		},
	})
}
