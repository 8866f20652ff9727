//go:build !unix

package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/fbpage-agent/internal/models"
)

const signalHelp = "Ctrl+C cancels after the current item."

type runControls interface {
	TogglePause() models.RunState
	RequestCancel() bool
}

// watchSignals maps Ctrl+C to cancel; there is no pause signal on this platform
func watchSignals(ctrl runControls) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ch:
				if ctrl.RequestCancel() {
					fmt.Println("\n>> cancelling after the current item")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
