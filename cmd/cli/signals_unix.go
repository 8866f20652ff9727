//go:build unix

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fbpage-agent/internal/models"
)

const signalHelp = "Ctrl+C cancels after the current item; `kill -USR1 <pid>` pauses and resumes."

// runControls is the part of the controller a foreground run exposes to signals
type runControls interface {
	TogglePause() models.RunState
	RequestCancel() bool
}

// watchSignals maps SIGINT and SIGTERM to cancel and SIGUSR1 to pause/resume
func watchSignals(ctrl runControls) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				if sig == syscall.SIGUSR1 {
					fmt.Printf("\n>> %s\n", ctrl.TogglePause())
					continue
				}
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
