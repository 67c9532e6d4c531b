package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"divination-ai/internal/domain/model"
	"divination-ai/internal/infra/adapters/telegram"
	"divination-ai/internal/infra/i18n"
	"divination-ai/internal/usecase"
)

// consoleObserver redraws a single progress line while polling.
type consoleObserver struct {
	mu   sync.Mutex
	w    io.Writer
	tr   *i18n.Translator
	line bool
}

func newConsoleObserver(w io.Writer, tr *i18n.Translator) *consoleObserver {
	return &consoleObserver{w: w, tr: tr}
}

func (c *consoleObserver) OnState(snap model.SessionSnapshot) {
	if snap.State == model.SessionPolling {
		c.OnProgress(snap)
	}
}

func (c *consoleObserver) OnProgress(snap model.SessionSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "\r%s %s %3.0f%% %6s", c.tr.T("interpreting"), telegram.ProgressBar(snap.Progress, 30), snap.Progress, snap.Elapsed.Truncate(time.Second))
	c.line = true
}

// final prints the outcome once the session has settled.
func (c *consoleObserver) final(snap model.SessionSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.line {
		fmt.Fprintln(c.w)
		c.line = false
	}
	switch snap.State {
	case model.SessionCompleted:
		fmt.Fprintln(c.w, "\n"+snap.Message)
	case model.SessionError:
		fmt.Fprintln(c.w, c.tr.T("msg.job_failed")+": "+snap.Message)
	default:
		fmt.Fprintf(c.w, "%s: %s\n", c.tr.T("state."+string(snap.State)), telegram.LocalMessage(c.tr, snap.Message))
	}
}

// multiObserver fans snapshots out in order.
type multiObserver []usecase.SessionObserver

func (m multiObserver) OnState(snap model.SessionSnapshot) {
	for _, o := range m {
		o.OnState(snap)
	}
}

func (m multiObserver) OnProgress(snap model.SessionSnapshot) {
	for _, o := range m {
		o.OnProgress(snap)
	}
}
