package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"launchpad/internal/update"
)

// eventMsg carries one orchestrator event into the update loop.
type eventMsg update.Event

// eventsClosedMsg signals the event channel was closed.
type eventsClosedMsg struct{}

// launchDoneMsg reports the outcome of the launch action.
type launchDoneMsg struct {
	err error
}

type copyToastTickMsg struct{}

const copyToastDuration = 3 * time.Second

func waitForEvent(events <-chan update.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func scheduleCopyToastTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return copyToastTickMsg{}
	})
}
