// Package status maps connection state to what a user sees.
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/ihiteshgupta/avatar-client/internal/state"
	"github.com/ihiteshgupta/avatar-client/internal/transport"
)

// Indicator colors, named after the frontend palette.
const (
	ColorGreen  = "green.500"
	ColorYellow = "yellow.500"
	ColorRed    = "red.500"
)

// Indicator text keys.
const (
	KeyConnected        = "wsStatus.connected"
	KeyConnecting       = "wsStatus.connecting"
	KeyClickToConnect   = "wsStatus.clickToConnect"
	KeyClickToReconnect = "wsStatus.clickToReconnect"
)

var labels = map[string]string{
	KeyConnected:        "Connected",
	KeyConnecting:       "Connecting",
	KeyClickToConnect:   "Click to Connect",
	KeyClickToReconnect: "Click to Reconnect",
}

// Indicator is the connection badge for a transport state.
type Indicator struct {
	Color          string `json:"color"`
	TextKey        string `json:"text_key"`
	IsDisconnected bool   `json:"is_disconnected"`
}

// Label returns the English text for the indicator.
func (i Indicator) Label() string {
	if l, ok := labels[i.TextKey]; ok {
		return l
	}
	return i.TextKey
}

// IndicatorFor maps a transport state to its indicator. Unknown states are
// shown as disconnected.
func IndicatorFor(transportState string, attempted bool) Indicator {
	switch transport.ConnectionState(transportState) {
	case transport.StateOpen:
		return Indicator{Color: ColorGreen, TextKey: KeyConnected}
	case transport.StateConnecting:
		return Indicator{Color: ColorYellow, TextKey: KeyConnecting}
	default:
		key := KeyClickToConnect
		if attempted {
			key = KeyClickToReconnect
		}
		return Indicator{Color: ColorRed, TextKey: key, IsDisconnected: true}
	}
}

// Tracker remembers whether the user asked for a reconnect.
type Tracker struct {
	mu        sync.Mutex
	attempted bool
}

// Indicator returns the indicator for transportState.
func (t *Tracker) Indicator(transportState string) Indicator {
	t.mu.Lock()
	defer t.mu.Unlock()
	return IndicatorFor(transportState, t.attempted)
}

// Click runs reconnect unless the transport is open or already connecting.
// It reports whether reconnect was called.
func (t *Tracker) Click(transportState string, reconnect func()) bool {
	switch transport.ConnectionState(transportState) {
	case transport.StateOpen, transport.StateConnecting:
		return false
	}
	t.mu.Lock()
	t.attempted = true
	t.mu.Unlock()
	reconnect()
	return true
}

func colorFor(name string) *color.Color {
	switch name {
	case ColorGreen:
		return color.New(color.FgGreen)
	case ColorYellow:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func colorForStatus(s state.State) *color.Color {
	switch s {
	case state.StateReady:
		return color.New(color.FgGreen, color.Bold)
	case state.StateConnecting:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// Render writes a one line summary of the indicator and readiness status.
func Render(w io.Writer, ind Indicator, s state.State) {
	dot := colorFor(ind.Color).Sprint("●")
	fmt.Fprintf(w, "%s %s  [%s]\n", dot, ind.Label(), colorForStatus(s).Sprint(s.String()))
}
