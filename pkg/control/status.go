package control

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-petpal/pkg/link"
)

// PeerStatus is the UI view of one peer.
type PeerStatus struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	State     string     `json:"state"`
	URL       string     `json:"url"`
	Attempts  int        `json:"reconnect_attempts"`
	LastError string     `json:"last_error,omitempty"`
	ConnID    string     `json:"conn_id,omitempty"`
	Stats     link.Stats `json:"stats"`
	At        time.Time  `json:"at"`
}

// Connected reports whether the peer is open.
func (s PeerStatus) Connected() bool {
	return s.State == link.StateOpen.String()
}

// StatusLabel renders a state as the text shown next to a peer.
func StatusLabel(name string, state link.State, lastErr error) string {
	switch state {
	case link.StateOpen:
		return fmt.Sprintf("%s connected", name)
	case link.StateConnecting:
		return fmt.Sprintf("Connecting to %s", name)
	case link.StateClosed:
		if lastErr != nil {
			return fmt.Sprintf("%s connection error", name)
		}
	}
	return fmt.Sprintf("%s not connected", name)
}
