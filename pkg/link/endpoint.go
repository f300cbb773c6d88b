package link

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// TransportKind selects how a peer is reached.
type TransportKind string

const (
	// TransportTCP is a raw TCP socket to a fixed port.
	TransportTCP TransportKind = "tcp"
	// TransportWS is a text websocket opened by HTTP upgrade.
	TransportWS TransportKind = "ws"
)

// Endpoint addresses one peer. It is immutable once a Session is built;
// changing it means tearing the session down and building a new one.
type Endpoint struct {
	Name      string        `yaml:"name" json:"name"`
	Host      string        `yaml:"host" json:"host"`
	Port      int           `yaml:"port" json:"port"`
	Path      string        `yaml:"path" json:"path,omitempty"`
	Transport TransportKind `yaml:"transport" json:"transport"`
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the dial URL, e.g. ws://192.168.4.1:100/ws.
func (e Endpoint) URL() string {
	u := url.URL{Scheme: string(e.Transport), Host: e.Address()}
	if e.Transport == TransportWS {
		u.Path = e.Path
	}
	return u.String()
}

func (e Endpoint) String() string {
	return e.URL()
}

// Validate checks that the endpoint can be dialed.
func (e Endpoint) Validate() error {
	if e.Name == "" {
		return errors.New("link: endpoint name is required")
	}
	if e.Host == "" {
		return fmt.Errorf("link: endpoint %s: host is required", e.Name)
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("link: endpoint %s: port %d out of range", e.Name, e.Port)
	}
	switch e.Transport {
	case TransportTCP, TransportWS:
	default:
		return fmt.Errorf("link: endpoint %s: transport must be 'tcp' or 'ws', got '%s'", e.Name, e.Transport)
	}
	return nil
}
