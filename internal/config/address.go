package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

const DefaultPort = 38281

var (
	ErrInvalidAddress = errors.New("invalid connection string")
	ErrMissingField   = errors.New("you must enter a hostname and username")
	ErrInvalidPort    = errors.New("invalid port number")
)

// Accepts what players paste from the server console, e.g.
// "/connect archipelago.gg:38281". Trailing text is ignored.
var addressRE = regexp.MustCompile(`^(/connect )?((wss?)://)?([\w.]+)(:(-?[0-9]+))?`)

// Address is a parsed connection string. Scheme is empty when the user gave
// none.
type Address struct {
	Scheme string
	Host   string
	Port   int
}

func ParseAddress(s string) (Address, error) {
	m := addressRE.FindStringSubmatch(s)
	if m == nil {
		return Address{}, fmt.Errorf("%q: %w", s, ErrInvalidAddress)
	}
	addr := Address{Scheme: m[3], Host: m[4], Port: DefaultPort}
	if addr.Host == "" {
		return Address{}, fmt.Errorf("hostname: %w", ErrMissingField)
	}
	if m[6] != "" {
		port, err := strconv.Atoi(m[6])
		if err != nil {
			return Address{}, fmt.Errorf("port %q: %w", m[6], ErrInvalidPort)
		}
		addr.Port = port
	}
	if addr.Port <= 0 || addr.Port > 65535 {
		return Address{}, fmt.Errorf("port %d: %w", addr.Port, ErrInvalidPort)
	}
	return addr, nil
}

// Candidates lists the URLs to try in order. Without a scheme the secure
// socket goes first.
func (a Address) Candidates() []string {
	if a.Scheme != "" {
		return []string{a.url(a.Scheme)}
	}
	return []string{a.url("wss"), a.url("ws")}
}

func (a Address) url(scheme string) string {
	return fmt.Sprintf("%s://%s:%d", scheme, a.Host, a.Port)
}

func (a Address) String() string {
	if a.Scheme == "" {
		return fmt.Sprintf("%s:%d", a.Host, a.Port)
	}
	return a.url(a.Scheme)
}
