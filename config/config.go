// Package config holds the immutable configuration values consumed by the
// routing engine: RouterSpec, RouteSpec and FilterSpec, plus their JSON
// decoding and validation. File-system discovery of the VOR home directory
// is deliberately left to cmd/vor; this package only turns bytes into
// validated values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Validation errors. Configuration errors are reported synchronously at
// start; the engine never spawns workers once one of these is returned.
var (
	ErrQueueCapacity = errors.New("config: vor_buffer_size must be a positive integer")
	ErrInvalidIPv4   = errors.New("config: host must be an IPv4 literal")
	ErrInvalidPort   = errors.New("config: port must be in range 1-65534")
	ErrEmptyAppName  = errors.New("config: app_name must be non-empty")
)

// RouterSpec is the immutable engine configuration.
type RouterSpec struct {
	BindHost      string `json:"bind_host"`
	BindPort      string `json:"bind_port"`
	VORBufferSize string `json:"vor_buffer_size"`
	AsyncMode     bool   `json:"async_mode"`
}

// DefaultRouterSpec is the configuration cmd/vor writes out the first time
// it runs and finds no router config file on disk.
func DefaultRouterSpec() RouterSpec {
	return RouterSpec{
		BindHost:      "127.0.0.1",
		BindPort:      "9001",
		VORBufferSize: "4096",
		AsyncMode:     true,
	}
}

// ListenAddr returns the "host:port" string to bind the ingress socket to.
func (r RouterSpec) ListenAddr() string {
	return net.JoinHostPort(r.BindHost, r.BindPort)
}

// QueueCapacity parses and validates VORBufferSize.
func (r RouterSpec) QueueCapacity() (int, error) {
	n, err := strconv.Atoi(r.VORBufferSize)
	if err != nil || n <= 0 {
		return 0, ErrQueueCapacity
	}
	return n, nil
}

// Validate checks the listen host/port are well-formed and that
// VORBufferSize parses as a positive queue capacity. QueueCapacity is also
// exported on its own since the Router Supervisor needs the parsed int,
// not just a bool.
func (r RouterSpec) Validate() error {
	if !isIPv4(r.BindHost) {
		return fmt.Errorf("%w: %q", ErrInvalidIPv4, r.BindHost)
	}
	if !isValidPort(r.BindPort) {
		return fmt.Errorf("%w: %q", ErrInvalidPort, r.BindPort)
	}
	if _, err := r.QueueCapacity(); err != nil {
		return err
	}
	return nil
}

// RouteSpec is the immutable per-route configuration. Index is assigned by
// the supervisor at start, not decoded from JSON.
type RouteSpec struct {
	AppName string `json:"app_name"`
	AppHost string `json:"app_host"`
	AppPort string `json:"app_port"`

	// Historical fields, present in some on-disk configs but deprecated
	// and ignored: routes forward through a shared bus now, not a
	// per-route bind address.
	deprecatedBindHost string `json:"-"`
	deprecatedBindPort string `json:"-"`

	// Index is assigned by the supervisor at engine start; it is the
	// route's identity in all status messages.
	Index int `json:"-"`

	// Enabled controls whether the supervisor starts this route at all.
	Enabled bool `json:"-"`
}

// rawRouteSpec carries the on-disk field set, including the deprecated
// bind_host/bind_port fields, which are decoded and discarded.
type rawRouteSpec struct {
	AppName  string `json:"app_name"`
	AppHost  string `json:"app_host"`
	AppPort  string `json:"app_port"`
	BindHost string `json:"bind_host,omitempty"`
	BindPort string `json:"bind_port,omitempty"`
}

// DecodeRouteSpec parses one RouteSpec JSON document. Enabled defaults to
// true for a freshly loaded route; callers that track per-app enable state
// separately (e.g. a GUI) should override it after decoding.
func DecodeRouteSpec(data []byte) (RouteSpec, error) {
	var raw rawRouteSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return RouteSpec{}, fmt.Errorf("config: decode route spec: %w", err)
	}
	rs := RouteSpec{
		AppName:            raw.AppName,
		AppHost:            raw.AppHost,
		AppPort:            raw.AppPort,
		deprecatedBindHost: raw.BindHost,
		deprecatedBindPort: raw.BindPort,
		Enabled:            true,
	}
	return rs, nil
}

// DestAddr returns the "host:port" string this route forwards to.
func (r RouteSpec) DestAddr() string {
	return net.JoinHostPort(r.AppHost, r.AppPort)
}

// Validate checks app_name/app_host/app_port are well-formed.
func (r RouteSpec) Validate() error {
	if r.AppName == "" {
		return ErrEmptyAppName
	}
	if !isIPv4(r.AppHost) {
		return fmt.Errorf("%w: %q", ErrInvalidIPv4, r.AppHost)
	}
	if !isValidPort(r.AppPort) {
		return fmt.Errorf("%w: %q", ErrInvalidPort, r.AppPort)
	}
	return nil
}

// FilterMode selects how PacketFilter evaluates OSC addresses.
type FilterMode int

const (
	FilterNone FilterMode = iota
	FilterWhitelist
	FilterBlacklist
)

// FilterSpec is the immutable filter configuration. Whitelist and
// blacklist are mutually exclusive at the configuration surface; Mode()
// resolves that into a single enum, preferring whitelist if (invalidly)
// both were enabled on disk.
type FilterSpec struct {
	Enabled          bool           `json:"enabled"`
	FilterBadPackets bool           `json:"filter_bad_packets"`
	WhitelistEnabled bool           `json:"wl_enabled"`
	Whitelist        []AddressEntry `json:"address_wl"`
	BlacklistEnabled bool           `json:"bl_enabled"`
	Blacklist        []AddressEntry `json:"address_bl"`
}

// AddressEntry is one entry of an address whitelist/blacklist. The on-disk
// format is a (string, bool) pair; only the string (the OSC address) is
// semantically significant — the bool is carried through for round-tripping
// a GUI's per-entry enable checkbox but never consulted by the engine.
type AddressEntry struct {
	Address string
	enabled bool
}

// UnmarshalJSON decodes a (string, bool) pair encoded as a 2-element JSON
// array.
func (e *AddressEntry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("config: decode address entry: %w", err)
	}
	if err := json.Unmarshal(pair[0], &e.Address); err != nil {
		return fmt.Errorf("config: decode address entry address: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.enabled); err != nil {
		return fmt.Errorf("config: decode address entry flag: %w", err)
	}
	return nil
}

// MarshalJSON encodes back to the (string, bool) pair wire shape.
func (e AddressEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Address, e.enabled})
}

// DefaultFilterSpec is the configuration cmd/vor writes out the first time
// it runs and finds no filter config file on disk: filtering off, both
// lists empty.
func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		Enabled:          false,
		FilterBadPackets: false,
		WhitelistEnabled: false,
		Whitelist:        []AddressEntry{},
		BlacklistEnabled: false,
		Blacklist:        []AddressEntry{},
	}
}

// Mode resolves the wl_enabled/bl_enabled flags into a single FilterMode.
func (f FilterSpec) Mode() FilterMode {
	if !f.Enabled {
		return FilterNone
	}
	if f.WhitelistEnabled {
		return FilterWhitelist
	}
	if f.BlacklistEnabled {
		return FilterBlacklist
	}
	return FilterNone
}

// Addresses returns the flat address list for the active mode.
func (f FilterSpec) Addresses() []string {
	var src []AddressEntry
	switch f.Mode() {
	case FilterWhitelist:
		src = f.Whitelist
	case FilterBlacklist:
		src = f.Blacklist
	default:
		return nil
	}
	out := make([]string, len(src))
	for i, e := range src {
		out[i] = e.Address
	}
	return out
}

func isIPv4(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil
}

func isValidPort(port string) bool {
	n, err := strconv.ParseUint(port, 10, 32)
	return err == nil && n > 0 && n < 65535
}
