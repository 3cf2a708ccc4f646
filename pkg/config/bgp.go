package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridian-sdn/meridian/pkg/merrors"
)

// BGPNeighbor is one external peer, spec.md §3: the IPv4/IPv6/solicited-
// node-or-link-local addresses it's reached by, and the border switch +
// outport that faces it.
type BGPNeighbor struct {
	NeighborIPv4    net.IP `yaml:"-"`
	NeighborIPv6    net.IP `yaml:"-"`
	NeighborIPv6SMA net.IP `yaml:"-"`
	BorderSwitch    string `yaml:"border_switch"`
	OutportNo       uint16 `yaml:"outport_no"`

	NeighborIPv4Raw    string `yaml:"neighbor_ipv4"`
	NeighborIPv6Raw    string `yaml:"neighbor_ipv6"`
	NeighborIPv6SMARaw string `yaml:"neighbor_ipv6_sma"`
}

// BGPConfig is the parsed bgper_config: this speaker's own addresses and
// its configured neighbors.
type BGPConfig struct {
	LocalIPv4 net.IP
	LocalIPv6 net.IP
	Neighbors []BGPNeighbor
}

type bgpConfigYAML struct {
	LocalIPv4 string        `yaml:"local_ipv4"`
	LocalIPv6 string        `yaml:"local_ipv6"`
	Neighbors []BGPNeighbor `yaml:"neighbors"`
}

// LoadBGPConfig parses bgper_config at path. On a malformed file it
// returns a *merrors.ConfigParseError; callers should log it and continue
// with an empty BGPConfig.
func LoadBGPConfig(path string) (*BGPConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.NewConfigParseError(path, err)
	}

	var raw bgpConfigYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, merrors.NewConfigParseError(path, err)
	}

	cfg := &BGPConfig{}
	if raw.LocalIPv4 != "" {
		if cfg.LocalIPv4 = net.ParseIP(raw.LocalIPv4); cfg.LocalIPv4 == nil {
			return nil, merrors.NewConfigParseError(path, fmt.Errorf("invalid local_ipv4 %q", raw.LocalIPv4))
		}
	}
	if raw.LocalIPv6 != "" {
		if cfg.LocalIPv6 = net.ParseIP(raw.LocalIPv6); cfg.LocalIPv6 == nil {
			return nil, merrors.NewConfigParseError(path, fmt.Errorf("invalid local_ipv6 %q", raw.LocalIPv6))
		}
	}

	for i := range raw.Neighbors {
		n := &raw.Neighbors[i]
		if n.NeighborIPv4Raw != "" {
			if n.NeighborIPv4 = net.ParseIP(n.NeighborIPv4Raw); n.NeighborIPv4 == nil {
				return nil, merrors.NewConfigParseError(path, fmt.Errorf("neighbor %d: invalid neighbor_ipv4 %q", i, n.NeighborIPv4Raw))
			}
		}
		if n.NeighborIPv6Raw != "" {
			if n.NeighborIPv6 = net.ParseIP(n.NeighborIPv6Raw); n.NeighborIPv6 == nil {
				return nil, merrors.NewConfigParseError(path, fmt.Errorf("neighbor %d: invalid neighbor_ipv6 %q", i, n.NeighborIPv6Raw))
			}
		}
		if n.NeighborIPv6SMARaw != "" {
			if n.NeighborIPv6SMA = net.ParseIP(n.NeighborIPv6SMARaw); n.NeighborIPv6SMA == nil {
				return nil, merrors.NewConfigParseError(path, fmt.Errorf("neighbor %d: invalid neighbor_ipv6_sma %q", i, n.NeighborIPv6SMARaw))
			}
		}
		if n.BorderSwitch == "" {
			return nil, merrors.NewConfigParseError(path, fmt.Errorf("neighbor %d: border_switch is required", i))
		}
	}
	cfg.Neighbors = raw.Neighbors
	return cfg, nil
}

// MatchNeighbor returns the configured neighbor whose ipv4, ipv6, or
// solicited-node/link-local address equals ip, for TAP RX dispatch
// (spec.md §4.3).
func (c *BGPConfig) MatchNeighbor(ip net.IP) (*BGPNeighbor, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Neighbors {
		n := &c.Neighbors[i]
		if n.NeighborIPv4 != nil && n.NeighborIPv4.Equal(ip) {
			return n, true
		}
		if n.NeighborIPv6 != nil && n.NeighborIPv6.Equal(ip) {
			return n, true
		}
		if n.NeighborIPv6SMA != nil && n.NeighborIPv6SMA.Equal(ip) {
			return n, true
		}
	}
	return nil, false
}
