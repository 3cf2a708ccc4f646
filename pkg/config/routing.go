// Package config loads the controller's two YAML startup files —
// routing.config (per-port gateway bindings) and bgper_config (BGP peering
// config) — the way the teacher's pkg/labgen/parse.go and
// pkg/newtest/parser.go load their YAML fixtures: read the file, unmarshal
// with gopkg.in/yaml.v3, validate, wrap any failure with context.
package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridian-sdn/meridian/pkg/merrors"
	"github.com/meridian-sdn/meridian/pkg/topology"
)

// gatewayBindingYAML is one entry of routing.config: binds a port on a
// named switch to an IPv4 and/or IPv6 subnet.
type gatewayBindingYAML struct {
	Switch    string `yaml:"switch"`
	Port      uint16 `yaml:"port"`
	GWIPv4    string `yaml:"gw_ipv4"`
	GWIPv4Net string `yaml:"gw_ipv4_net"`
	GWIPv6    string `yaml:"gw_ipv6"`
	GWIPv6Net string `yaml:"gw_ipv6_net"`
}

type routingConfigYAML struct {
	Gateways []gatewayBindingYAML `yaml:"gateways"`
}

// bindingKey identifies one (switch name, port number) pair.
type bindingKey struct {
	name string
	port uint16
}

// RoutingConfig is the parsed routing.config: gateway bindings keyed by
// (switch name, port number). Implements topology.GatewayLookup.
type RoutingConfig struct {
	bindings map[bindingKey]*topology.Gateway
}

// GatewayFor implements topology.GatewayLookup.
func (c *RoutingConfig) GatewayFor(switchName string, portNo uint16) (*topology.Gateway, bool) {
	if c == nil {
		return nil, false
	}
	gw, ok := c.bindings[bindingKey{name: switchName, port: portNo}]
	return gw, ok
}

// LoadRoutingConfig parses routing.config at path. On a malformed file it
// returns a *merrors.ConfigParseError; callers should log it and continue
// with an empty RoutingConfig rather than treat it as fatal.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.NewConfigParseError(path, err)
	}

	var raw routingConfigYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, merrors.NewConfigParseError(path, err)
	}

	cfg := &RoutingConfig{bindings: make(map[bindingKey]*topology.Gateway)}
	for _, b := range raw.Gateways {
		gw, err := parseGatewayBinding(b)
		if err != nil {
			return nil, merrors.NewConfigParseError(path, fmt.Errorf("switch %s port %d: %w", b.Switch, b.Port, err))
		}
		cfg.bindings[bindingKey{name: b.Switch, port: b.Port}] = gw
	}
	return cfg, nil
}

func parseGatewayBinding(b gatewayBindingYAML) (*topology.Gateway, error) {
	if b.Switch == "" {
		return nil, fmt.Errorf("switch name is required")
	}
	gw := &topology.Gateway{}

	if b.GWIPv4 != "" {
		ip := net.ParseIP(b.GWIPv4)
		if ip == nil {
			return nil, fmt.Errorf("invalid gw_ipv4 %q", b.GWIPv4)
		}
		gw.GWIPv4 = ip
		if b.GWIPv4Net != "" {
			_, ipnet, err := net.ParseCIDR(b.GWIPv4Net)
			if err != nil {
				return nil, fmt.Errorf("invalid gw_ipv4_net %q: %w", b.GWIPv4Net, err)
			}
			gw.GWIPv4Net = ipnet
		}
	}
	if b.GWIPv6 != "" {
		ip := net.ParseIP(b.GWIPv6)
		if ip == nil {
			return nil, fmt.Errorf("invalid gw_ipv6 %q", b.GWIPv6)
		}
		gw.GWIPv6 = ip
		if b.GWIPv6Net != "" {
			_, ipnet, err := net.ParseCIDR(b.GWIPv6Net)
			if err != nil {
				return nil, fmt.Errorf("invalid gw_ipv6_net %q: %w", b.GWIPv6Net, err)
			}
			gw.GWIPv6Net = ipnet
		}
	}
	if gw.GWIPv4 == nil && gw.GWIPv6 == nil {
		return nil, fmt.Errorf("at least one of gw_ipv4/gw_ipv6 is required")
	}
	return gw, nil
}
