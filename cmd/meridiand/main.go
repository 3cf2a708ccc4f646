// Meridiand is the controller daemon: it loads routing.config and
// bgper_config, wires the topology store, neighbor cache, external
// resolver, and TAP bridge into a controller.Controller, and serves the
// admin API meridianctl talks to.
//
// The OpenFlow wire codec and switch-connection lifecycle (accepting TCP
// connections from switches, parsing/serializing OFPT_* messages) are out
// of scope here — pkg/openflow documents itself as the interface set a
// real codec package would implement against, not an implementation of
// one. A production deployment pairs meridiand with such a codec package;
// this entry point wires everything on the controller side of that
// boundary and is ready to receive ofevent values and openflow.PacketIn
// messages from it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-sdn/meridian/pkg/adminapi"
	"github.com/meridian-sdn/meridian/pkg/config"
	"github.com/meridian-sdn/meridian/pkg/controller"
	"github.com/meridian-sdn/meridian/pkg/logging"
	"github.com/meridian-sdn/meridian/pkg/merrors"
	"github.com/meridian-sdn/meridian/pkg/neighcache"
	"github.com/meridian-sdn/meridian/pkg/resolver"
	"github.com/meridian-sdn/meridian/pkg/tapbridge"
	"github.com/meridian-sdn/meridian/pkg/version"
)

// daemonFlags holds the daemon's command-line configuration.
type daemonFlags struct {
	routingConfigPath string
	bgpConfigPath     string
	tapDevice         string
	redisAddr         string
	redisDB           int
	adminAddr         string
	logLevel          string
	jsonLog           bool
}

func main() {
	var f daemonFlags
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print build version and exit")
	flag.StringVar(&f.routingConfigPath, "routing-config", "routing.config", "path to routing.config (gateway bindings)")
	flag.StringVar(&f.bgpConfigPath, "bgp-config", "bgper_config", "path to bgper_config (BGP peering config)")
	flag.StringVar(&f.tapDevice, "tap-device", "", "name of the pre-created TAP device to bridge BGP traffic through (empty disables the TAP bridge)")
	flag.StringVar(&f.redisAddr, "redis-addr", "127.0.0.1:6379", "address of the Redis instance backing the neighbor cache")
	flag.IntVar(&f.redisDB, "redis-db", 0, "Redis logical database for the neighbor cache")
	flag.StringVar(&f.adminAddr, "admin-addr", "127.0.0.1:8088", "address the admin API listens on")
	flag.StringVar(&f.logLevel, "log-level", "info", "initial log level")
	flag.BoolVar(&f.jsonLog, "json-log", false, "emit JSON-formatted logs instead of text")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Info())
		return
	}

	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(f daemonFlags) error {
	if f.jsonLog {
		logging.SetJSONFormat()
	}
	if err := logging.SetLevel(f.logLevel); err != nil {
		return fmt.Errorf("meridiand: invalid -log-level: %w", err)
	}

	routingCfg, err := config.LoadRoutingConfig(f.routingConfigPath)
	if err != nil {
		logging.WithField("error", err).Warn("meridiand: loading routing.config, continuing with empty gateway bindings")
		routingCfg = &config.RoutingConfig{}
	}

	bgpCfg, err := config.LoadBGPConfig(f.bgpConfigPath)
	if err != nil {
		logging.WithField("error", err).Warn("meridiand: loading bgper_config, continuing with empty BGP config")
		bgpCfg = &config.BGPConfig{}
	}

	neigh := neighcache.New(f.redisAddr, f.redisDB)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := neigh.Connect(ctx); err != nil {
		return fmt.Errorf("meridiand: connecting to neighbor cache at %s: %w", f.redisAddr, err)
	}
	defer neigh.Close()

	resolve := resolver.New(bgpNeighborResolveHandler(bgpCfg), 0)

	ctl := controller.New(routingCfg, neigh, resolve, bgpCfg, nil)

	var tap *tapbridge.Bridge
	if f.tapDevice != "" {
		tap, err = tapbridge.Open(f.tapDevice, controller.NeighborLookup(bgpCfg), controller.SwitchResolver(ctl.Store))
		if err != nil {
			// spec.md §7: TAP device misconfiguration at startup is the
			// one error kind this daemon treats as fatal.
			return fmt.Errorf("meridiand: opening tap device %q: %w", f.tapDevice, err)
		}
		defer tap.Close()
		ctl.AttachTap(tap)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)

	if tap != nil {
		go func() { errCh <- tap.RunReader(sigCtx) }()
		go func() {
			errCh <- tap.RunDispatcher(sigCtx, controller.SendTAPPacketOut)
		}()
	}

	admin := adminapi.NewServer(ctl, tapDropCounter(tap))
	go func() { errCh <- admin.ListenAndServe(sigCtx, f.adminAddr) }()

	logging.WithFields(map[string]interface{}{
		"admin_addr": f.adminAddr,
		"tap_device": f.tapDevice,
	}).Info("meridiand: started")

	select {
	case <-sigCtx.Done():
		logging.Logger.Info("meridiand: shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("meridiand: %w", err)
		}
		return nil
	}
}

// tapDropCounter returns a closure reporting tap's dropped-frame counter,
// or nil if no TAP bridge is attached (the admin API then always reports
// zero drops).
func tapDropCounter(tap *tapbridge.Bridge) func() uint64 {
	if tap == nil {
		return nil
	}
	return tap.DroppedFrames
}

// bgpNeighborResolveHandler answers ExternalDestinationRequests by
// matching the destination against the configured BGP neighbors —
// meridiand's in-process stand-in for "module B", the BGP speaker's own
// route table, which spec.md places out of scope for this controller.
func bgpNeighborResolveHandler(bgp *config.BGPConfig) resolver.Handler {
	return func(ctx context.Context, req resolver.Request) (resolver.Reply, error) {
		n, ok := bgp.MatchNeighbor(req.DestinationIP)
		if !ok {
			return resolver.Reply{}, fmt.Errorf("meridiand: %w: %s", merrors.ErrUnresolvableDestination, req.DestinationIP)
		}
		return resolver.Reply{SwitchName: n.BorderSwitch, OutportNo: n.OutportNo}, nil
	}
}
