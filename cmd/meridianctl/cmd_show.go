package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meridian-sdn/meridian/pkg/adminapi"
	"github.com/meridian-sdn/meridian/pkg/cliout"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show controller state",
}

var showTopologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Show connected switches, ports, and links",
	RunE: func(cmd *cobra.Command, args []string) error {
		switches, err := app.client.Topology(context.Background())
		if err != nil {
			return fmt.Errorf("fetching topology: %w", err)
		}
		renderTopology(switches)
		return nil
	},
}

var showRoutesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Show the shortest path between every pair of connected switches",
	RunE: func(cmd *cobra.Command, args []string) error {
		routes, err := app.client.Routes(context.Background())
		if err != nil {
			return fmt.Errorf("fetching routes: %w", err)
		}
		renderRoutes(routes)
		return nil
	},
}

var showNeighborsCmd = &cobra.Command{
	Use:   "neighbors <dpid>",
	Short: "Show the IP->MAC neighbor cache learned on one switch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dpid, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid dpid %q: %w", args[0], err)
		}
		neighbors, err := app.client.Neighbors(context.Background(), dpid)
		if err != nil {
			return fmt.Errorf("fetching neighbors: %w", err)
		}
		renderNeighbors(neighbors)
		return nil
	},
}

var showTapStatsCmd = &cobra.Command{
	Use:   "tap-stats",
	Short: "Show TAP bridge inbound-queue drop counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := app.client.TapStats(context.Background())
		if err != nil {
			return fmt.Errorf("fetching tap-stats: %w", err)
		}
		cliout.RenderTapStats(stats.DroppedFrames)
		return nil
	},
}

func init() {
	showCmd.AddCommand(showTopologyCmd, showRoutesCmd, showNeighborsCmd, showTapStatsCmd)
	rootCmd.AddCommand(showCmd)
}

func renderTopology(switches []adminapi.SwitchInfo) {
	t := cliout.NewTable("SWITCH", "DPID", "PORT", "COST", "PEER", "GATEWAY")
	for _, sw := range switches {
		for _, p := range sw.Ports {
			peer := cliout.Dim("-")
			if p.HasPeer {
				peer = fmt.Sprintf("dpid=%d port=%d", p.PeerDPID, p.PeerPort)
			}
			gw := cliout.Dim("-")
			switch {
			case p.GatewayV4 != "" && p.GatewayV6 != "":
				gw = p.GatewayV4 + " / " + p.GatewayV6
			case p.GatewayV4 != "":
				gw = p.GatewayV4
			case p.GatewayV6 != "":
				gw = p.GatewayV6
			}
			t.Row(sw.Name, fmt.Sprintf("%d", sw.DPID), fmt.Sprintf("%d", p.Number), fmt.Sprintf("%d", p.Cost), peer, gw)
		}
	}
	t.Flush()
}

func renderRoutes(routes []adminapi.RouteInfo) {
	t := cliout.NewTable("SRC", "DST", "PATH", "HOPS")
	for _, r := range routes {
		if !r.Reachable {
			t.Row(fmt.Sprintf("%d", r.Src), fmt.Sprintf("%d", r.Dst), cliout.Red("unreachable"), "-")
			continue
		}
		t.Row(fmt.Sprintf("%d", r.Src), fmt.Sprintf("%d", r.Dst), formatPath(r.Path), fmt.Sprintf("%d", len(r.Path)-1))
	}
	t.Flush()
}

func renderNeighbors(neighbors []adminapi.NeighborInfo) {
	t := cliout.NewTable("IP", "MAC", "REFRESHED")
	for _, n := range neighbors {
		t.Row(n.IP, n.MAC, n.Refreshed.Format("2006-01-02 15:04:05"))
	}
	t.Flush()
}

func formatPath(path []uint64) string {
	out := ""
	for i, dpid := range path {
		if i > 0 {
			out += " -> "
		}
		out += fmt.Sprintf("%d", dpid)
	}
	return out
}
