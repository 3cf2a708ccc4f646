// Package routing computes shortest paths over the switch topology graph.
// spec.md §4.2: Dijkstra with edge weights = Port.cost of the outgoing
// port, ties broken by dpid ascending, results cached keyed by
// (src, dst, topology_version).
package routing

import (
	"container/heap"
	"sync"

	"github.com/meridian-sdn/meridian/pkg/topology"
)

// Graph is the subset of topology.Store the router needs: read access to
// every connected switch and the version they were read at.
type Graph interface {
	Switches() []*topology.Switch
	Switch(dpid uint64) (*topology.Switch, bool)
	Version() uint64
}

// cacheCap bounds the route cache (documented in SPEC_FULL.md §4.2). Oldest
// entries by insertion order are evicted once the cap is reached, mirroring
// the bounded-FIFO idiom used for msg_buffer and the TAP dispatcher queue.
const cacheCap = 4096

type cacheKey struct {
	src, dst uint64
	version  uint64
}

// Router finds shortest paths and caches them against the graph's topology
// version.
type Router struct {
	graph Graph

	mu    sync.Mutex
	cache map[cacheKey][]uint64
	order []cacheKey
}

// New constructs a Router over the given graph.
func New(graph Graph) *Router {
	return &Router{
		graph: graph,
		cache: make(map[cacheKey][]uint64),
	}
}

// FindRoute returns the ordered sequence of switch dpids [src, …, dst], or
// false if no path exists. src == dst returns a single-element path.
func (r *Router) FindRoute(src, dst uint64) ([]uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version := r.graph.Version()
	key := cacheKey{src: src, dst: dst, version: version}
	if path, ok := r.cache[key]; ok {
		return path, true
	}

	path, ok := r.dijkstra(src, dst)
	if !ok {
		return nil, false
	}

	r.storeLocked(key, path)
	return path, true
}

func (r *Router) storeLocked(key cacheKey, path []uint64) {
	if _, exists := r.cache[key]; !exists {
		if len(r.order) >= cacheCap {
			oldest := r.order[0]
			r.order = r.order[1:]
			delete(r.cache, oldest)
		}
		r.order = append(r.order, key)
	}
	r.cache[key] = path
}

// dijkstra runs single-source shortest path from src, stopping once dst is
// settled. Ties in distance are broken by dpid ascending, both in the
// priority queue ordering and in the final path reconstruction.
func (r *Router) dijkstra(src, dst uint64) ([]uint64, bool) {
	if _, ok := r.graph.Switch(src); !ok {
		return nil, false
	}
	if _, ok := r.graph.Switch(dst); !ok {
		return nil, false
	}
	if src == dst {
		return []uint64{src}, true
	}

	dist := map[uint64]int{src: 0}
	prev := map[uint64]uint64{}
	visited := map[uint64]bool{}

	pq := &priorityQueue{{dpid: src, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.dpid] {
			continue
		}
		visited[cur.dpid] = true
		if cur.dpid == dst {
			break
		}

		sw, ok := r.graph.Switch(cur.dpid)
		if !ok {
			continue
		}
		for peerDPID, localPort := range neighborsOf(sw) {
			if visited[peerDPID] {
				continue
			}
			port, ok := sw.Port(localPort)
			if !ok {
				continue
			}
			nd := cur.dist + port.Cost
			existing, has := dist[peerDPID]
			switch {
			case !has || nd < existing:
				dist[peerDPID] = nd
				prev[peerDPID] = cur.dpid
				heap.Push(pq, pqItem{dpid: peerDPID, dist: nd})
			case nd == existing && cur.dpid < prev[peerDPID]:
				// Equal-cost path via a lower-dpid predecessor: ties broken
				// by dpid ascending, per spec.md §4.2.
				prev[peerDPID] = cur.dpid
			}
		}
	}

	if _, ok := dist[dst]; !ok {
		return nil, false
	}

	var path []uint64
	for at := dst; ; {
		path = append([]uint64{at}, path...)
		if at == src {
			break
		}
		at = prev[at]
	}
	return path, true
}

// neighborsOf exposes a switch's adjacency map for traversal. Defined here
// (rather than as an exported topology.Switch method) since only the
// router needs to walk every neighbor; everything else looks up one peer
// at a time via Switch.PortToward.
func neighborsOf(sw *topology.Switch) map[uint64]uint16 {
	out := make(map[uint64]uint16)
	for portNo, p := range sw.Ports {
		if p.HasPeer {
			out[p.PeerDPID] = portNo
		}
	}
	return out
}
