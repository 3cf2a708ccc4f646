package routing

// pqItem is one entry in the Dijkstra frontier.
type pqItem struct {
	dpid uint64
	dist int
}

// priorityQueue is a container/heap.Interface ordered by ascending
// distance, with ties broken by dpid ascending so the traversal order
// itself favors lower dpids (spec.md §4.2).
type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].dpid < pq[j].dpid
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x interface{}) {
	*pq = append(*pq, x.(pqItem))
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
