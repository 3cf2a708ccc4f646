package neighcache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return New(mr.Addr(), 0)
}

func TestCache_SetGet_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ip := net.ParseIP("10.0.0.5")
	mac, _ := net.ParseMAC("00:11:22:33:44:55")

	if err := c.Set(ctx, 1, ip, mac); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entry, ok, err := c.Get(ctx, 1, ip)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected entry to be present")
	}
	if entry.MAC.String() != mac.String() {
		t.Errorf("MAC = %s, want %s", entry.MAC, mac)
	}
}

func TestCache_Get_MissingIsNotError(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, 1, net.ParseIP("10.0.0.9"))
	if err != nil {
		t.Fatalf("Get on a miss returned an error: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for a missing entry")
	}
}

func TestCache_Set_IsolatedBySwitch(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	ip := net.ParseIP("10.0.0.5")
	mac1, _ := net.ParseMAC("00:11:22:33:44:55")
	mac2, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")

	c.Set(ctx, 1, ip, mac1)
	c.Set(ctx, 2, ip, mac2)

	e1, _, _ := c.Get(ctx, 1, ip)
	e2, _, _ := c.Get(ctx, 2, ip)
	if e1.MAC.String() != mac1.String() || e2.MAC.String() != mac2.String() {
		t.Errorf("entries for the same IP on different switches collided")
	}
}

func TestCache_EntriesExpireAfterTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c := New(mr.Addr(), 0)

	ctx := context.Background()
	ip := net.ParseIP("10.0.0.5")
	mac, _ := net.ParseMAC("00:11:22:33:44:55")
	if err := c.Set(ctx, 1, ip, mac); err != nil {
		t.Fatalf("Set: %v", err)
	}

	mr.FastForward(ARPTimeout + time.Second)

	_, ok, err := c.Get(ctx, 1, ip)
	if err != nil {
		t.Fatalf("Get after expiry returned an error: %v", err)
	}
	if ok {
		t.Errorf("expected entry to have expired after ARPTimeout")
	}
}

func TestCache_List_ScansOnlyThatSwitch(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	mac1, _ := net.ParseMAC("00:11:22:33:44:55")
	mac2, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")

	c.Set(ctx, 1, net.ParseIP("10.0.0.5"), mac1)
	c.Set(ctx, 1, net.ParseIP("10.0.0.6"), mac2)
	c.Set(ctx, 2, net.ParseIP("10.0.0.5"), mac2)

	listed, err := c.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("len(listed) = %d, want 2", len(listed))
	}
	for _, e := range listed {
		if e.DPID != 1 {
			t.Errorf("listed entry for dpid %d, want 1", e.DPID)
		}
	}
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	ip := net.ParseIP("10.0.0.5")
	mac, _ := net.ParseMAC("00:11:22:33:44:55")

	c.Set(ctx, 1, ip, mac)
	if err := c.Delete(ctx, 1, ip); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, _ := c.Get(ctx, 1, ip)
	if ok {
		t.Errorf("expected entry to be gone after Delete")
	}
}
