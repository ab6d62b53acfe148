package discovery

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAdvertiseAndLookupRoundTrip(t *testing.T) {
	adv, err := Advertise("clocksync-test", 41234, zap.NewNop())
	if err != nil {
		t.Skipf("mDNS advertise unavailable in this sandbox: %v", err)
	}
	defer adv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr, err := Lookup(ctx, zap.NewNop())
	if err != nil {
		t.Skipf("mDNS lookup unavailable in this sandbox: %v", err)
	}
	if addr == "" {
		t.Error("expected a non-empty discovered address")
	}
}

func TestLookupTimesOutWithNoAdvertiser(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	if _, err := Lookup(ctx, zap.NewNop()); err == nil {
		t.Error("expected Lookup to fail when no Master is advertising")
	}
}
