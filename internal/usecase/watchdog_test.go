package usecase

import (
	"testing"
	"time"
)

func TestWatchdogOnlyFlipsBotsThatWereConnected(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1, 2}, timeout: 30 * time.Second})
	f.reg.ApplyHeartbeat(1, 9001, nil, nil)

	f.at(30 * time.Second)
	if flipped := f.watchdog.Scan(); len(flipped) != 0 {
		t.Fatalf("nothing should flip at exactly the timeout, got %v", flipped)
	}

	f.at(31 * time.Second)
	flipped := f.watchdog.Scan()
	if len(flipped) != 1 || flipped[0] != 1 {
		t.Fatalf("expected only bot 1 to flip, got %v", flipped)
	}

	f.at(90 * time.Second)
	if flipped := f.watchdog.Scan(); len(flipped) != 0 {
		t.Fatalf("already disconnected bots must not flip again, got %v", flipped)
	}

	b, _ := f.reg.Get(2)
	if b.Connected {
		t.Fatalf("bot 2 never sent a heartbeat")
	}
}

func TestHeartbeatReconnects(t *testing.T) {
	f := newFixture(fixtureOpts{roster: []int{1}, timeout: 30 * time.Second})
	f.reg.ApplyHeartbeat(1, 9001, nil, nil)
	f.at(40 * time.Second)
	f.watchdog.Scan()

	if !f.reg.ApplyHeartbeat(1, 9001, nil, nil) {
		t.Fatalf("reconnect should change the heartbeat fingerprint")
	}
	b, _ := f.reg.Get(1)
	if !b.Connected {
		t.Fatalf("bot should be connected again")
	}
}
