package bot

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCooldownGate(t *testing.T) {
	g := NewCooldownGate()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if ok, _ := g.Allow(1, now); !ok {
		t.Fatal("first command rejected")
	}
	if ok, wait := g.Allow(1, now.Add(time.Second)); ok || wait != 2*time.Second {
		t.Errorf("inside window: ok=%v wait=%v", ok, wait)
	}
	if ok, _ := g.Allow(1, now.Add(CommandCooldown)); !ok {
		t.Error("command at window edge rejected")
	}

	// Other users are unaffected.
	if ok, _ := g.Allow(2, now); !ok {
		t.Error("second user rejected by first user's window")
	}
}

func TestCooldownRejectionDoesNotExtendWindow(t *testing.T) {
	g := NewCooldownGate()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	g.Allow(1, now)
	g.Allow(1, now.Add(2*time.Second))

	// The window still ends 3s after the accepted command, not 3s
	// after the rejected one.
	if ok, _ := g.Allow(1, now.Add(CommandCooldown+time.Millisecond)); !ok {
		t.Error("rejected command extended the window")
	}
}

func TestProperty_CooldownNeverAllowsTwoInsideWindow(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("two commands closer than the cooldown never both pass", prop.ForAll(
		func(userID int64, gapNanos int64) bool {
			if gapNanos < 0 {
				gapNanos = -gapNanos
			}
			gap := time.Duration(gapNanos % int64(CommandCooldown))

			g := NewCooldownGate()
			now := time.Now()
			first, _ := g.Allow(userID, now)
			second, _ := g.Allow(userID, now.Add(gap))
			return first && !second
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
