package wizard

import (
	"testing"

	"pgregory.net/rapid"
)

func drawEvent(t *rapid.T) Event {
	offered := []string{"free", "plus", "pro"}
	switch rapid.IntRange(0, 9).Draw(t, "kind") {
	case 0:
		field := rapid.SampledFrom([]Field{FieldEmail, FieldDisplayName, FieldPassword, FieldConfirmPassword}).Draw(t, "field")
		return EditField{Field: field, Value: rapid.StringMatching(`[a-z@.]{0,12}`).Draw(t, "value")}
	case 1:
		return AccountCreated{UserID: rapid.SampledFrom([]string{"", "user-1"}).Draw(t, "user")}
	case 2:
		return SelectTier{TierID: rapid.SampledFrom([]string{"", "free", "pro", "gold"}).Draw(t, "tier"), Offered: offered}
	case 3:
		return Continue{}
	case 4:
		return Back{}
	case 5:
		return Restore{Step: Step(rapid.IntRange(0, 2).Draw(t, "restore"))}
	case 6:
		return AttachAvatar{Ref: AvatarRef{Token: rapid.StringMatching(`[a-f]{4}`).Draw(t, "token")}}
	case 7:
		return RemoveAvatar{}
	case 8:
		blocker := rapid.SampledFrom([]Blocker{BlockerNone, BlockerNoServices, BlockerSyncInProgress}).Draw(t, "blocker")
		return Complete{Gate: Gate{Blocker: blocker}}
	default:
		return Reset{}
	}
}

// Every reachable state keeps the ordering and gating rules.
func TestReduce_Invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			ev := drawEvent(t)
			next, err := Reduce(s, ev)

			if err != nil && next != s {
				t.Fatalf("event %T failed with %v but changed state", ev, err)
			}
			if next.Step < StepAccount || next.Step > StepServices {
				t.Fatalf("step out of range: %d", next.Step)
			}

			switch ev.(type) {
			case Restore, Reset:
			default:
				if d := int(next.Step) - int(s.Step); d > 1 || d < -1 {
					t.Fatalf("event %T skipped from %s to %s", ev, s.Step, next.Step)
				}
			}

			if next.Step > StepAccount && !next.Registered() {
				t.Fatalf("reached %s without an account", next.Step)
			}
			if next.Step == StepServices && next.SelectedTierID == "" {
				t.Fatalf("reached services without a tier via %T", ev)
			}
			if next.Completed && !s.Completed && next.SelectedTierID == "" {
				t.Fatal("completed without a tier")
			}
			if c, ok := ev.(Complete); ok && next.Completed && !s.Completed && !c.Gate.Enabled() {
				t.Fatal("completed with a blocked gate")
			}
			if _, ok := ev.(AccountCreated); ok && err == nil && s.Form.Password != s.Form.ConfirmPassword {
				t.Fatal("account step committed with mismatched passwords")
			}
			s = next
		}
	})
}
