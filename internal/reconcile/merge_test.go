package reconcile

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/vovakirdan/roomcast/internal/core"
)

var base = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func msg(id string, offset time.Duration) core.Message {
	return core.Message{ID: id, Room: "P1", AuthorID: "u1", Text: "text " + id, CreatedAt: base.Add(offset)}
}

func ids(msgs []core.Message) string {
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += ","
		}
		out += m.ID
	}
	return out
}

func TestMergeIsIdempotent(t *testing.T) {
	m := msg("101", 0)
	got := Merge(Merge(nil, m), m)
	if len(got) != 1 || got[0].ID != "101" {
		t.Fatalf("expected exactly one copy, got %v", ids(got))
	}
}

func TestMergeOrdersByTimestampNotArrival(t *testing.T) {
	late := msg("1", 2*time.Second)
	early := msg("2", time.Second)

	got := Merge(nil, late, early)
	if ids(got) != "2,1" {
		t.Fatalf("expected timestamp order 2,1, got %s", ids(got))
	}
}

func TestMergeTieBreaksByID(t *testing.T) {
	got := Merge(nil, msg("b", 0), msg("a", 0), msg("c", 0))
	if ids(got) != "a,b,c" {
		t.Fatalf("expected id tie-break a,b,c, got %s", ids(got))
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := []core.Message{msg("2", time.Second)}
	incoming := []core.Message{msg("1", 0)}

	_ = Merge(existing, incoming...)
	if existing[0].ID != "2" || len(existing) != 1 || incoming[0].ID != "1" {
		t.Fatal("inputs were modified")
	}
}

func TestMergeExistingCopyWins(t *testing.T) {
	first := msg("1", 0)
	second := first
	second.Text = "changed"

	got := Merge([]core.Message{first}, second)
	if got[0].Text != first.Text {
		t.Fatalf("existing copy should win, got %q", got[0].Text)
	}
}

func TestMergeConvergesForAnyArrivalOrder(t *testing.T) {
	var all []core.Message
	for i := range 30 {
		// Several messages share a timestamp to exercise the tie-break.
		all = append(all, msg(fmt.Sprintf("m%02d", i), time.Duration(i/3)*time.Millisecond))
	}
	want := ids(Merge(nil, all...))

	rng := rand.New(rand.NewPCG(1, 2))
	for trial := range 20 {
		shuffled := append([]core.Message(nil), all...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		// Duplicate a prefix to model echo and backfill overlap.
		shuffled = append(shuffled, shuffled[:10]...)

		var log []core.Message
		for _, m := range shuffled {
			log = Merge(log, m)
		}
		if got := ids(log); got != want {
			t.Fatalf("trial %d diverged:\n got %s\nwant %s", trial, got, want)
		}
	}
}

func TestContains(t *testing.T) {
	msgs := []core.Message{msg("1", 0)}
	if !Contains(msgs, "1") || Contains(msgs, "2") {
		t.Fatal("Contains mismatch")
	}
}
