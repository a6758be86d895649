package core

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistryJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := NewConnection("c1", Actor{}, 4)

	if !r.Join(c, "P1") {
		t.Fatal("first join should add member")
	}
	if r.Join(c, "P1") {
		t.Fatal("second join should be a no-op")
	}
	if got := len(r.Members("P1")); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}
}

func TestRegistryPrunesEmptyRooms(t *testing.T) {
	r := NewRegistry()
	a := NewConnection("a", Actor{}, 4)
	b := NewConnection("b", Actor{}, 4)

	r.Join(a, "P1")
	r.Join(b, "P1")
	r.Join(a, "P2")
	if r.RoomCount() != 2 {
		t.Fatalf("expected 2 rooms, got %d", r.RoomCount())
	}

	if !r.Leave("a", "P2") {
		t.Fatal("leave should report membership")
	}
	if r.Leave("a", "P2") {
		t.Fatal("second leave should be a no-op")
	}
	if r.RoomCount() != 1 {
		t.Fatalf("expected P2 to be pruned, rooms=%d", r.RoomCount())
	}
	if r.Leave("a", "ghost") {
		t.Fatal("leaving unknown room should be a no-op")
	}
}

func TestRegistryLeaveAll(t *testing.T) {
	r := NewRegistry()
	a := NewConnection("a", Actor{}, 4)
	b := NewConnection("b", Actor{}, 4)

	r.Join(a, "P1")
	r.Join(a, "P2")
	r.Join(b, "P2")

	left := r.LeaveAll("a")
	if len(left) != 2 || left[0] != "P1" || left[1] != "P2" {
		t.Fatalf("unexpected rooms left: %v", left)
	}
	if rooms := r.Rooms("a"); len(rooms) != 0 {
		t.Fatalf("a should have no rooms, got %v", rooms)
	}
	if members := r.Members("P2"); len(members) != 1 || members[0].ID != "b" {
		t.Fatalf("P2 should keep b only, got %v", members)
	}
	if left := r.LeaveAll("never-joined"); len(left) != 0 {
		t.Fatalf("never-joined connection left %v", left)
	}
}

func TestRegistryMembersIsSnapshot(t *testing.T) {
	r := NewRegistry()
	a := NewConnection("a", Actor{}, 4)
	r.Join(a, "P1")

	snap := r.Members("P1")
	r.Join(NewConnection("b", Actor{}, 4), "P1")
	if len(snap) != 1 {
		t.Fatalf("snapshot changed after join: %d", len(snap))
	}
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewConnection(fmt.Sprintf("c%d", i), Actor{}, 4)
			room := fmt.Sprintf("room-%d", i%5)
			for range 100 {
				r.Join(c, room)
				_ = r.Members(room)
				r.Leave(c.ID, room)
			}
			r.Join(c, room)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := range 5 {
		total += len(r.Members(fmt.Sprintf("room-%d", i)))
	}
	if total != 50 {
		t.Fatalf("expected 50 members across rooms, got %d", total)
	}
}
