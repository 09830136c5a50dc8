package app

import (
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func newSession(t *testing.T, name string) core.MemberSession {
	t.Helper()
	u, err := domain.NewUser(name)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	return core.NewMemberSession(domain.NewMember(u), &fakeConn{})
}

func TestRoomManager_Lifecycle(t *testing.T) {
	rm := NewRoomManager()
	a := newSession(t, "alice")
	b := newSession(t, "bob")

	if got := rm.ListParticipants("abc"); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list for absent room, got %#v", got)
	}
	if _, ok := rm.RemoveParticipant("abc", a.Meta().User.ID); ok {
		t.Error("remove from absent room should report false")
	}
	if _, ok := rm.Get("abc"); ok {
		t.Fatal("remove must not create the room")
	}

	if !rm.AddParticipant("abc", a) {
		t.Fatal("first add should succeed")
	}
	if rm.AddParticipant("abc", a) {
		t.Error("duplicate add should report false")
	}
	rm.AddParticipant("abc", b)

	got := rm.ListParticipants("abc")
	if len(got) != 2 || got[0].Name != "alice" || got[1].Name != "bob" {
		t.Errorf("expected join order [alice bob], got %+v", got)
	}

	if rm.DeleteIfEmpty("abc") {
		t.Error("non-empty room must not be deleted")
	}
	rm.RemoveParticipant("abc", a.Meta().User.ID)
	if _, ok := rm.Get("abc"); !ok {
		t.Fatal("room with bob left must stay")
	}
	rm.RemoveParticipant("abc", b.Meta().User.ID)
	if _, ok := rm.Get("abc"); ok {
		t.Error("last removal should drop the room")
	}
	if rm.DeleteIfEmpty("abc") {
		t.Error("DeleteIfEmpty on a dropped room should be a no-op")
	}

	rm.GetOrCreate("idle")
	if !rm.DeleteIfEmpty("idle") {
		t.Error("room created without participants should be deletable")
	}
}

// HTTP handlers read the registry while the gateway mutates it.
func TestRoomManager_ListNeverShowsEmptyRooms(t *testing.T) {
	rm := NewRoomManager()
	a := newSession(t, "alice")
	uid := a.Meta().User.ID

	stop := make(chan struct{})
	empty := make(chan domain.RoomID, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, info := range rm.List() {
				if len(info.Users) == 0 {
					select {
					case empty <- info.ID:
					default:
					}
					return
				}
			}
			if got := rm.ListParticipants("abc"); got == nil {
				t.Error("ListParticipants returned nil")
				return
			}
		}
	}()

	for i := 0; i < 20000; i++ {
		rm.AddParticipant("abc", a)
		rm.RemoveParticipant("abc", uid)
		rm.DeleteIfEmpty("abc")
	}
	close(stop)
	wg.Wait()

	select {
	case id := <-empty:
		t.Fatalf("List observed room %s with no participants", id)
	default:
	}
}

func TestRoomManager_ListSorted(t *testing.T) {
	rm := NewRoomManager()
	for _, id := range []domain.RoomID{"zeta", "alpha", "mid"} {
		rm.AddParticipant(id, newSession(t, "u-"+string(id)))
	}
	list := rm.List()
	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, string(r.ID))
		if len(r.Users) != 1 {
			t.Errorf("room %s: expected 1 user, got %d", r.ID, len(r.Users))
		}
	}
	if !slices.Equal(ids, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("unexpected order %v", ids)
	}
}

// Random join/leave sequences must leave the registry matching a plain
// set model, with no empty rooms left behind.
func TestRoomManager_RandomSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rm := NewRoomManager()
	rooms := []domain.RoomID{"a", "b", "c"}
	sessions := make([]core.MemberSession, 8)
	for i := range sessions {
		sessions[i] = newSession(t, "user")
	}
	model := map[domain.RoomID]map[domain.UserID]bool{}

	for step := 0; step < 2000; step++ {
		ms := sessions[rng.Intn(len(sessions))]
		uid := ms.Meta().User.ID
		room := rooms[rng.Intn(len(rooms))]
		if rng.Intn(2) == 0 {
			added := rm.AddParticipant(room, ms)
			if added == model[room][uid] {
				t.Fatalf("step %d: add returned %v with model %v", step, added, model[room][uid])
			}
			if model[room] == nil {
				model[room] = map[domain.UserID]bool{}
			}
			model[room][uid] = true
		} else {
			_, removed := rm.RemoveParticipant(room, uid)
			if removed != model[room][uid] {
				t.Fatalf("step %d: remove returned %v with model %v", step, removed, model[room][uid])
			}
			delete(model[room], uid)
			if _, exists := rm.Get(room); exists != (len(model[room]) > 0) {
				t.Fatalf("step %d: room %s exists=%v with %d members in model", step, room, exists, len(model[room]))
			}
			if rm.DeleteIfEmpty(room) {
				t.Fatalf("step %d: DeleteIfEmpty found an emptied room", step)
			}
			if len(model[room]) == 0 {
				delete(model, room)
			}
		}

		for _, id := range rooms {
			want := len(model[id])
			if got := len(rm.ListParticipants(id)); got != want {
				t.Fatalf("step %d: room %s has %d participants, model %d", step, id, got, want)
			}
		}
		for _, info := range rm.List() {
			if len(info.Users) == 0 {
				t.Fatalf("step %d: empty room %s still listed", step, info.ID)
			}
		}
	}
}
