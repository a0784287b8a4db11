package relay

import (
	"sync"
	"testing"

	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []string
	full   bool
	closed int
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed > 0 {
		return domain.ErrChannelClosed
	}
	if c.full {
		return domain.ErrBackpressure
	}
	c.frames = append(c.frames, string(f))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
}

func (c *fakeConn) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHubForwardsBetweenPeers(t *testing.T) {
	h := NewHub(0, nil)
	doc, pat := &fakeConn{}, &fakeConn{}
	h.Join("a1", domain.Doctor, doc)
	h.Join("a1", domain.Patient, pat)

	h.Forward("a1", domain.Doctor, doc, core.Frame("offer"))
	h.Forward("a1", domain.Patient, pat, core.Frame("answer"))

	if got := pat.got(); !equal(got, []string{"offer"}) {
		t.Fatalf("patient got %v", got)
	}
	if got := doc.got(); !equal(got, []string{"answer"}) {
		t.Fatalf("doctor got %v", got)
	}
}

func TestHubQueuesUntilPeerJoins(t *testing.T) {
	h := NewHub(0, nil)
	doc := &fakeConn{}
	h.Join("a1", domain.Doctor, doc)
	h.Forward("a1", domain.Doctor, doc, core.Frame("offer"))
	h.Forward("a1", domain.Doctor, doc, core.Frame("cand-1"))

	pat := &fakeConn{}
	h.Join("a1", domain.Patient, pat)
	if got := pat.got(); !equal(got, []string{"offer", "cand-1"}) {
		t.Fatalf("flushed %v, want offer then cand-1", got)
	}
}

func TestHubPendingOverflowDrops(t *testing.T) {
	h := NewHub(8, nil)
	doc := &fakeConn{}
	h.Join("a1", domain.Doctor, doc)
	h.Forward("a1", domain.Doctor, doc, core.Frame("12345"))
	h.Forward("a1", domain.Doctor, doc, core.Frame("6789"))

	pat := &fakeConn{}
	h.Join("a1", domain.Patient, pat)
	if got := pat.got(); !equal(got, []string{"12345"}) {
		t.Fatalf("flushed %v", got)
	}
}

func TestHubRoomsAreIsolated(t *testing.T) {
	h := NewHub(0, nil)
	d1, p1, p2 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Join("a1", domain.Doctor, d1)
	h.Join("a1", domain.Patient, p1)
	h.Join("a2", domain.Patient, p2)

	h.Forward("a1", domain.Doctor, d1, core.Frame("x"))
	if len(p2.got()) != 0 {
		t.Fatal("frame leaked into another appointment")
	}
}

func TestHubReplaceClosesPreviousConnection(t *testing.T) {
	h := NewHub(0, nil)
	oldDoc, newDoc, pat := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Join("a1", domain.Doctor, oldDoc)
	h.Join("a1", domain.Patient, pat)
	h.Join("a1", domain.Doctor, newDoc)

	if oldDoc.closed != 1 {
		t.Fatalf("old connection closed %d times", oldDoc.closed)
	}

	// Frames and leave from the replaced connection are ignored.
	h.Forward("a1", domain.Doctor, oldDoc, core.Frame("stale"))
	h.Leave("a1", domain.Doctor, oldDoc)
	if len(pat.got()) != 0 || pat.closed != 0 {
		t.Fatal("stale connection affected the room")
	}

	h.Forward("a1", domain.Doctor, newDoc, core.Frame("fresh"))
	if got := pat.got(); !equal(got, []string{"fresh"}) {
		t.Fatalf("patient got %v", got)
	}
}

func TestHubReplaceDiscardsQueuedFrames(t *testing.T) {
	h := NewHub(0, nil)
	oldDoc, newDoc := &fakeConn{}, &fakeConn{}
	h.Join("a1", domain.Doctor, oldDoc)
	h.Forward("a1", domain.Doctor, oldDoc, core.Frame(`{"type":"offer","data":"sdp-old"}`))
	h.Forward("a1", domain.Doctor, oldDoc, core.Frame(`{"type":"candidate","data":"old"}`))

	h.Join("a1", domain.Doctor, newDoc)
	h.Forward("a1", domain.Doctor, newDoc, core.Frame(`{"type":"offer","data":"sdp-new"}`))

	pat := &fakeConn{}
	h.Join("a1", domain.Patient, pat)
	want := []string{`{"type":"offer","data":"sdp-new"}`}
	if got := pat.got(); !equal(got, want) {
		t.Fatalf("patient got %v, want %v", got, want)
	}
	if oldDoc.closed != 1 {
		t.Fatalf("old connection closed %d times", oldDoc.closed)
	}
}

func TestHubLeaveClosesPeerAndRemovesRoom(t *testing.T) {
	h := NewHub(0, nil)
	doc, pat := &fakeConn{}, &fakeConn{}
	h.Join("a1", domain.Doctor, doc)
	h.Join("a1", domain.Patient, pat)

	h.Leave("a1", domain.Doctor, doc)
	if pat.closed != 1 {
		t.Fatalf("peer closed %d times", pat.closed)
	}
	if n := len(h.Rooms()); n != 0 {
		t.Fatalf("rooms=%d after leave", n)
	}
	h.Leave("a1", domain.Patient, pat)
	if pat.closed != 1 {
		t.Fatal("second leave closed again")
	}
}

func TestHubBackpressureClosesSlowPeer(t *testing.T) {
	h := NewHub(0, nil)
	doc, pat := &fakeConn{}, &fakeConn{full: true}
	h.Join("a1", domain.Doctor, doc)
	h.Join("a1", domain.Patient, pat)

	h.Forward("a1", domain.Doctor, doc, core.Frame("offer"))
	if pat.closed != 1 {
		t.Fatalf("slow peer closed %d times", pat.closed)
	}
}
