package realtime

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

type fakeConn struct {
	mu     sync.Mutex
	closed []string
}

func (c *fakeConn) Close(_ websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, reason)
	return nil
}

func (c *fakeConn) closes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.closed...)
}

func TestConnectionManager_Register(t *testing.T) {
	cm := NewConnectionManager()
	conn := &fakeConn{}

	cm.Register("id:kid", "tab-1", conn)

	if active := cm.GetActive("id:kid", "tab-1"); active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
	if cm.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", cm.Count())
	}
}

func TestConnectionManager_RegisterReplacesOlderSocket(t *testing.T) {
	cm := NewConnectionManager()
	older := &fakeConn{}
	newer := &fakeConn{}

	cm.Register("id:kid", "tab-1", older)
	cm.Register("id:kid", "tab-1", newer)

	if got := older.closes(); len(got) != 1 || got[0] != "conversation replaced" {
		t.Errorf("Expected older socket closed once, got %v", got)
	}
	if len(newer.closes()) != 0 {
		t.Error("Expected newer socket to stay open")
	}

	// The older socket's own unregister must not evict the newer one.
	cm.Unregister("id:kid", "tab-1", older)
	if active := cm.GetActive("id:kid", "tab-1"); active != newer {
		t.Errorf("Expected connection %v, got %v", newer, active)
	}
}

func TestConnectionManager_Unregister(t *testing.T) {
	cm := NewConnectionManager()
	conn := &fakeConn{}

	cm.Register("ip:10.0.0.1", "default", conn)
	cm.Unregister("ip:10.0.0.1", "default", conn)

	if active := cm.GetActive("ip:10.0.0.1", "default"); active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
	if cm.Count() != 0 {
		t.Errorf("Expected no connections, got %d", cm.Count())
	}
}

func TestConnectionManager_UnregisterKeepsOtherTabs(t *testing.T) {
	cm := NewConnectionManager()
	conn1 := &fakeConn{}
	conn2 := &fakeConn{}

	cm.Register("id:kid", "tab-1", conn1)
	cm.Register("id:kid", "tab-2", conn2)
	cm.Unregister("id:kid", "tab-1", conn1)

	if active := cm.GetActive("id:kid", "tab-2"); active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
}

func TestConnectionManager_CloseOwner(t *testing.T) {
	cm := NewConnectionManager()
	a := &fakeConn{}
	b := &fakeConn{}
	other := &fakeConn{}

	cm.Register("id:kid", "tab-1", a)
	cm.Register("id:kid", "tab-2", b)
	cm.Register("id:someone-else", "tab-1", other)

	cm.CloseOwner("id:kid")

	for _, c := range []*fakeConn{a, b} {
		if got := c.closes(); len(got) != 1 || got[0] != "signed out" {
			t.Errorf("Expected socket closed on sign-out, got %v", got)
		}
	}
	if len(other.closes()) != 0 {
		t.Error("Expected other owner's socket to stay open")
	}
	if cm.Count() != 1 {
		t.Errorf("Expected 1 connection left, got %d", cm.Count())
	}

	// Unknown owners are a no-op.
	cm.CloseOwner("id:nobody")
}

func TestConnectionManager_ConcurrentAccess(t *testing.T) {
	cm := NewConnectionManager()
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cm.Register("id:kid", "tab-"+strconv.Itoa(i), &fakeConn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cm.GetActive("id:kid", "tab-"+strconv.Itoa(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cm.Count()
		}
	}()
	wg.Wait()

	if cm.Count() != 1000 {
		t.Errorf("Expected 1000 connections, got %d", cm.Count())
	}
}
