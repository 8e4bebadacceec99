package index

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
)

func TestNewMemoryIndex(t *testing.T) {
	index := NewMemoryIndex()
	if index == nil {
		t.Fatal("NewMemoryIndex() returned nil")
	}
	if index.Count() != 0 {
		t.Errorf("NewMemoryIndex() should start empty, got %d", index.Count())
	}
	if !index.LastSync().IsZero() {
		t.Error("LastSync should be zero before the first UpdateHosts")
	}
}

func TestUpdateHostsOverwrites(t *testing.T) {
	index := NewMemoryIndex()

	index.UpdateHosts([]domain.Host{{Hostname: "h1", IP: "10.0.0.1"}})
	index.UpdateHosts([]domain.Host{
		{Hostname: "h2", IP: "10.0.0.2"},
		{Hostname: "h3", IP: "10.0.0.3"},
	})

	if index.Count() != 2 {
		t.Errorf("UpdateHosts() should overwrite, got %d hosts want 2", index.Count())
	}
	if _, ok := index.GetHost("h1"); ok {
		t.Error("h1 should be gone after overwrite")
	}
	if index.LastSync().IsZero() {
		t.Error("LastSync not set by UpdateHosts")
	}
}

func TestPutAndGetHost(t *testing.T) {
	index := NewMemoryIndex()

	index.PutHost(domain.Host{Hostname: "nas.lan", IP: "10.0.0.2", OpenTCPPorts: []int{22}})
	index.PutHost(domain.Host{Hostname: "nas.lan", IP: "10.0.0.3", OpenTCPPorts: []int{445}})

	got, ok := index.GetHost("nas.lan")
	if !ok {
		t.Fatal("GetHost() did not find nas.lan")
	}
	if got.IP != "10.0.0.3" {
		t.Errorf("IP = %q, want replaced value 10.0.0.3", got.IP)
	}
	if index.Count() != 1 {
		t.Errorf("Count() = %d, want 1", index.Count())
	}
}

func TestGetHostReturnsCopy(t *testing.T) {
	index := NewMemoryIndex()
	index.PutHost(domain.Host{Hostname: "h1", OpenTCPPorts: []int{22}})

	got, _ := index.GetHost("h1")
	got.OpenTCPPorts[0] = 9999

	again, _ := index.GetHost("h1")
	if again.OpenTCPPorts[0] != 22 {
		t.Errorf("caller mutated the indexed record: %v", again.OpenTCPPorts)
	}

	all := index.GetAllHosts()
	delete(all, "h1")
	if index.Count() != 1 {
		t.Error("GetAllHosts() exposed the internal map")
	}
}

func TestDeleteHost(t *testing.T) {
	index := NewMemoryIndex()
	index.PutHost(domain.Host{Hostname: "h1"})

	index.DeleteHost("h1")
	index.DeleteHost("missing")

	if index.Count() != 0 {
		t.Errorf("Count() = %d after delete, want 0", index.Count())
	}
}

func TestConcurrentAccess(t *testing.T) {
	index := NewMemoryIndex()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			index.PutHost(domain.Host{Hostname: fmt.Sprintf("h%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			_ = index.GetAllHosts()
		}()
	}
	wg.Wait()

	if index.Count() != 50 {
		t.Errorf("Count() = %d, want 50", index.Count())
	}
}

func TestLockHostSerializesWriters(t *testing.T) {
	index := NewMemoryIndex()

	unlock := index.LockHost("h1")
	acquired := make(chan struct{})
	go func() {
		release := index.LockHost("h1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired a held hostname lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired the lock after release")
	}
}
