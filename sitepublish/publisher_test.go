package sitepublish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClient struct {
	mu          sync.Mutex
	pingErr     error
	upsertErr   error
	upsertCalls int
	uploadCalls int
	pageUrl     string
	lastPayload PagePayload
}

func (f *fakeClient) UpsertPage(ctx context.Context, payload PagePayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.lastPayload = payload
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	return f.pageUrl, nil
}

func (f *fakeClient) UploadAsset(ctx context.Context, req AssetUploadRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	return "https://cdn.test/" + req.Filename, nil
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeClient) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeClient) setUpsertErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertErr = err
}

func (f *fakeClient) stats() (upserts, uploads int, payload PagePayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertCalls, f.uploadCalls, f.lastPayload
}

func TestTryAcquireSingleFlight(t *testing.T) {
	p := NewPublisher(&fakeClient{})

	if !p.tryAcquire(7) {
		t.Fatal("first acquire should succeed")
	}
	if p.tryAcquire(7) {
		t.Fatal("second acquire for the same id should fail")
	}
	if !p.tryAcquire(8) {
		t.Fatal("acquire for a different id should succeed")
	}

	p.release(7)
	if !p.tryAcquire(7) {
		t.Fatal("acquire after release should succeed")
	}
}

func TestTryAcquireConcurrent(t *testing.T) {
	p := NewPublisher(&fakeClient{})

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.tryAcquire(1) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("exactly one goroutine should win the in-flight slot; got %d", count)
	}
}

func TestNetworkMonitorStartsOptimistic(t *testing.T) {
	m := NewNetworkMonitor(&fakeClient{}, nil)
	if !m.Reachable() {
		t.Fatal("monitor should assume reachable before the first probe")
	}
}

func TestSetReachableReportsRestoreTransition(t *testing.T) {
	m := NewNetworkMonitor(&fakeClient{}, nil)

	if restored := m.setReachable(true); restored {
		t.Fatal("reachable -> reachable is not a restore")
	}
	if restored := m.setReachable(false); restored {
		t.Fatal("going down is not a restore")
	}
	if m.Reachable() {
		t.Fatal("monitor should report unreachable")
	}
	if restored := m.setReachable(true); !restored {
		t.Fatal("unreachable -> reachable must report a restore")
	}
}

func TestRunFiresRestoreCallbackOnce(t *testing.T) {
	client := &fakeClient{pingErr: errors.New("down")}
	restores := make(chan struct{}, 4)

	m := &NetworkMonitor{
		reachable: true,
		probe:     client.Ping,
		interval:  5 * time.Millisecond,
		onRestore: func(ctx context.Context) { restores <- struct{}{} },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// let a few failing probes land
	deadline := time.After(2 * time.Second)
	for m.Reachable() {
		select {
		case <-deadline:
			t.Fatal("monitor never observed the outage")
		case <-time.After(5 * time.Millisecond):
		}
	}

	client.setPingErr(nil)
	select {
	case <-restores:
	case <-time.After(2 * time.Second):
		t.Fatal("restore callback never fired")
	}
	if !m.Reachable() {
		t.Fatal("monitor should report reachable after recovery")
	}

	// steady healthy probes must not fire again
	select {
	case <-restores:
		t.Fatal("restore callback fired on a steady healthy probe")
	case <-time.After(50 * time.Millisecond):
	}
}
