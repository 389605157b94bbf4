package correlation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpcore/mcpcore/pkg/jsonrpc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestManager_RegisterAndCorrelate(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: 10 * time.Millisecond}, testLogger())
	defer m.Shutdown()

	id, handle, err := m.RegisterRequest(time.Second, nil)
	if err != nil {
		t.Fatalf("RegisterRequest: %v", err)
	}
	if m.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", m.PendingCount())
	}

	resp := &jsonrpc.Response{ID: id, Result: []byte(`{"ok":true}`)}
	if err := m.CorrelateResponse(id, resp, nil); err != nil {
		t.Fatalf("CorrelateResponse: %v", err)
	}

	got, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(got.Result) != `{"ok":true}` {
		t.Errorf("Wait() result = %s, want %s", got.Result, `{"ok":true}`)
	}
	if m.PendingCount() != 0 {
		t.Errorf("PendingCount after completion = %d, want 0", m.PendingCount())
	}
}

func TestManager_CorrelateUnknownID(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: 10 * time.Millisecond}, testLogger())
	defer m.Shutdown()

	err := m.CorrelateResponse(jsonrpc.Int64ID(42), &jsonrpc.Response{}, nil)
	if err != ErrRequestNotFound {
		t.Fatalf("CorrelateResponse(unknown) = %v, want ErrRequestNotFound", err)
	}
}

func TestManager_DoubleCorrelateLoses(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: time.Hour}, testLogger())
	defer m.Shutdown()

	id, handle, err := m.RegisterRequest(time.Second, nil)
	if err != nil {
		t.Fatalf("RegisterRequest: %v", err)
	}

	if err := m.CorrelateResponse(id, &jsonrpc.Response{ID: id}, nil); err != nil {
		t.Fatalf("first CorrelateResponse: %v", err)
	}
	if err := m.CorrelateResponse(id, &jsonrpc.Response{ID: id}, nil); err != ErrAlreadyCompleted {
		t.Fatalf("second CorrelateResponse = %v, want ErrAlreadyCompleted", err)
	}

	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestManager_CorrelateAfterSweepPurgesIsRequestNotFound(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: 5 * time.Millisecond}, testLogger())
	defer m.Shutdown()

	id, handle, err := m.RegisterRequest(time.Second, nil)
	if err != nil {
		t.Fatalf("RegisterRequest: %v", err)
	}
	if err := m.CorrelateResponse(id, &jsonrpc.Response{ID: id}, nil); err != nil {
		t.Fatalf("first CorrelateResponse: %v", err)
	}
	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// Give the background sweep time to purge the now-completed entry.
	time.Sleep(50 * time.Millisecond)

	if err := m.CorrelateResponse(id, &jsonrpc.Response{ID: id}, nil); err != ErrRequestNotFound {
		t.Fatalf("CorrelateResponse after purge = %v, want ErrRequestNotFound", err)
	}
}

func TestManager_Cancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: 10 * time.Millisecond}, testLogger())
	defer m.Shutdown()

	id, handle, err := m.RegisterRequest(time.Second, nil)
	if err != nil {
		t.Fatalf("RegisterRequest: %v", err)
	}

	m.Cancel(id)
	// Idempotent: cancelling twice must not panic or block.
	m.Cancel(id)

	_, err = handle.Wait(context.Background())
	if err != ErrCancelled {
		t.Fatalf("Wait() after Cancel = %v, want ErrCancelled", err)
	}
}

func TestManager_OutOfOrderResponsesEachSeeOwnPayload(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: 10 * time.Millisecond}, testLogger())
	defer m.Shutdown()

	id1, h1, err := m.RegisterRequest(time.Second, nil)
	if err != nil {
		t.Fatalf("RegisterRequest(1): %v", err)
	}
	id2, h2, err := m.RegisterRequest(time.Second, nil)
	if err != nil {
		t.Fatalf("RegisterRequest(2): %v", err)
	}
	id3, h3, err := m.RegisterRequest(time.Second, nil)
	if err != nil {
		t.Fatalf("RegisterRequest(3): %v", err)
	}

	// Deliver out of registration order: 3, 1, 2.
	if err := m.CorrelateResponse(id3, &jsonrpc.Response{ID: id3, Result: []byte(`"three"`)}, nil); err != nil {
		t.Fatalf("CorrelateResponse(3): %v", err)
	}
	if err := m.CorrelateResponse(id1, &jsonrpc.Response{ID: id1, Result: []byte(`"one"`)}, nil); err != nil {
		t.Fatalf("CorrelateResponse(1): %v", err)
	}
	if err := m.CorrelateResponse(id2, &jsonrpc.Response{ID: id2, Result: []byte(`"two"`)}, nil); err != nil {
		t.Fatalf("CorrelateResponse(2): %v", err)
	}

	r1, err := h1.Wait(context.Background())
	if err != nil || string(r1.Result) != `"one"` {
		t.Errorf("handle 1: got (%v, %v), want (\"one\", nil)", r1, err)
	}
	r2, err := h2.Wait(context.Background())
	if err != nil || string(r2.Result) != `"two"` {
		t.Errorf("handle 2: got (%v, %v), want (\"two\", nil)", r2, err)
	}
	r3, err := h3.Wait(context.Background())
	if err != nil || string(r3.Result) != `"three"` {
		t.Errorf("handle 3: got (%v, %v), want (\"three\", nil)", r3, err)
	}
}

func TestManager_CapacityExceeded(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{MaxPendingRequests: 1, CleanupInterval: 10 * time.Millisecond}, testLogger())
	defer m.Shutdown()

	_, _, err := m.RegisterRequest(time.Second, nil)
	if err != nil {
		t.Fatalf("first RegisterRequest: %v", err)
	}
	_, _, err = m.RegisterRequest(time.Second, nil)
	if err != ErrCapacityExceeded {
		t.Fatalf("second RegisterRequest = %v, want ErrCapacityExceeded", err)
	}
}

func TestManager_SweepTimesOutExpiredEntries(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: 5 * time.Millisecond}, testLogger())
	defer m.Shutdown()

	_, handle, err := m.RegisterRequest(10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("RegisterRequest: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = handle.Wait(ctx)
	if err != ErrTimeout {
		t.Fatalf("Wait() = %v, want ErrTimeout", err)
	}
	if m.PendingCount() != 0 {
		t.Errorf("PendingCount after sweep = %d, want 0", m.PendingCount())
	}
}

func TestManager_WaitCancelsOnContextDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: time.Hour}, testLogger())
	defer m.Shutdown()

	_, handle, err := m.RegisterRequest(time.Hour, nil)
	if err != nil {
		t.Fatalf("RegisterRequest: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = handle.Wait(ctx)
	if err != context.Canceled {
		t.Fatalf("Wait() = %v, want context.Canceled", err)
	}
	// The cancelled wait must have released the pending entry too.
	deadline := time.Now().Add(time.Second)
	for m.PendingCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.PendingCount() != 0 {
		t.Errorf("PendingCount after context cancel = %d, want 0", m.PendingCount())
	}
}

func TestManager_RegisterRequestAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: 10 * time.Millisecond}, testLogger())
	m.Shutdown()

	_, _, err := m.RegisterRequest(time.Second, nil)
	if err != ErrShutdown {
		t.Fatalf("RegisterRequest after Shutdown = %v, want ErrShutdown", err)
	}
}

func TestManager_ShutdownCompletesOutstandingHandles(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: 10 * time.Millisecond}, testLogger())

	_, handle, err := m.RegisterRequest(time.Hour, nil)
	if err != nil {
		t.Fatalf("RegisterRequest: %v", err)
	}

	m.Shutdown()
	// Shutdown must itself be idempotent.
	m.Shutdown()

	_, err = handle.Wait(context.Background())
	if err != ErrShutdown {
		t.Fatalf("Wait() after Shutdown = %v, want ErrShutdown", err)
	}
}

func TestManager_PendingCountAcrossMultipleRequests(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(Config{CleanupInterval: time.Hour}, testLogger())
	defer m.Shutdown()

	ids := make([]jsonrpc.ID, 0, 3)
	for i := 0; i < 3; i++ {
		id, _, err := m.RegisterRequest(time.Minute, nil)
		if err != nil {
			t.Fatalf("RegisterRequest[%d]: %v", i, err)
		}
		ids = append(ids, id)
	}
	if got := m.PendingCount(); got != 3 {
		t.Fatalf("PendingCount = %d, want 3", got)
	}

	for _, id := range ids {
		if err := m.CorrelateResponse(id, &jsonrpc.Response{ID: id}, nil); err != nil {
			t.Fatalf("CorrelateResponse(%v): %v", id, err)
		}
	}
	if got := m.PendingCount(); got != 0 {
		t.Fatalf("PendingCount after draining = %d, want 0", got)
	}
}
