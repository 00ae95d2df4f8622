package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/northapp/northsync/internal/model"
	"github.com/northapp/northsync/internal/status"
)

func startTestServer(t *testing.T, tracker *status.Tracker) *Server {
	t.Helper()

	config := &Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}

	server := NewServer(tracker, nil, config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})

	return server
}

func dialClient(t *testing.T, ctx context.Context, server *Server, want int) *websocket.Conn {
	t.Helper()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	// Dial returns before the server registers the connection; wait until
	// the client is visible so broadcasts cannot race past it.
	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", want, server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := startTestServer(t, status.New(nil))

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := startTestServer(t, status.New(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server, 1)

	testData := SyncCompleteData{
		UserID:   "user-1",
		Synced:   3,
		Failed:   1,
		Duration: 2 * time.Second,
	}
	server.BroadcastSyncComplete(testData)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Errorf("Expected message type %s, got %s", MessageTypeSyncComplete, msg.Type)
	}

	var received SyncCompleteData
	if err := json.Unmarshal(msg.Data, &received); err != nil {
		t.Fatalf("Failed to unmarshal sync data: %v", err)
	}
	if received.UserID != testData.UserID || received.Synced != testData.Synced || received.Failed != testData.Failed {
		t.Errorf("Sync data mismatch: got %+v, want %+v", received, testData)
	}
}

func TestTransitionForwarding(t *testing.T) {
	tracker := status.New(nil)
	server := startTestServer(t, tracker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server, 1)

	if err := tracker.Transition("acc-1", "user-1", model.StatusSyncing); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := tracker.Transition("acc-1", "user-1", model.StatusSuccess); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	want := []TransitionData{
		{AccountID: "acc-1", UserID: "user-1", From: "IDLE", To: "SYNCING"},
		{AccountID: "acc-1", UserID: "user-1", From: "SYNCING", To: "SUCCESS"},
	}
	for i, w := range want {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeStatusTransition {
			t.Fatalf("Message %d: expected type %s, got %s", i, MessageTypeStatusTransition, msg.Type)
		}
		var got TransitionData
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("Failed to unmarshal transition data: %v", err)
		}
		if got != w {
			t.Errorf("Transition %d mismatch: got %+v, want %+v", i, got, w)
		}
	}
}

func TestMultipleClientsReceiveBroadcast(t *testing.T) {
	tracker := status.New(nil)
	server := startTestServer(t, tracker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	clients := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		clients[i] = dialClient(t, ctx, server, i+1)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}

	if err := tracker.Transition("acc-1", "user-1", model.StatusSyncing); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	for i, conn := range clients {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeStatusTransition {
			t.Errorf("Client %d: expected type %s, got %s", i, MessageTypeStatusTransition, msg.Type)
		}
	}
}

// recordingNext captures what the dashboard dispatcher forwards downstream.
type recordingNext struct {
	succeeded []string
	failed    []string
	pending   []string
}

func (r *recordingNext) SyncSucceeded(accountID string, newTransactions int) {
	r.succeeded = append(r.succeeded, accountID)
}

func (r *recordingNext) SyncFailed(accountID string, err error, retryable bool) {
	r.failed = append(r.failed, fmt.Sprintf("%s retryable=%v", accountID, retryable))
}

func (r *recordingNext) ConflictPending(accountID string, conflicts []model.ConflictRecord) {
	r.pending = append(r.pending, fmt.Sprintf("%s pending=%d", accountID, len(conflicts)))
}

func TestDispatcherBroadcastsAndForwards(t *testing.T) {
	server := startTestServer(t, status.New(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server, 1)

	next := &recordingNext{}
	dispatcher := NewDispatcher(server, next)

	dispatcher.SyncFailed("acc-1", errors.New("provider unreachable"), true)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncFailed {
		t.Errorf("Expected message type %s, got %s", MessageTypeSyncFailed, msg.Type)
	}
	var failedData SyncFailedData
	if err := json.Unmarshal(msg.Data, &failedData); err != nil {
		t.Fatalf("Failed to unmarshal failure data: %v", err)
	}
	if failedData.AccountID != "acc-1" || !failedData.Retryable {
		t.Errorf("Failure data mismatch: got %+v", failedData)
	}

	dispatcher.ConflictPending("acc-2", []model.ConflictRecord{{ID: "c-1"}, {ID: "c-2"}})

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeConflictPending {
		t.Errorf("Expected message type %s, got %s", MessageTypeConflictPending, msg.Type)
	}
	var pendingData ConflictPendingData
	if err := json.Unmarshal(msg.Data, &pendingData); err != nil {
		t.Fatalf("Failed to unmarshal conflict data: %v", err)
	}
	if pendingData.AccountID != "acc-2" || pendingData.Pending != 2 {
		t.Errorf("Conflict data mismatch: got %+v", pendingData)
	}

	// Successes are not broadcast, only forwarded.
	dispatcher.SyncSucceeded("acc-3", 5)

	if len(next.succeeded) != 1 || next.succeeded[0] != "acc-3" {
		t.Errorf("Expected acc-3 success forwarded, got %v", next.succeeded)
	}
	if len(next.failed) != 1 || next.failed[0] != "acc-1 retryable=true" {
		t.Errorf("Expected acc-1 failure forwarded, got %v", next.failed)
	}
	if len(next.pending) != 1 || next.pending[0] != "acc-2 pending=2" {
		t.Errorf("Expected acc-2 conflicts forwarded, got %v", next.pending)
	}
}

func TestDispatcherNilNext(t *testing.T) {
	server := startTestServer(t, status.New(nil))

	dispatcher := NewDispatcher(server, nil)

	// Must not panic without a downstream dispatcher.
	dispatcher.SyncSucceeded("acc-1", 2)
	dispatcher.SyncFailed("acc-1", errors.New("boom"), false)
	dispatcher.ConflictPending("acc-1", nil)
}

func TestHealthEndpoint(t *testing.T) {
	server := startTestServer(t, status.New(nil))

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Failed to GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("Expected status ok, got %s", body.Status)
	}
	if body.Clients != 0 {
		t.Errorf("Expected 0 clients, got %d", body.Clients)
	}
}
