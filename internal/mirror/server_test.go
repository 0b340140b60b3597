package mirror

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cmdmenu/internal/engine"
	"cmdmenu/internal/protocol"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *engine.Registry, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := engine.NewRegistry(
		engine.WithKillGrace(500*time.Millisecond),
		engine.WithLogger(logger),
	)
	srv := New(reg, logger)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		httpSrv.Close()
		reg.Shutdown()
	})
	return srv, reg, httpSrv
}

func dialWS(t *testing.T, httpSrv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read message failed: %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return msg
}

func writeMessage(t *testing.T, ws *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	msg := protocol.Message{
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	data, _ := json.Marshal(msg)
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

func TestServer_SessionStatusIdle(t *testing.T) {
	_, _, httpSrv := newTestServer(t)

	resp, err := http.Get(httpSrv.URL + "/session")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "idle") {
		t.Errorf("body = %s, want idle state", body)
	}
}

func TestServer_LaunchStreamsOutput(t *testing.T) {
	_, _, httpSrv := newTestServer(t)
	ws := dialWS(t, httpSrv)

	writeMessage(t, ws, protocol.TypeSessionLaunch, protocol.SessionLaunchPayload{
		Command: "echo hello-mirror",
	})

	started := readMessage(t, ws)
	if started.Type != protocol.TypeSessionStarted {
		t.Fatalf("first message = %s, want session.started", started.Type)
	}
	var startedPayload protocol.SessionStartedPayload
	json.Unmarshal(started.Payload, &startedPayload)
	if startedPayload.Command != "echo hello-mirror" {
		t.Errorf("command = %q", startedPayload.Command)
	}
	if startedPayload.PID == 0 {
		t.Error("expected non-zero pid")
	}

	output := readMessage(t, ws)
	if output.Type != protocol.TypeSessionOutput {
		t.Fatalf("second message = %s, want session.output", output.Type)
	}
	var outputPayload protocol.SessionOutputPayload
	json.Unmarshal(output.Payload, &outputPayload)
	if outputPayload.Text != "hello-mirror\n" {
		t.Errorf("text = %q, want %q", outputPayload.Text, "hello-mirror\n")
	}
	if outputPayload.Stream != "stdout" {
		t.Errorf("stream = %q, want stdout", outputPayload.Stream)
	}
	if outputPayload.Seq != 1 {
		t.Errorf("seq = %d, want 1", outputPayload.Seq)
	}

	exited := readMessage(t, ws)
	if exited.Type != protocol.TypeSessionExited {
		t.Fatalf("third message = %s, want session.exited", exited.Type)
	}
	var exitedPayload protocol.SessionExitedPayload
	json.Unmarshal(exited.Payload, &exitedPayload)
	if exitedPayload.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", exitedPayload.ExitCode)
	}
}

func TestServer_LateClientCatchesUp(t *testing.T) {
	_, reg, httpSrv := newTestServer(t)

	sess, err := reg.Launch("echo replayed")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	// Let the session finish before anyone connects.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if s, ok := reg.Session(sess.ID); ok && s.State.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ws := dialWS(t, httpSrv)

	started := readMessage(t, ws)
	if started.Type != protocol.TypeSessionStarted {
		t.Fatalf("first message = %s, want session.started", started.Type)
	}
	output := readMessage(t, ws)
	if output.Type != protocol.TypeSessionOutput {
		t.Fatalf("second message = %s, want session.output", output.Type)
	}
	var outputPayload protocol.SessionOutputPayload
	json.Unmarshal(output.Payload, &outputPayload)
	if outputPayload.Text != "replayed\n" {
		t.Errorf("text = %q, want %q", outputPayload.Text, "replayed\n")
	}
	exited := readMessage(t, ws)
	if exited.Type != protocol.TypeSessionExited {
		t.Fatalf("third message = %s, want session.exited", exited.Type)
	}
}

func TestServer_InputAndKill(t *testing.T) {
	_, _, httpSrv := newTestServer(t)
	ws := dialWS(t, httpSrv)

	writeMessage(t, ws, protocol.TypeSessionLaunch, protocol.SessionLaunchPayload{
		Command: "cat",
	})

	started := readMessage(t, ws)
	if started.Type != protocol.TypeSessionStarted {
		t.Fatalf("first message = %s, want session.started", started.Type)
	}
	var startedPayload protocol.SessionStartedPayload
	json.Unmarshal(started.Payload, &startedPayload)

	writeMessage(t, ws, protocol.TypeSessionInput, protocol.SessionInputPayload{
		SessionID: startedPayload.SessionID,
		Text:      "mirror input",
	})

	output := readMessage(t, ws)
	if output.Type != protocol.TypeSessionOutput {
		t.Fatalf("got %s, want session.output", output.Type)
	}
	var outputPayload protocol.SessionOutputPayload
	json.Unmarshal(output.Payload, &outputPayload)
	if outputPayload.Text != "mirror input\n" {
		t.Errorf("text = %q", outputPayload.Text)
	}

	writeMessage(t, ws, protocol.TypeSessionKill, protocol.SessionKillPayload{
		SessionID: startedPayload.SessionID,
	})

	killed := readMessage(t, ws)
	if killed.Type != protocol.TypeSessionKilled {
		t.Fatalf("got %s, want session.killed", killed.Type)
	}
}

func TestServer_AlreadyRunningError(t *testing.T) {
	_, reg, httpSrv := newTestServer(t)

	if _, err := reg.Launch("cat"); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	ws := dialWS(t, httpSrv)

	// The connecting client is attached to the running session first.
	started := readMessage(t, ws)
	if started.Type != protocol.TypeSessionStarted {
		t.Fatalf("first message = %s, want session.started", started.Type)
	}

	writeMessage(t, ws, protocol.TypeSessionLaunch, protocol.SessionLaunchPayload{
		Command: "echo nope",
	})

	errMsg := readMessage(t, ws)
	if errMsg.Type != protocol.TypeError {
		t.Fatalf("got %s, want error", errMsg.Type)
	}
	var errPayload protocol.ErrorPayload
	json.Unmarshal(errMsg.Payload, &errPayload)
	if errPayload.Code != protocol.ErrAlreadyRunning {
		t.Errorf("code = %s, want %s", errPayload.Code, protocol.ErrAlreadyRunning)
	}
}

func TestServer_InvalidMessage(t *testing.T) {
	_, _, httpSrv := newTestServer(t)
	ws := dialWS(t, httpSrv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}

	resp := readMessage(t, ws)
	if resp.Type != protocol.TypeError {
		t.Fatalf("got %s, want error", resp.Type)
	}
	var errPayload protocol.ErrorPayload
	json.Unmarshal(resp.Payload, &errPayload)
	if errPayload.Code != protocol.ErrInvalidMessage {
		t.Errorf("code = %s, want %s", errPayload.Code, protocol.ErrInvalidMessage)
	}
}

func TestServer_TwoClientsSeeSameStream(t *testing.T) {
	_, reg, httpSrv := newTestServer(t)
	ws1 := dialWS(t, httpSrv)
	ws2 := dialWS(t, httpSrv)

	if _, err := reg.Launch("echo shared"); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	for _, ws := range []*websocket.Conn{ws1, ws2} {
		started := readMessage(t, ws)
		if started.Type != protocol.TypeSessionStarted {
			t.Fatalf("first message = %s, want session.started", started.Type)
		}
		output := readMessage(t, ws)
		var outputPayload protocol.SessionOutputPayload
		json.Unmarshal(output.Payload, &outputPayload)
		if outputPayload.Text != "shared\n" || outputPayload.Seq != 1 {
			t.Errorf("output = %+v, want seq 1 %q", outputPayload, "shared\n")
		}
		exited := readMessage(t, ws)
		if exited.Type != protocol.TypeSessionExited {
			t.Fatalf("got %s, want session.exited", exited.Type)
		}
	}
}
