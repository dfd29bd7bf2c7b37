package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

func TestLeaderboardFeedPushesCompletions(t *testing.T) {
	srv := newTestServer(t, "")

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/quiz/leaderboard/ws?user_id=watcher"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The first frame is the board as of connecting.
	board := readBoard(t, conn)
	if len(board.Entries) != 0 {
		t.Fatalf("expected empty board, got %d entries", len(board.Entries))
	}

	sessionID := srv.playSession(t, "u1", 2)
	if status := srv.do(t, http.MethodPost, "/v1/quiz/session/"+sessionID+"/complete", "u1", nil, nil); status != http.StatusOK {
		t.Fatalf("complete: status %d", status)
	}

	board = readBoard(t, conn)
	if len(board.Entries) != 1 {
		t.Fatalf("expected one entry after completion, got %d", len(board.Entries))
	}
	if board.Entries[0].UserRef != "u1" || board.Entries[0].Rank != 1 {
		t.Fatalf("unexpected entry %+v", board.Entries[0])
	}
}

func TestLeaderboardFeedRequiresIdentity(t *testing.T) {
	srv := newTestServer(t, "")

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/quiz/leaderboard/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure without identity")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func readBoard(t *testing.T, conn *websocket.Conn) domain.Leaderboard {
	t.Helper()
	typ, payload := readNext(conn, t, "leaderboard")
	if typ != "leaderboard" {
		t.Fatalf("expected leaderboard, got %s", typ)
	}
	var board domain.Leaderboard
	if err := json.Unmarshal(payload, &board); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	return board
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
