package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakeFeishu serves the subset of the Feishu API the client touches.
type fakeFeishu struct {
	tokenRequests int32
	lastMessage   map[string]string
}

func (f *fakeFeishu) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenRequests, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0, "msg": "ok",
			"tenant_access_token": "t-token",
			"expire":              7200,
		})
	})

	mux.HandleFunc("/open-apis/im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t-token" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 99991663, "msg": "invalid token"})
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastMessage = body
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "msg": "ok", "data": map[string]string{}})
	})

	mux.HandleFunc("/open-apis/im/v1/chats", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_token") == "" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 0, "msg": "ok",
				"data": map[string]interface{}{
					"items":      []map[string]string{{"chat_id": "oc_1"}, {"chat_id": "oc_2"}},
					"has_more":   true,
					"page_token": "next",
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0, "msg": "ok",
			"data": map[string]interface{}{
				"items":    []map[string]string{{"chat_id": "oc_3"}},
				"has_more": false,
			},
		})
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeFeishu) {
	t.Helper()
	fake := &fakeFeishu{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	c := NewClient("cli_test", "secret", nil, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	return c, fake
}

func TestSendText(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.SendText(context.Background(), "oc_chat", "hello"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	if fake.lastMessage["receive_id"] != "oc_chat" {
		t.Errorf("receive_id = %q", fake.lastMessage["receive_id"])
	}
	if fake.lastMessage["msg_type"] != "text" {
		t.Errorf("msg_type = %q", fake.lastMessage["msg_type"])
	}
	var content map[string]string
	if err := json.Unmarshal([]byte(fake.lastMessage["content"]), &content); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if content["text"] != "hello" {
		t.Errorf("content text = %q", content["text"])
	}
}

func TestSendCard(t *testing.T) {
	c, fake := newTestClient(t)

	card := map[string]interface{}{"header": map[string]string{"title": "Plan"}}
	if err := c.SendCard(context.Background(), "oc_chat", card); err != nil {
		t.Fatalf("SendCard() error = %v", err)
	}
	if fake.lastMessage["msg_type"] != "interactive" {
		t.Errorf("msg_type = %q", fake.lastMessage["msg_type"])
	}
}

func TestTenantTokenIsCached(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.SendText(ctx, "oc_chat", fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("SendText() error = %v", err)
		}
	}

	if got := atomic.LoadInt32(&fake.tokenRequests); got != 1 {
		t.Errorf("token fetched %d times, want 1", got)
	}
}

func TestJoinedChatsFollowsPagination(t *testing.T) {
	c, _ := newTestClient(t)

	chats, err := c.JoinedChats(context.Background())
	if err != nil {
		t.Fatalf("JoinedChats() error = %v", err)
	}
	want := []string{"oc_1", "oc_2", "oc_3"}
	if len(chats) != len(want) {
		t.Fatalf("chats = %v, want %v", chats, want)
	}
	for i := range want {
		if chats[i] != want[i] {
			t.Errorf("chats[%d] = %q, want %q", i, chats[i], want[i])
		}
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/open-apis/auth/v3/tenant_access_token/internal" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 0, "tenant_access_token": "t", "expire": 7200,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 230002, "msg": "bot not in chat"})
	}))
	defer srv.Close()

	c := NewClient("cli_test", "secret", nil, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err := c.SendText(context.Background(), "oc_chat", "x"); err == nil {
		t.Error("SendText() succeeded, want API error")
	}
}

func TestMentionStripping(t *testing.T) {
	got := mentionPattern.ReplaceAllString("@_user_1 fix the build @_user_2 please", "")
	if got != "fix the build please" {
		t.Errorf("stripped text = %q", got)
	}
}
