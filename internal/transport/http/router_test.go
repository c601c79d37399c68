package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/push"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/sqlite"
)

const testSecret = "test-secret"

type nopSender struct{}

func (nopSender) Send(context.Context, domain.PushEndpoint, []byte, push.Options) error { return nil }

type api struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	st, err := sqlite.Open(sqlite.Config{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := service.NewRegistry()
	coord := service.NewCoordinator(reg, st, st, service.MembershipConfig{})
	chat := service.NewChatService(reg, coord, st, st, service.ChatConfig{})
	rooms := service.NewRoomService(st, st, reg)
	notify := service.NewNotificationService(st, st, nopSender{}, service.NotificationConfig{}, nil)

	h := NewRouter(Deps{
		Handler:  NewHandler(rooms, chat, notify),
		Verifier: auth.NewWithKey([]byte(testSecret), auth.Config{}),
		Users:    st,
	})
	return &api{t: t, handler: h}
}

func token(t *testing.T, sub, username string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: username,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (a *api) do(method, path, tok string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestRouter_HealthAndAuth(t *testing.T) {
	a := newAPI(t)

	if code := a.do(http.MethodGet, "/healthz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}
	if code := a.do(http.MethodGet, "/rooms", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
	if code := a.do(http.MethodGet, "/rooms", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", code)
	}
	if code := a.do(http.MethodGet, "/rooms", token(t, "guest", "x"), nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("non numeric subject = %d", code)
	}
}

func TestRouter_RoomsAndFavorites(t *testing.T) {
	a := newAPI(t)
	tok := token(t, "7", "ann")

	var bad ErrorResponse
	if code := a.do(http.MethodPost, "/rooms", tok, CreateRoomRequest{Name: "  "}, &bad); code != http.StatusBadRequest {
		t.Fatalf("empty name = %d %+v", code, bad)
	}

	var room RoomItem
	code := a.do(http.MethodPost, "/rooms", tok, CreateRoomRequest{Name: "Lobby", Location: LocationItem{Lat: 1, Lon: 2, Label: "hall"}}, &room)
	if code != http.StatusCreated || room.ID == "" || room.Type != "public" || room.Location.Label != "hall" {
		t.Fatalf("create = %d %+v", code, room)
	}

	if code := a.do(http.MethodGet, "/rooms/nope", tok, nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing room = %d", code)
	}
	if code := a.do(http.MethodPost, "/rooms/nope/favorite", tok, nil, nil); code != http.StatusNotFound {
		t.Fatalf("favorite missing room = %d", code)
	}

	if code := a.do(http.MethodPost, "/rooms/"+room.ID+"/favorite", tok, nil, nil); code != http.StatusOK {
		t.Fatalf("favorite = %d", code)
	}
	var got RoomItem
	if code := a.do(http.MethodGet, "/rooms/"+room.ID, tok, nil, &got); code != http.StatusOK || !got.IsFavorite {
		t.Fatalf("get = %d %+v", code, got)
	}

	var list RoomsListResponse
	if code := a.do(http.MethodGet, "/rooms?limit=5", tok, nil, &list); code != http.StatusOK || len(list.Items) != 1 || !list.Items[0].IsFavorite {
		t.Fatalf("list = %d %+v", code, list)
	}
	// favorites are per user
	if code := a.do(http.MethodGet, "/rooms", token(t, "8", "bob"), nil, &list); code != http.StatusOK || list.Items[0].IsFavorite {
		t.Fatalf("list for bob = %d %+v", code, list)
	}
	if code := a.do(http.MethodGet, "/rooms?cursor=garbage!", tok, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad cursor = %d", code)
	}

	if code := a.do(http.MethodDelete, "/rooms/"+room.ID+"/favorite", tok, nil, nil); code != http.StatusOK {
		t.Fatalf("unfavorite = %d", code)
	}
	if a.do(http.MethodGet, "/rooms/"+room.ID, tok, nil, &got); got.IsFavorite {
		t.Fatal("still favorite")
	}

	var msgs MessagesResponse
	if code := a.do(http.MethodGet, "/rooms/"+room.ID+"/messages", tok, nil, &msgs); code != http.StatusOK || len(msgs.Items) != 0 {
		t.Fatalf("messages = %d %+v", code, msgs)
	}
}

func TestRouter_NotificationFlow(t *testing.T) {
	a := newAPI(t)
	tok := token(t, "7", "ann")

	var room RoomItem
	a.do(http.MethodPost, "/rooms", tok, CreateRoomRequest{Name: "Lobby"}, &room)
	path := "/rooms/" + room.ID + "/notifications"

	var el EligibilityResponse
	if code := a.do(http.MethodGet, path, tok, nil, &el); code != http.StatusOK || el.Allowed || el.Reason != service.ReasonNoEndpoints {
		t.Fatalf("eligibility = %d %+v", code, el)
	}

	if code := a.do(http.MethodPost, "/push/endpoints", tok, RegisterEndpointRequest{Endpoint: "https://push.example/1"}, nil); code != http.StatusBadRequest {
		t.Fatalf("missing keys = %d", code)
	}
	reg := RegisterEndpointRequest{Endpoint: "https://push.example/1", Keys: domain.PushKeys{P256dh: "p", Auth: "a"}}
	if code := a.do(http.MethodPost, "/push/endpoints", tok, reg, nil); code != http.StatusCreated {
		t.Fatalf("register = %d", code)
	}

	a.do(http.MethodGet, path, tok, nil, &el)
	if el.Allowed || el.Reason != service.ReasonNotFavorite {
		t.Fatalf("before favorite = %+v", el)
	}

	a.do(http.MethodPost, "/rooms/"+room.ID+"/favorite", tok, nil, nil)
	a.do(http.MethodGet, path, tok, nil, &el)
	if !el.Allowed {
		t.Fatalf("after favorite = %+v", el)
	}

	if code := a.do(http.MethodPost, "/rooms/"+room.ID+"/visit", tok, nil, nil); code != http.StatusNoContent {
		t.Fatalf("visit = %d", code)
	}

	if code := a.do(http.MethodDelete, "/push/endpoints", tok, UnregisterEndpointRequest{}, nil); code != http.StatusBadRequest {
		t.Fatalf("unregister without endpoint = %d", code)
	}
	if code := a.do(http.MethodDelete, "/push/endpoints", tok, UnregisterEndpointRequest{Endpoint: reg.Endpoint}, nil); code != http.StatusNoContent {
		t.Fatalf("unregister = %d", code)
	}
	a.do(http.MethodGet, path, tok, nil, &el)
	if el.Reason != service.ReasonNoEndpoints {
		t.Fatalf("after unregister = %+v", el)
	}
}
