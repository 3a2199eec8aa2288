package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/auth"
	"github.com/cardroom/cardroom-server/internal/config"
	"github.com/cardroom/cardroom-server/internal/core"
	"github.com/cardroom/cardroom-server/internal/game"
	"github.com/cardroom/cardroom-server/internal/store"
	"github.com/cardroom/cardroom-server/internal/store/sqlite"
	"github.com/cardroom/cardroom-server/internal/utils"
)

type testEnv struct {
	srv  *httptest.Server
	hub  *core.Hub
	st   store.Store
	auth *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	logger := zerolog.New(nil)

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	reg := core.NewRegistry(st, &logger)
	router := core.NewRouter(reg, &logger)
	hub := core.NewHub(st, reg, router, game.NewStandardEngine(), &logger)

	server := NewServer(hub, authService, st, &cfg, &logger)
	srv := httptest.NewServer(server.Handler)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, hub: hub, st: st, auth: authService}
}

// registerUser creates an account over the REST API and returns its token
// and persisted id.
func (e *testEnv) registerUser(t *testing.T, username string) (string, int64) {
	t.Helper()

	resp := e.doJSON(t, "POST", "/api/register", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	var body AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	user, err := e.st.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("lookup %s: %v", username, err)
	}
	return body.Token, user.ID
}

// joinRoom puts the user into the room through the core, simulating an open
// socket session.
func (e *testEnv) joinRoom(t *testing.T, userID int64, code string) *core.Client {
	t.Helper()

	c := core.NewClient(utils.NewConnID())
	if _, err := e.hub.Registry().Authenticate(context.Background(), c, userID); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := e.hub.Join(context.Background(), c, code); err != nil {
		t.Fatalf("join: %v", err)
	}
	return c
}

func (e *testEnv) createRoom(t *testing.T, userID int64, stake int64) (*core.RoomSnapshot, *core.Client) {
	t.Helper()

	c := core.NewClient(utils.NewConnID())
	if _, err := e.hub.Registry().Authenticate(context.Background(), c, userID); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	snap, err := e.hub.CreateRoom(context.Background(), c, stake, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return snap, c
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := stdhttp.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, "GET", "/health", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	token, _ := env.registerUser(t, "alice")

	// Bad credentials are rejected.
	resp := env.doJSON(t, "POST", "/api/login", "", map[string]string{
		"username": "alice",
		"password": "wrongpassword",
	})
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("wrong password status %d", resp.StatusCode)
	}

	resp = env.doJSON(t, "GET", "/api/me", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("me status %d", resp.StatusCode)
	}
	var me UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Username != "alice" || me.Balance != 1000 {
		t.Fatalf("unexpected profile: %+v", me)
	}

	// Protected endpoints need a token.
	resp = env.doJSON(t, "GET", "/api/me", "", nil)
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("unauthenticated me status %d", resp.StatusCode)
	}
}

func TestGuestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, "POST", "/api/guest", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("guest status %d", resp.StatusCode)
	}
	var body AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode guest response: %v", err)
	}

	resp = env.doJSON(t, "GET", "/api/me", body.Token, nil)
	defer resp.Body.Close()
	var me UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if !me.IsGuest {
		t.Fatalf("expected guest profile, got %+v", me)
	}
}

func TestListRooms(t *testing.T) {
	env := newTestEnv(t)

	token, aliceID := env.registerUser(t, "alice")
	snap, _ := env.createRoom(t, aliceID, 50)
	if err := env.hub.Publish(context.Background(), aliceID, snap.Code, false); err != nil {
		t.Fatalf("publish: %v", err)
	}

	resp := env.doJSON(t, "GET", "/api/rooms", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
	var rooms []LobbyRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Code != snap.Code || rooms[0].Players != 1 || rooms[0].Stake != 50 {
		t.Fatalf("unexpected lobby list: %+v", rooms)
	}
}

func TestUpdateSettingsREST(t *testing.T) {
	env := newTestEnv(t)

	aliceToken, aliceID := env.registerUser(t, "alice")
	bobToken, bobID := env.registerUser(t, "bob")

	snap, _ := env.createRoom(t, aliceID, 0)
	env.joinRoom(t, bobID, snap.Code)

	// A non-crown caller is refused.
	resp := env.doJSON(t, "PUT", "/api/rooms/"+snap.Code+"/settings", bobToken, map[string]any{
		"rounds": 5, "mode": "online",
	})
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusForbidden {
		t.Fatalf("non-crown settings status %d", resp.StatusCode)
	}

	resp = env.doJSON(t, "PUT", "/api/rooms/"+snap.Code+"/settings", aliceToken, map[string]any{
		"rounds": 5, "mode": "online",
	})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("crown settings status %d", resp.StatusCode)
	}
	var settings SettingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.Rounds != 5 {
		t.Fatalf("unexpected settings: %+v", settings)
	}

	// The unknown room maps to 404.
	resp = env.doJSON(t, "PUT", "/api/rooms/ZZZZZZ/settings", aliceToken, map[string]any{
		"rounds": 5, "mode": "online",
	})
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusNotFound {
		t.Fatalf("unknown room status %d", resp.StatusCode)
	}
}

func TestReadyRESTTriggersStart(t *testing.T) {
	env := newTestEnv(t)

	aliceToken, aliceID := env.registerUser(t, "alice")
	bobToken, bobID := env.registerUser(t, "bob")

	snap, _ := env.createRoom(t, aliceID, 100)
	env.joinRoom(t, bobID, snap.Code)

	resp := env.doJSON(t, "PUT", "/api/rooms/"+snap.Code+"/ready", aliceToken, map[string]any{"ready": true})
	defer resp.Body.Close()
	var first ReadyResponse
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if first.Started || first.AllReady {
		t.Fatalf("premature start: %+v", first)
	}

	// The REST alternate drives the same auto-start trigger as the socket.
	resp = env.doJSON(t, "PUT", "/api/rooms/"+snap.Code+"/ready", bobToken, map[string]any{"ready": true})
	defer resp.Body.Close()
	var second ReadyResponse
	if err := json.NewDecoder(resp.Body).Decode(&second); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if !second.AllReady || !second.Started {
		t.Fatalf("expected auto-start, got %+v", second)
	}

	room, err := env.st.GetRoomByCode(context.Background(), snap.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.Status != store.RoomStatusActive {
		t.Fatalf("room not active after REST start: %s", room.Status)
	}
}
