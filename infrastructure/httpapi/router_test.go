package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"match-chat/domain"
	"match-chat/mocks"
	"match-chat/observability"
	"match-chat/runtime"
	"match-chat/services"
	"match-chat/sink"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	server  *httptest.Server
	service *services.ChatService
	matches *mocks.MockMatchDirectory
	history *mocks.MockMessageHistory
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityResolver(ctrl)
	identities.EXPECT().ResolveIdentity(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string) (domain.Identity, error) {
			return domain.Identity{ID: id, DisplayName: strings.ToUpper(id)}, nil
		}).AnyTimes()
	matches := mocks.NewMockMatchDirectory(ctrl)
	history := mocks.NewMockMessageHistory(ctrl)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	coordinator := runtime.NewCoordinator(log, runtime.NewRegistry(), runtime.NewMembershipTable(), identities,
		mocks.NewMockMessageStore(ctrl), runtime.CoordinatorConfig{LookupTimeout: time.Second, PersistTimeout: time.Second})
	metrics := observability.NewMetrics(coordinator)
	service := services.NewChatService(coordinator, metrics)
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	server := httptest.NewServer(NewRouter(log, service, ws, metrics, matches, history, RouterConfig{HistoryLimit: 2}))
	t.Cleanup(server.Close)
	return &fixture{server: server, service: service, matches: matches, history: history}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestRouter_Presence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.matches.EXPECT().MatchExists(gomock.Any(), domain.RoomID("M1")).Return(true, nil).AnyTimes()

	// Given A then B in M1
	for _, id := range []string{"a", "b"} {
		conn := f.service.Open(sink.NewConnectionSink(8))
		req.NoError(f.service.Join(context.Background(), conn, "", domain.JoinCommand{Room: "M1", IdentityID: id}))
	}

	// When the presence of M1 is requested
	resp, body := f.get(t, "/matches/M1/presence")

	// Then both are listed in arrival order
	req.Equal(http.StatusOK, resp.StatusCode)
	var presence PresenceResponse
	req.NoError(json.Unmarshal(body, &presence))
	req.Equal("M1", presence.RoomID)
	req.Equal([]string{"a", "b"}, lo.Map(presence.Membership, func(i domain.Identity, _ int) string { return i.ID }))
}

func TestRouter_Presence_Empty_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.matches.EXPECT().MatchExists(gomock.Any(), domain.RoomID("M2")).Return(true, nil)

	resp, body := f.get(t, "/matches/M2/presence")

	req.Equal(http.StatusOK, resp.StatusCode)
	req.JSONEq(`{"roomId":"M2","membership":[]}`, string(body))
}

func TestRouter_Presence_Unknown_Match(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.matches.EXPECT().MatchExists(gomock.Any(), domain.RoomID("M9")).Return(false, nil)

	resp, _ := f.get(t, "/matches/M9/presence")

	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Messages(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.matches.EXPECT().MatchExists(gomock.Any(), domain.RoomID("M1")).Return(true, nil).AnyTimes()
	at := time.Date(2026, 6, 11, 20, 0, 0, 0, time.UTC)
	f.history.EXPECT().GetMessages(gomock.Any(), domain.RoomID("M1"), lo.ToPtr("c1"), 2).
		Return([]domain.Post{{ID: "p2", AuthorID: "a", Content: "goal", Category: domain.CategoryBanter, CreatedAt: at}}, nil, nil)

	resp, body := f.get(t, "/matches/M1/messages?cursor=c1")

	req.Equal(http.StatusOK, resp.StatusCode)
	req.JSONEq(`{"roomId":"M1","messages":[{"id":"p2","authorId":"a","content":"goal","category":"banter",
		"createdAt":"2026-06-11T20:00:00Z"}]}`, string(body))

	resp, _ = f.get(t, "/matches/M1/messages?limit=abc")
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_Health_Metrics_WS(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	resp, body := f.get(t, "/healthz")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.JSONEq(`{"status":"ok"}`, string(body))

	metrics, err := http.Get(f.server.URL + "/metrics")
	req.NoError(err)
	defer metrics.Body.Close()
	req.Equal(http.StatusOK, metrics.StatusCode)

	resp, _ = f.get(t, "/ws")
	req.Equal(http.StatusTeapot, resp.StatusCode)
}
