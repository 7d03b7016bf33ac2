// Package apitest runs the full API over an in-memory sqlite database for
// client-side tests.
package apitest

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-sync/internal/api/routes"
	"chat-sync/internal/auth"
	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/repository"
	"chat-sync/internal/services"
	"chat-sync/internal/websocket"
	"chat-sync/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

const Secret = "apitest-secret"

type Server struct {
	URL string
	Hub *websocket.Hub

	t *testing.T
}

// New starts a server that lives until the test ends.
func New(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenDialector(sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	cfg := config.Load(viper.New())
	cfg.JWT.Secret = Secret

	log := logger.Nop()
	hub := websocket.NewHub(nil, log)
	go hub.Run()

	users := repository.NewUserRepository(db)
	rels := repository.NewRelationshipRepository(db)
	msgs := repository.NewMessageRepository(db)

	router := routes.NewRouter(routes.Dependencies{
		Config:        cfg,
		Hub:           hub,
		Users:         services.NewUserService(users, hub, log),
		Relationships: services.NewRelationshipService(rels, users, hub, log),
		Messages:      services.NewMessageService(msgs, rels, users, hub, log),
		Logger:        log,
	})
	router.SetupRoutes()

	srv := httptest.NewServer(router.GetEngine())
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		hub.Stop()
		sqlDB.Close()
	})

	return &Server{URL: srv.URL, Hub: hub, t: t}
}

// APIURL is the REST root.
func (s *Server) APIURL() string {
	return s.URL + "/api/v1"
}

// WSURL is the websocket endpoint without the token.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/api/v1/ws"
}

// Token issues a bearer token for externalID.
func (s *Server) Token(externalID, username string) string {
	s.t.Helper()
	tok, err := auth.IssueToken(Secret, "apitest", externalID, time.Hour, auth.Claims{Username: username})
	require.NoError(s.t, err)
	return tok
}
