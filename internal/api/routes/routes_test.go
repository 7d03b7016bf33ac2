package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chat-sync/internal/apperr"
	"chat-sync/internal/auth"
	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/models"
	"chat-sync/internal/repository"
	"chat-sync/internal/services"
	"chat-sync/internal/websocket"
	"chat-sync/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

const testSecret = "test-secret"

type api struct {
	t      *testing.T
	engine *gin.Engine
}

func newAPI(t *testing.T, with ...func(*Dependencies)) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenDialector(sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	cfg := config.Load(viper.New())
	cfg.JWT.Secret = testSecret

	log := logger.Nop()
	hub := websocket.NewHub(nil, log)
	go hub.Run()
	t.Cleanup(hub.Stop)

	userRepo := repository.NewUserRepository(db)
	relRepo := repository.NewRelationshipRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	deps := Dependencies{
		Config:        cfg,
		Hub:           hub,
		Users:         services.NewUserService(userRepo, hub, log),
		Relationships: services.NewRelationshipService(relRepo, userRepo, hub, log),
		Messages:      services.NewMessageService(msgRepo, relRepo, userRepo, hub, log),
		Logger:        log,
	}
	for _, fn := range with {
		fn(&deps)
	}
	router := NewRouter(deps)
	router.SetupRoutes()
	return &api{t: t, engine: router.GetEngine()}
}

func token(t *testing.T, ext string) string {
	tok, err := auth.IssueToken(testSecret, "test", ext, time.Hour, auth.Claims{})
	require.NoError(t, err)
	return tok
}

func (a *api) do(method, path, ext string, body interface{}, out interface{}) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ext != "" {
		req.Header.Set("Authorization", "Bearer "+token(a.t, ext))
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func (a *api) register(ext, name string) models.User {
	a.t.Helper()
	var u models.User
	require.Equal(a.t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/users", ext, models.EnsureProfileRequest{Username: name}, &u))
	return u
}

func TestHealthAndSwagger(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", "", nil, nil))
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/swagger/doc.json", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/users", "", nil, nil))
}

func TestProfileBootstrap(t *testing.T) {
	a := newAPI(t)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/v1/users/me", "ext_a", nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/users", "ext_a", map[string]string{}, nil))

	u := a.register("ext_a", "alice")
	var again models.User
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/v1/users", "ext_a", models.EnsureProfileRequest{Username: "x"}, &again))
	assert.Equal(t, u.ID, again.ID)

	var me models.User
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/users/me", "ext_a", nil, &me))
	assert.Equal(t, "ext_a", me.ExternalID)

	var users []models.User
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/users", "ext_a", nil, &users))
	assert.Len(t, users, 1)
}

func TestRelationshipEndpoints(t *testing.T) {
	a := newAPI(t)
	v := a.register("ext_v", "v")
	u := a.register("ext_u", "u")
	a.register("ext_x", "x")

	var errBody models.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/v1/relationships", "ext_v", models.CreateRelationshipRequest{FriendID: "nope"}, &errBody))

	var rel models.Relationship
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/relationships", "ext_v", models.CreateRelationshipRequest{FriendID: u.ID}, &rel))
	assert.Equal(t, "pending", string(rel.Status))
	assert.Equal(t, v.ID, rel.SenderID)

	errBody = models.ErrorResponse{}
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, "/api/v1/relationships", "ext_u", models.CreateRelationshipRequest{FriendID: v.ID}, &errBody))
	assert.Equal(t, "pending", errBody.Status)

	path := "/api/v1/relationships/" + rel.ID
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPatch, path, "ext_v", models.UpdateRelationshipRequest{Status: "accepted"}, nil))
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPatch, path, "ext_x", models.UpdateRelationshipRequest{Status: "accepted"}, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPatch, path, "ext_u", models.UpdateRelationshipRequest{Status: "friends"}, nil))
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPatch, "/api/v1/relationships/"+uuid.NewString(), "ext_u", models.UpdateRelationshipRequest{Status: "accepted"}, nil))

	var accepted models.Relationship
	require.Equal(t, http.StatusOK, a.do(http.MethodPatch, path, "ext_u", models.UpdateRelationshipRequest{Status: "accepted"}, &accepted))
	assert.Equal(t, u.ID, accepted.SenderID)
	require.NotNil(t, accepted.Sender)
	assert.Equal(t, u.ID, accepted.Sender.ID)

	var list []models.Relationship
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/relationships", "ext_v", nil, &list))
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].User)
	assert.NotNil(t, list[0].Friend)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodDelete, path, "ext_x", nil, nil))
	assert.Equal(t, http.StatusOK, a.do(http.MethodDelete, path, "ext_v", nil, nil))
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, path, "ext_v", nil, nil))
}

func TestMessageEndpoints(t *testing.T) {
	a := newAPI(t)
	v := a.register("ext_v", "v")
	u := a.register("ext_u", "u")

	send := models.SendMessageRequest{ReceiverID: u.ID, Content: "hello"}
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/v1/messages", "ext_v", send, nil))

	var rel models.Relationship
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/relationships", "ext_v", models.CreateRelationshipRequest{FriendID: u.ID}, &rel))
	require.Equal(t, http.StatusOK, a.do(http.MethodPatch, "/api/v1/relationships/"+rel.ID, "ext_u", models.UpdateRelationshipRequest{Status: "accepted"}, nil))

	var msg models.Message
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/messages", "ext_v", send, &msg))
	assert.Equal(t, v.ID, msg.SenderID)

	var list []models.Message
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/messages", "ext_u", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "v", list[0].Sender.Username)

	var seen models.MarkSeenResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodPatch, "/api/v1/messages", "ext_u", models.MarkSeenRequest{SenderID: v.ID}, &seen))
	assert.EqualValues(t, 1, seen.Updated)
	require.Equal(t, http.StatusOK, a.do(http.MethodPatch, "/api/v1/messages", "ext_u", models.MarkSeenRequest{SenderID: v.ID}, &seen))
	assert.EqualValues(t, 0, seen.Updated)

	path := "/api/v1/messages/" + msg.ID
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPatch, path, "ext_v", map[string]interface{}{"receiver_id": v.ID}, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPatch, path, "ext_u", map[string]interface{}{"seen": false}, nil))

	var edited models.Message
	require.Equal(t, http.StatusOK, a.do(http.MethodPatch, path, "ext_v", map[string]interface{}{"content": "hello!"}, &edited))
	assert.Equal(t, "hello!", edited.Content)
	assert.True(t, edited.Seen)

	assert.Equal(t, http.StatusServiceUnavailable, a.do(http.MethodPost, "/api/v1/media", "ext_v", nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, a.do(http.MethodGet, "/api/v1/presence", "ext_v", nil, nil))
}

type onlineSet []string

func (o onlineSet) GetOnlineUsers(context.Context) ([]string, error) { return o, nil }

func TestPresenceListsOnlineFriendsOnly(t *testing.T) {
	online := onlineSet{}
	a := newAPI(t, func(d *Dependencies) { d.Presence = &online })
	a.register("ext_v", "v")
	u := a.register("ext_u", "u")
	w := a.register("ext_w", "w")

	var rel models.Relationship
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/relationships", "ext_v", models.CreateRelationshipRequest{FriendID: u.ID}, &rel))
	require.Equal(t, http.StatusOK, a.do(http.MethodPatch, "/api/v1/relationships/"+rel.ID, "ext_u", models.UpdateRelationshipRequest{Status: "accepted"}, nil))
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/relationships", "ext_v", models.CreateRelationshipRequest{FriendID: w.ID}, nil))

	online = onlineSet{u.ID, w.ID}

	var resp models.PresenceResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/presence", "ext_v", nil, &resp))
	assert.Equal(t, []string{u.ID}, resp.Online)
}

type fakeUploader struct {
	owner, name, body string
	err               error
}

func (f *fakeUploader) UploadMedia(_ context.Context, file *multipart.FileHeader, ownerID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	f.owner, f.name, f.body = ownerID, file.Filename, string(data)
	return "http://media.local/chat-media/" + ownerID + "/" + file.Filename, nil
}

func (a *api) upload(ext, field, name, content string, out interface{}) int {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(a.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(a.t, ext))
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func TestMediaUploadReturnsURL(t *testing.T) {
	uploader := &fakeUploader{}
	a := newAPI(t, func(d *Dependencies) { d.Media = uploader })
	v := a.register("ext_v", "v")

	var resp models.MediaUploadResponse
	require.Equal(t, http.StatusCreated, a.upload("ext_v", "file", "cat.png", "png-bytes", &resp))
	assert.Equal(t, "http://media.local/chat-media/"+v.ID+"/cat.png", resp.URL)
	assert.Equal(t, v.ID, uploader.owner)
	assert.Equal(t, "cat.png", uploader.name)
	assert.Equal(t, "png-bytes", uploader.body)

	assert.Equal(t, http.StatusBadRequest, a.upload("ext_v", "attachment", "cat.png", "png-bytes", nil))

	uploader.err = apperr.Sync(errors.New("bucket offline"), "upload media")
	assert.Equal(t, http.StatusBadGateway, a.upload("ext_v", "file", "cat.png", "png-bytes", nil))
}
