package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/config"
	"github.com/qs3c/toolbox_server/internal/api/middleware"
	"github.com/qs3c/toolbox_server/internal/pkg/response"
	"github.com/qs3c/toolbox_server/internal/repository"
	"github.com/qs3c/toolbox_server/internal/service"
	"github.com/qs3c/toolbox_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testContext struct {
	DB  *gorm.DB
	Cfg *config.Config

	UserRepo  *repository.UserRepository
	TokenRepo *repository.RefreshTokenRepository
	PlanRepo  *repository.PlanRepository
	ToolRepo  *repository.ToolRepository
	SubRepo   *repository.SubscriptionRepository
	UsageRepo *repository.UsageRepository
	Logs      *service.LogService
	Quota     *service.QuotaService
}

func setupContext(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := config.Default()
	cfg.Server.Mode = "release"
	cfg.Server.FrontendURL = "http://localhost:3000"
	cfg.JWT.Secret = "test-secret-key"

	ctx := &testContext{
		DB:        db,
		Cfg:       cfg,
		UserRepo:  repository.NewUserRepository(db),
		TokenRepo: repository.NewRefreshTokenRepository(db),
		PlanRepo:  repository.NewPlanRepository(db),
		ToolRepo:  repository.NewToolRepository(db),
		SubRepo:   repository.NewSubscriptionRepository(db),
		UsageRepo: repository.NewUsageRepository(db),
		Logs:      service.NewLogService(repository.NewSystemLogRepository(db)),
	}
	ctx.Quota = service.NewQuotaService(db, ctx.PlanRepo, ctx.SubRepo, ctx.ToolRepo, ctx.UsageRepo, cfg)
	return ctx
}

func mockAuth(userID int64, isAdmin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.IdentityKey, service.Identity{UserID: userID, IsAdmin: isAdmin})
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data should be an object: %#v", resp.Data)
	return data
}
