package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"trading-challenges/internal/auth"
	"trading-challenges/internal/database"
	"trading-challenges/internal/gateway"
	"trading-challenges/internal/jobs"
	"trading-challenges/internal/models"
	"trading-challenges/internal/push"
	"trading-challenges/internal/repository"
	"trading-challenges/internal/services"
	"trading-challenges/internal/tasks"
)

const testCronSecret = "cron-secret"

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	gw     *gateway.MemoryGateway
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	auth.InitJWT("test-secret")

	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	runner := tasks.Inline{}
	gw := gateway.NewMemoryGateway()

	stats := services.NewStatsService(repo, runner)
	leaderboard := services.NewLeaderboardService(repo, nil, 2)
	challenges := services.NewChallengeService(repo, stats, leaderboard, runner)
	chatboxes := services.NewChatboxService(db)
	subscriptions := services.NewSubscriptionService(db, chatboxes)
	propFirm := services.NewPropFirmService(db)
	notifications := services.NewNotificationService(db, push.Disabled{})
	plans := services.NewPlanService(db, chatboxes)
	payments := services.NewPaymentService(repo, gw, challenges, subscriptions, propFirm)

	statusJob := jobs.ChallengeStatusJob(time.Minute, jobs.Sweepers{
		Challenges:    challenges,
		Subscriptions: subscriptions,
		Notifications: notifications,
		Chatboxes:     chatboxes,
	})
	syncJob := jobs.MT5SyncJob(time.Hour, leaderboard)
	cleanupJob := jobs.PushCleanupJob(time.Hour, notifications)

	router := NewRouter(Handlers{
		Auth:          NewAuthHandler(services.NewAuthService(db, stats).WithHashCost(bcrypt.MinCost)),
		Users:         NewUserHandler(services.NewUserService(repo), stats),
		Challenges:    NewChallengeHandler(challenges, leaderboard),
		Leaderboard:   NewLeaderboardHandler(leaderboard),
		Plans:         NewPlanHandler(plans),
		Subscriptions: NewSubscriptionHandler(subscriptions),
		Chatboxes:     NewChatboxHandler(chatboxes),
		Payments:      NewPaymentHandler(payments),
		Notifications: NewNotificationHandler(notifications),
		PropFirm:      NewPropFirmHandler(propFirm),
		Support:       NewSupportHandler(services.NewSupportService(db)),
		Content:       NewContentHandler(services.NewContentService(db)),
		Jobs:          NewJobsHandler(testCronSecret, statusJob, syncJob, cleanupJob),
		Admin:         NewAdminHandler(services.NewAdminService(db)),
	}, nil)

	return &testServer{t: t, db: db, router: router, gw: gw}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Fields  []string        `json:"fields"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(method, path, token string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *testServer) user(username string, role models.UserRole) (*models.User, string) {
	s.t.Helper()
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		FirstName:    username,
		LastName:     "Trader",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(s.t, s.db.Create(u).Error)
	token, err := auth.GenerateToken(u.ID, string(role))
	require.NoError(s.t, err)
	return u, token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "Jane@Example.com", "password": "hunter22", "first_name": "Jane", "last_name": "Doe",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), "hunter22")

	w, env = s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "jane@example.com", "password": "hunter22", "first_name": "Jane", "last_name": "Doe",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, env.Success)

	w, _ = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "jane@example.com", "password": "wrong-pass"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "jane@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)
	require.Equal(t, "jane_doe", login.User.Username)

	w, env = s.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"email":"jane@example.com"`)

	w, _ = s.do(http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChallengeRoutes(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user("admin", models.UserRoleAdmin)
	_, aliceToken := s.user("alice", models.UserRoleUser)
	_, bobToken := s.user("bob", models.UserRoleUser)

	start := time.Now().Add(time.Hour)
	body := map[string]interface{}{
		"name":             "Weekly swing",
		"type":             "swing",
		"account_size":     10000,
		"max_participants": 1,
		"start_date":       start,
		"end_date":         start.Add(7 * 24 * time.Hour),
		"description":      "Best return wins",
		"status":           "upcoming",
	}

	w, _ := s.do(http.MethodPost, "/api/challenges", aliceToken, body)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(http.MethodPost, "/api/challenges", adminToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Challenge
	require.NoError(t, json.Unmarshal(env.Data, &created))
	path := fmt.Sprintf("/api/challenges/%d", created.ID)

	account := map[string]interface{}{"mt5_account": map[string]string{"id": "1001", "password": "pw", "server": "Demo"}}
	w, env = s.do(http.MethodPost, path+"/join", aliceToken, account)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Successfully joined the challenge", env.Message)

	w, _ = s.do(http.MethodPost, path+"/join", aliceToken, account)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodPost, path+"/join", bobToken, account)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, env.Success)

	w, _ = s.do(http.MethodGet, path+"/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/challenges/999999", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodGet, "/api/challenges/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCronTriggers(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/cron/status-sweep", "", nil, "X-Cron-Secret", testCronSecret)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.False(t, env.Success)

	w, _ = s.do(http.MethodPost, "/cron/status-sweep", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(http.MethodPost, "/cron/status-sweep", testCronSecret, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, env.Success)
	require.Contains(t, w.Body.String(), `"timestamp"`)
	require.Contains(t, string(env.Data), `"checked"`)

	w, env = s.do(http.MethodPost, "/cron/mt5-sync", "", nil, "X-Cron-Secret", testCronSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "MT5 data synchronization completed", env.Message)

	w, _ = s.do(http.MethodPost, "/cron/push-cleanup", "", nil, "X-Cron-Secret", testCronSecret)
	require.Equal(t, http.StatusOK, w.Code)

	_, adminToken := s.user("admin", models.UserRoleAdmin)
	w, env = s.do(http.MethodGet, "/api/admin/jobs", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var statuses []jobs.Status
	require.NoError(t, json.Unmarshal(env.Data, &statuses))
	require.Len(t, statuses, 3)
	require.EqualValues(t, 1, statuses[0].Runs)
	require.NotNil(t, statuses[0].LastSuccess)
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user("admin", models.UserRoleAdmin)
	_, aliceToken := s.user("alice", models.UserRoleUser)

	w, env := s.do(http.MethodPost, "/api/signal-plans", adminToken, map[string]interface{}{
		"name": "Gold signals", "price": "49.00", "duration": "monthly",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var plan models.SignalPlan
	require.NoError(t, json.Unmarshal(env.Data, &plan))

	w, env = s.do(http.MethodPost, "/api/payments/create-intent", aliceToken, map[string]interface{}{
		"type": "signal_plan", "amount": "49.00", "plan_id": plan.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var intent services.IntentResult
	require.NoError(t, json.Unmarshal(env.Data, &intent))
	require.NotEmpty(t, intent.ClientSecret)

	_, err := s.gw.ConfirmIntent(context.Background(), intent.PaymentIntentID)
	require.NoError(t, err)

	confirm := map[string]string{"payment_intent_id": intent.PaymentIntentID}
	w, env = s.do(http.MethodPost, "/api/payments/confirm", aliceToken, confirm)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Payment completed successfully", env.Message)

	w, env = s.do(http.MethodPost, "/api/payments/confirm", aliceToken, confirm)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Payment already completed", env.Message)

	w, env = s.do(http.MethodGet, "/api/subscriptions/my", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"status":"active"`)

	w, _ = s.do(http.MethodGet, "/api/payments", aliceToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodGet, "/api/payments/not-a-uuid", aliceToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSupportAndPropFirmRoutes(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user("admin", models.UserRoleAdmin)
	_, aliceToken := s.user("alice", models.UserRoleUser)
	_, bobToken := s.user("bob", models.UserRoleUser)

	w, env := s.do(http.MethodPost, "/api/support/tickets", aliceToken, map[string]string{
		"subject": "Cannot join", "message": "The join button fails",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ticket models.SupportTicket
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	path := fmt.Sprintf("/api/support/tickets/%d", ticket.ID)

	w, _ = s.do(http.MethodGet, path, bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodPost, path+"/messages", adminToken, map[string]string{"message": "Looking into it"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = s.do(http.MethodGet, "/api/support/tickets/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodPost, "/api/prop-firm-packages", adminToken, map[string]interface{}{
		"name": "Managed account", "service_fee": "250",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pkg models.PropFirmPackage
	require.NoError(t, json.Unmarshal(env.Data, &pkg))

	w, env = s.do(http.MethodGet, "/api/prop-firm-packages", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), "Managed account")

	w, env = s.do(http.MethodPost, "/api/prop-firm-services", aliceToken, map[string]interface{}{
		"package_id": pkg.ID,
		"prop_firm_details": map[string]interface{}{
			"account_id": "42", "account_password": "pw", "server": "srv", "account_size": 10000,
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Contains(t, string(env.Data), `"awaiting_payment"`)
}

func TestAdminDashboardAndAuditLog(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user("admin", models.UserRoleAdmin)
	_, aliceToken := s.user("alice", models.UserRoleUser)

	w, _ := s.do(http.MethodPost, "/api/support/tickets", aliceToken, map[string]string{"subject": "Hi", "message": "Question"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = s.do(http.MethodPost, "/api/prop-firm-packages", adminToken, map[string]interface{}{"name": "Basic", "service_fee": "100"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = s.do(http.MethodPost, "/api/prop-firm-packages", adminToken, map[string]interface{}{"name": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(http.MethodGet, "/api/admin/logs", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs services.AdminLogPage
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	require.Len(t, logs.Logs, 1)
	require.Equal(t, "POST /api/prop-firm-packages", logs.Logs[0].Action)
	require.Equal(t, "prop-firm-packages", logs.Logs[0].ResourceType)

	w, env = s.do(http.MethodGet, "/api/admin/dashboard", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d services.Dashboard
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.EqualValues(t, 2, d.TotalUsers)
	require.EqualValues(t, 1, d.OpenTickets)
	require.True(t, d.Revenue.IsZero())

	w, _ = s.do(http.MethodGet, "/api/admin/dashboard", aliceToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestBodyValidation(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user("admin", models.UserRoleAdmin)
	_, aliceToken := s.user("alice", models.UserRoleUser)

	tests := []struct {
		name    string
		path    string
		token   string
		body    interface{}
		message string
		fields  []string
	}{
		{
			name:    "register without fields",
			path:    "/api/auth/register",
			body:    map[string]string{"first_name": "Jane"},
			message: "Missing required fields",
			fields:  []string{"email", "password", "last_name"},
		},
		{
			name:    "register with bad email",
			path:    "/api/auth/register",
			body:    map[string]string{"email": "not-an-email", "password": "hunter22", "first_name": "A", "last_name": "B"},
			message: "Invalid email address",
			fields:  []string{"email"},
		},
		{
			name:    "register with short password",
			path:    "/api/auth/register",
			body:    map[string]string{"email": "a@example.com", "password": "short", "first_name": "A", "last_name": "B"},
			message: "password must be at least 6 characters",
			fields:  []string{"password"},
		},
		{
			name:    "login without password",
			path:    "/api/auth/login",
			body:    map[string]string{"email": "a@example.com"},
			message: "Missing required fields",
			fields:  []string{"password"},
		},
		{
			name:    "challenge without dates",
			path:    "/api/challenges",
			token:   adminToken,
			body:    map[string]interface{}{"name": "Weekly", "type": "swing", "account_size": 1000, "description": "d"},
			message: "Missing required fields",
			fields:  []string{"start_date", "end_date"},
		},
		{
			name:    "ticket without subject",
			path:    "/api/support/tickets",
			token:   aliceToken,
			body:    map[string]string{"message": "help"},
			message: "Missing required fields",
			fields:  []string{"subject"},
		},
		{
			name:    "notification title too long",
			path:    "/api/notifications",
			token:   adminToken,
			body:    map[string]string{"title": strings.Repeat("t", models.MaxNotificationTitle+1), "message": "m"},
			message: "title cannot exceed 100 characters",
			fields:  []string{"title"},
		},
		{
			name:    "prop firm service without account",
			path:    "/api/prop-firm-services",
			token:   aliceToken,
			body:    map[string]interface{}{"package_id": 1, "prop_firm_details": map[string]interface{}{"account_size": 5000}},
			message: "Missing required fields",
			fields:  []string{"account_id", "account_password", "server"},
		},
		{
			name:    "plan without price",
			path:    "/api/signal-plans",
			token:   adminToken,
			body:    map[string]string{"name": "Gold"},
			message: "Missing required fields",
			fields:  []string{"price"},
		},
		{
			name:    "video without url",
			path:    "/api/youtube-videos",
			token:   adminToken,
			body:    map[string]string{"title": "Recap"},
			message: "Missing required fields",
			fields:  []string{"url"},
		},
		{
			name:  "footer with bad social link",
			path:  "/api/footer-settings",
			token: adminToken,
			body: func() map[string]interface{} {
				b := footerBody()
				b["social_media"] = map[string]string{"facebook": "facebook.com/proparena"}
				return b
			}(),
			message: "Invalid value for facebook",
			fields:  []string{"facebook"},
		},
	}
	for _, tt := range tests {
		w, env := s.do(http.MethodPost, tt.path, tt.token, tt.body)
		require.Equal(t, http.StatusBadRequest, w.Code, "%s: %s", tt.name, w.Body.String())
		require.False(t, env.Success, tt.name)
		require.Equal(t, tt.message, env.Error, tt.name)
		require.Equal(t, tt.fields, env.Fields, tt.name)
	}

	w, env := s.do(http.MethodPost, "/api/auth/register", "", "not an object")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, env.Error, "Invalid request body")
	require.Empty(t, env.Fields)
}

func footerBody() map[string]interface{} {
	return map[string]interface{}{
		"company_name":        "Prop Arena",
		"company_description": "Trading competitions",
		"email":               "hello@proparena.io",
		"phone":               "+44 20 0000 0000",
		"address":             "London",
		"newsletter":          map[string]interface{}{"title": "News", "description": "Weekly", "is_active": true},
		"legal_links":         map[string]string{"privacy_policy": "/privacy", "terms_of_service": "/terms", "cookie_policy": "/cookies"},
	}
}

func TestContentRoutes(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user("admin", models.UserRoleAdmin)
	_, aliceToken := s.user("alice", models.UserRoleUser)

	w, env := s.do(http.MethodGet, "/api/settings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"site_name":"CTG Trading"`)

	w, _ = s.do(http.MethodPut, "/api/settings", aliceToken, map[string]string{"site_name": "Mine"})
	require.Equal(t, http.StatusForbidden, w.Code)
	w, env = s.do(http.MethodPut, "/api/settings", adminToken, map[string]string{"logo": "https://cdn.example.com/l.png"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, string(env.Data), "cdn.example.com")
	w, _ = s.do(http.MethodDelete, "/api/settings/logo", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(http.MethodDelete, "/api/settings/logo", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "No logo to delete", env.Error)

	w, env = s.do(http.MethodGet, "/api/footer-settings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"company_name":"CTG"`)

	w, env = s.do(http.MethodPost, "/api/footer-settings", adminToken, footerBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var footer models.FooterSettings
	require.NoError(t, json.Unmarshal(env.Data, &footer))
	w, _ = s.do(http.MethodPost, "/api/footer-settings", adminToken, footerBody())
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodPatch, fmt.Sprintf("/api/footer-settings/%d/toggle", footer.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"is_active":false`)

	w, env = s.do(http.MethodPost, "/api/youtube-videos", adminToken, map[string]string{
		"title": "Risk", "url": "https://youtu.be/dQw4w9WgXcQ",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Contains(t, string(env.Data), `"video_id":"dQw4w9WgXcQ"`)

	w, env = s.do(http.MethodPost, "/api/youtube-videos", adminToken, map[string]string{
		"title": "Elsewhere", "url": "https://vimeo.com/1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Please provide a valid YouTube URL", env.Error)

	w, env = s.do(http.MethodGet, "/api/youtube-videos", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var videos []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &videos))
	require.Len(t, videos, 1)
}

func TestServiceChatRoutes(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.user("admin", models.UserRoleAdmin)
	_, aliceToken := s.user("alice", models.UserRoleUser)
	_, bobToken := s.user("bob", models.UserRoleUser)

	w, env := s.do(http.MethodPost, "/api/prop-firm-packages", adminToken, map[string]interface{}{
		"name": "Managed account", "service_fee": "250",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pkg models.PropFirmPackage
	require.NoError(t, json.Unmarshal(env.Data, &pkg))

	w, env = s.do(http.MethodPost, "/api/prop-firm-services", aliceToken, map[string]interface{}{
		"package_id": pkg.ID,
		"prop_firm_details": map[string]interface{}{
			"account_id": "42", "account_password": "pw", "server": "srv", "account_size": 10000,
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var svc models.PropFirmService
	require.NoError(t, json.Unmarshal(env.Data, &svc))
	path := fmt.Sprintf("/api/prop-firm-services/%d/chat", svc.ID)

	w, _ = s.do(http.MethodPost, path, aliceToken, map[string]string{"message": "Hi"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, env = s.do(http.MethodPost, path, adminToken, map[string]string{"message": "Hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, string(env.Data), `"sender_name":"Admin"`)

	w, _ = s.do(http.MethodGet, path, bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w, env = s.do(http.MethodPost, path, aliceToken, map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, []string{"message"}, env.Fields)

	w, env = s.do(http.MethodGet, path, aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var chat struct {
		Messages []struct {
			Sender  string `json:"sender"`
			Message string `json:"message"`
		} `json:"messages"`
		Unread int `json:"unread"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	require.Len(t, chat.Messages, 2)
	require.Equal(t, "admin", chat.Messages[1].Sender)
	require.Equal(t, 1, chat.Unread)
}
