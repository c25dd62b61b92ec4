package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/auth"
	"trading-challenges/internal/jobs"
	"trading-challenges/internal/models"
)

// Handlers groups every resource handler served by the API.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Challenges    *ChallengeHandler
	Leaderboard   *LeaderboardHandler
	Plans         *PlanHandler
	Subscriptions *SubscriptionHandler
	Chatboxes     *ChatboxHandler
	Payments      *PaymentHandler
	Notifications *NotificationHandler
	PropFirm      *PropFirmHandler
	Support       *SupportHandler
	Content       *ContentHandler
	Jobs          *JobsHandler
	Admin         *AdminHandler
}

// NewRouter wires the route groups. A nil allowedOrigins skips CORS.
func NewRouter(h Handlers, allowedOrigins []string) *gin.Engine {
	useJSONFieldNames()
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	if len(allowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// External cron triggers. Any method is routed so non-POST gets a 405 body.
	cron := router.Group("/cron")
	{
		cron.Any("/status-sweep", h.Jobs.Cron(jobs.ChallengeStatusJobName, "Challenge status update"))
		cron.Any("/mt5-sync", h.Jobs.Cron(jobs.MT5SyncJobName, "MT5 data synchronization"))
		cron.Any("/push-cleanup", h.Jobs.Cron(jobs.PushCleanupJobName, "Push subscription cleanup"))
	}

	api := router.Group("/api", h.Admin.AuditMiddleware())
	authed := auth.AuthMiddleware()
	admin := auth.RequireAdmin()

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", h.Auth.Register)
		authRoutes.POST("/login", h.Auth.Login)
		authRoutes.POST("/logout", h.Auth.Logout)
		authRoutes.GET("/me", authed, h.Auth.GetMe)
	}

	users := api.Group("/users", authed)
	{
		users.GET("/me", h.Users.GetProfile)
		users.PUT("/me", h.Users.UpdateProfile)
		users.PUT("/me/mt5", h.Users.UpdateMT5)
		users.POST("/me/push-subscriptions", h.Users.AddPushSubscription)
		users.DELETE("/me/push-subscriptions", h.Users.RemovePushSubscription)

		users.GET("", admin, h.Users.ListUsers)
		users.POST("/admin/recompute-stats", admin, h.Users.RecomputeStats)
		users.GET("/:id", admin, h.Users.GetUser)
		users.PUT("/:id", admin, h.Users.UpdateUser)
		users.DELETE("/:id", admin, h.Users.DeleteUser)
	}

	challenges := api.Group("/challenges")
	{
		challenges.GET("", auth.OptionalAuth(), h.Challenges.ListChallenges)
		challenges.GET("/my", authed, h.Challenges.MyChallenges)
		challenges.GET("/:id", auth.OptionalAuth(), h.Challenges.GetChallenge)
		challenges.GET("/:id/leaderboard", h.Challenges.Leaderboard)
		challenges.POST("/:id/join", authed, h.Challenges.Join)
		challenges.POST("/:id/leave", authed, h.Challenges.Leave)
		challenges.GET("/:id/account", authed, h.Challenges.MyAccount)

		adm := challenges.Group("", authed, admin)
		adm.POST("", h.Challenges.CreateChallenge)
		adm.PUT("/:id", h.Challenges.UpdateChallenge)
		adm.DELETE("/:id", h.Challenges.DeleteChallenge)
		adm.GET("/:id/participants", h.Challenges.Participants)
		adm.PUT("/:id/participants/:participantId", h.Challenges.UpdateParticipant)
		adm.DELETE("/:id/participants/:participantId", h.Challenges.RemoveParticipant)
		adm.GET("/admin/mine", h.Challenges.AdminChallenges)
		adm.GET("/admin/mt5-accounts", h.Challenges.MT5Accounts)
		adm.POST("/admin/reconcile", h.Challenges.ReconcileCounters)
		adm.POST("/admin/sync-leaderboard", h.Challenges.SyncLeaderboard)
		adm.POST("/admin/update-statuses", h.Jobs.Trigger(jobs.ChallengeStatusJobName, "Challenge status update"))
	}

	leaderboard := api.Group("/leaderboard")
	{
		leaderboard.GET("", h.Leaderboard.List)
		leaderboard.GET("/stats", h.Leaderboard.Stats)
		leaderboard.GET("/user/:userId", h.Leaderboard.UserRank)
		leaderboard.GET("/me", authed, h.Leaderboard.MyRank)
		leaderboard.POST("/sync-mine", authed, h.Leaderboard.SyncMine)

		adm := leaderboard.Group("", authed, admin)
		adm.GET("/admin/all", h.Leaderboard.ListAll)
		adm.PUT("/:id", h.Leaderboard.UpdateEntry)
		adm.DELETE("/:id", h.Leaderboard.DeleteEntry)
		adm.POST("/update-mt5", h.Jobs.Trigger(jobs.MT5SyncJobName, "MT5 data synchronization"))
	}

	planRoutes(api.Group("/signal-plans"), h.Plans, models.PlanTypeSignal, authed, admin)
	planRoutes(api.Group("/mentorship-plans"), h.Plans, models.PlanTypeMentorship, authed, admin)

	subscriptions := api.Group("/subscriptions", authed)
	{
		subscriptions.GET("/my", h.Subscriptions.Mine)
		subscriptions.GET("/:id", h.Subscriptions.Get)
		subscriptions.PUT("/:id/cancel", h.Subscriptions.Cancel)
		subscriptions.POST("/:id/sessions", admin, h.Subscriptions.RecordSession)
		subscriptions.GET("", admin, h.Subscriptions.List)
		subscriptions.GET("/admin/stats", admin, h.Subscriptions.Stats)
		subscriptions.GET("/plan/:planType/:planId", admin, h.Subscriptions.PlanSubscribers)
	}

	chatboxes := api.Group("/chatboxes", authed)
	{
		chatboxes.GET("", admin, h.Chatboxes.List)
		chatboxes.GET("/plan/:planType/:planId", h.Chatboxes.GetByPlan)
		chatboxes.GET("/:id/messages", h.Chatboxes.Messages)
		chatboxes.POST("/:id/messages", h.Chatboxes.PostMessage)
		chatboxes.PUT("/:id/messages/:messageId/pin", admin, h.Chatboxes.Pin)
		chatboxes.DELETE("/:id/messages/:messageId", admin, h.Chatboxes.DeleteMessage)
		chatboxes.PUT("/:id/settings", admin, h.Chatboxes.UpdateSettings)
		chatboxes.GET("/:id/subscribers", admin, h.Chatboxes.Subscribers)
	}

	payments := api.Group("/payments")
	{
		payments.POST("/webhook", h.Payments.Webhook)
		payments.POST("/create-intent", authed, h.Payments.CreateIntent)
		payments.POST("/confirm", authed, h.Payments.Confirm)
		payments.GET("/my-payments", authed, h.Payments.Mine)
		payments.GET("/:id", authed, h.Payments.Get)
		payments.GET("", authed, admin, h.Payments.List)
		payments.POST("/:id/refund", authed, admin, h.Payments.Refund)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("/vapid-public-key", h.Notifications.VAPIDPublicKey)

		adm := notifications.Group("", authed, admin)
		adm.POST("", h.Notifications.Create)
		adm.GET("", h.Notifications.List)
		adm.GET("/:id", h.Notifications.Get)
		adm.PUT("/:id", h.Notifications.Update)
		adm.DELETE("/:id", h.Notifications.Delete)
		adm.POST("/:id/send", h.Notifications.Send)
	}

	packages := api.Group("/prop-firm-packages")
	{
		packages.GET("", auth.OptionalAuth(), h.PropFirm.ListPackages)
		packages.GET("/:id", h.PropFirm.GetPackage)

		adm := packages.Group("", authed, admin)
		adm.GET("/admin/stats", h.PropFirm.PackageStats)
		adm.POST("", h.PropFirm.CreatePackage)
		adm.PUT("/:id", h.PropFirm.UpdatePackage)
		adm.DELETE("/:id", h.PropFirm.DeletePackage)
	}

	propServices := api.Group("/prop-firm-services", authed)
	{
		propServices.POST("", h.PropFirm.CreateService)
		propServices.GET("/my", h.PropFirm.MyServices)
		propServices.GET("/:id", h.PropFirm.GetService)
		propServices.GET("", admin, h.PropFirm.ListServices)
		propServices.PUT("/:id/status", admin, h.PropFirm.UpdateServiceStatus)
		propServices.POST("/:id/notes", admin, h.PropFirm.AddNote)
		propServices.GET("/:id/chat", h.PropFirm.Chat)
		propServices.POST("/:id/chat", h.PropFirm.SendChatMessage)
	}

	support := api.Group("/support/tickets", authed)
	{
		support.POST("", h.Support.CreateTicket)
		support.GET("/my", h.Support.MyTickets)
		support.GET("/:id", h.Support.GetTicket)
		support.POST("/:id/messages", h.Support.AddMessage)
		support.GET("", admin, h.Support.ListTickets)
		support.GET("/admin/stats", admin, h.Support.Stats)
		support.PUT("/:id", admin, h.Support.UpdateTicket)
		support.DELETE("/:id", admin, h.Support.DeleteTicket)
	}

	settings := api.Group("/settings")
	{
		settings.GET("", h.Content.GetSettings)
		settings.PUT("", authed, admin, h.Content.UpdateSettings)
		settings.DELETE("/:image", authed, admin, h.Content.ClearImage)
	}

	footer := api.Group("/footer-settings")
	{
		footer.GET("", h.Content.PublicFooter)

		adm := footer.Group("", authed, admin)
		adm.GET("/admin", h.Content.AdminFooter)
		adm.POST("", h.Content.CreateFooter)
		adm.PUT("/:id", h.Content.UpdateFooter)
		adm.DELETE("/:id", h.Content.DeleteFooter)
		adm.PATCH("/:id/toggle", h.Content.ToggleFooter)
	}

	videos := api.Group("/youtube-videos")
	{
		videos.GET("", h.Content.Videos(true))

		adm := videos.Group("", authed, admin)
		adm.GET("/admin", h.Content.Videos(false))
		adm.POST("", h.Content.CreateVideo)
		adm.PUT("/:id", h.Content.UpdateVideo)
		adm.DELETE("/:id", h.Content.DeleteVideo)
		adm.PATCH("/:id/toggle", h.Content.ToggleVideo)
	}

	adminRoutes := api.Group("/admin", authed, admin)
	{
		adminRoutes.GET("/dashboard", h.Admin.Dashboard)
		adminRoutes.GET("/logs", h.Admin.Logs)
		adminRoutes.GET("/jobs", h.Jobs.Statuses)
	}

	return router
}

func planRoutes(g *gin.RouterGroup, h *PlanHandler, t models.PlanType, authed, admin gin.HandlerFunc) {
	g.GET("", h.List(t, true))
	g.GET("/:id", h.Get(t))

	adm := g.Group("", authed, admin)
	adm.GET("/admin/all", h.List(t, false))
	adm.POST("", h.Create(t))
	adm.PUT("/:id", h.Update(t))
	adm.DELETE("/:id", h.Delete(t))
}
