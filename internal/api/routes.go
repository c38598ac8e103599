package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobgate/internal/ai"
	"jobgate/internal/api/middleware"
	"jobgate/internal/approval"
	"jobgate/internal/auth"
	"jobgate/internal/companies"
	"jobgate/internal/config"
	"jobgate/internal/consultant"
	"jobgate/internal/cvs"
	"jobgate/internal/jobs"
	"jobgate/internal/notify"
	"jobgate/internal/storage"
)

// Deps are the collaborators the HTTP surface is built from. Redis, Queue, Scanner
// and Store may be nil.
type Deps struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *gorm.DB
	Redis       *redis.Client
	Queue       TaskEnqueuer
	Auth        *auth.AuthService
	Store       storage.ObjectStore
	Scanner     FileScanner
	Dispatcher  *notify.Dispatcher
	Approvals   *approval.Service
	Companies   *companies.Service
	Jobs        *jobs.Service
	Consultants *consultant.Service
	CVs         *cvs.Service
	AI          *ai.Gateway
}

// RegisterRoutes mounts every endpoint under /api.
func RegisterRoutes(router *gin.Engine, d Deps) {
	cfg := d.Config
	maxUpload := cfg.Upload.MaxCVBytes
	window := cfg.API.RateLimitWindow

	var redisClient redis.UniversalClient
	if d.Redis != nil {
		redisClient = d.Redis
	}

	authHandler := NewAuthHandler(d.DB, d.Auth, redisClient, cfg.API.LoginRateLimit, window)
	companyHandler := NewCompanyHandler(d.Approvals, d.Auth, CompanyHandlerOptions{
		Store:           d.Store,
		Scanner:         d.Scanner,
		MaxUploadBytes:  maxUpload,
		Redis:           redisClient,
		SubmissionLimit: cfg.API.SubmissionRateLimit,
		LoginLimit:      cfg.API.LoginRateLimit,
		Window:          window,
	})
	companiesHandler := NewCompaniesHandler(d.Companies, d.Jobs, d.Scanner, maxUpload)
	jobHandler := NewJobHandler(d.Jobs, d.Scanner, maxUpload)
	cvHandler := NewCVHandler(d.CVs, d.Scanner, maxUpload)
	aiHandler := NewAIHandler(d.AI, d.CVs, d.Queue)
	consultantHandler := NewConsultantHandler(d.Consultants)
	notificationHandler := NewNotificationHandler(d.Dispatcher)

	authn := middleware.AuthMiddleware(d.Auth)
	users := middleware.RequireRole(auth.RoleSeeker, auth.RoleConsultant, auth.RoleAdmin)
	applicants := middleware.RequireRole(auth.RoleSeeker, auth.RoleConsultant)
	admins := middleware.RequireRole(auth.RoleAdmin)
	approvedCompany := middleware.RequireApprovedCompany(middleware.DBCompanyLookup(d.DB))

	apiGroup := router.Group("/api")

	if d.Redis != nil {
		wsHandler := NewWsHandler(d.Redis, d.Auth, d.Logger, cfg.API.AllowedOrigins)
		apiGroup.GET("/ws", wsHandler.HandleConnection)
	}

	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", authn, authHandler.Me)
	}

	userGroup := apiGroup.Group("/user", authn, users)
	{
		userGroup.PUT("/device-token", authHandler.UpdateDeviceToken)
		userGroup.POST("/upgrade", middleware.RequireRole(auth.RoleSeeker), consultantHandler.RequestUpgrade)
	}

	requests := apiGroup.Group("/company-requests")
	{
		requests.POST("", companyHandler.SubmitRequest)
		requests.GET("", authn, admins, companyHandler.ListRequests)
		requests.GET("/:id", authn, admins, companyHandler.GetRequest)
		requests.PUT("/approve/:id", authn, admins, companyHandler.ApproveRequest)
		requests.PUT("/reject/:id", authn, admins, companyHandler.RejectRequest)
	}

	companyGroup := apiGroup.Group("/companies")
	{
		companyGroup.GET("", companiesHandler.ListApproved)
		companyGroup.GET("/:id", companiesHandler.GetApproved)

		companyAuth := companyGroup.Group("/auth")
		companyAuth.POST("/set-password", companyHandler.SetPassword)
		companyAuth.POST("/login", companyHandler.Login)

		companyAdmin := companyGroup.Group("/admin", authn, admins)
		companyAdmin.GET("/all", companiesHandler.ListAll)
		companyAdmin.GET("/cv-requests", companiesHandler.ListOpenCVRequests)
		companyAdmin.PUT("/cv-requests/:id/fulfill", companiesHandler.FulfillCVRequest)
		companyAdmin.GET("/:id", companiesHandler.Get)
		companyAdmin.PUT("/:id", companiesHandler.Update)
		companyAdmin.DELETE("/:id", companiesHandler.Delete)

		company := companyGroup.Group("/company", authn, approvedCompany)
		company.GET("", companyHandler.Profile)
		company.PUT("/password", companyHandler.ChangePassword)
		company.GET("/profile", companiesHandler.Profile)
		company.PUT("/profile", companiesHandler.UpdateProfile)
		company.GET("/dashboard", companiesHandler.Dashboard)
		company.POST("/cv-requests", companiesHandler.CreateCVRequest)
		company.GET("/cv-requests", companiesHandler.ListCVRequests)

		company.POST("/job-postings", jobHandler.CreatePosting)
		company.GET("/job-postings", jobHandler.ListCompanyPostings)
		company.GET("/job-postings/:id", jobHandler.GetCompanyPosting)
		company.PUT("/job-postings/:id", jobHandler.UpdatePosting)
		company.DELETE("/job-postings/:id", jobHandler.DeletePosting)
		company.PUT("/job-postings/:id/toggle", jobHandler.ToggleStatus)
		company.POST("/job-postings/:id/form", jobHandler.CreateForm)

		company.GET("/applications", jobHandler.ListCompanyApplications)
		company.GET("/applications/:id", companiesHandler.GetApplication)
		company.PUT("/applications/:id/status", jobHandler.UpdateApplicationStatus)
		company.GET("/applications/:id/cv", jobHandler.ApplicationCV)
	}

	jobGroup := apiGroup.Group("/jobs")
	{
		jobGroup.GET("", jobHandler.ListOpenPostings)
		jobGroup.GET("/:id", jobHandler.GetOpenPosting)
	}

	applications := apiGroup.Group("/applications", authn, applicants)
	{
		applications.POST("", jobHandler.SubmitApplication)
		applications.GET("", jobHandler.ListMyApplications)
	}

	cvGroup := apiGroup.Group("/cvs", authn, users)
	{
		cvGroup.GET("", cvHandler.List)
		cvGroup.POST("", cvHandler.Upload)
		cvGroup.GET("/:id/download", cvHandler.Download)
		cvGroup.GET("/:id/analysis", cvHandler.Analysis)
		cvGroup.DELETE("/:id", cvHandler.Delete)
	}

	aiGroup := apiGroup.Group("/ai")
	{
		aiGroup.GET("/health", aiHandler.Health)
		aiGroup.POST("/cv/analyze-text", authn, users, aiHandler.AnalyzeText)
		aiGroup.POST("/chatbot/start", authn, users, aiHandler.StartChat)
		aiGroup.POST("/chatbot/chat", authn, users, aiHandler.Chat)
	}

	consultantGroup := apiGroup.Group("/consultants")
	{
		consultantGroup.GET("", consultantHandler.List)
		consultantGroup.GET("/:user_id", consultantHandler.Get)
		consultantGroup.POST("/:user_id/consultations", authn, users, consultantHandler.RequestConsultation)
	}

	adminGroup := apiGroup.Group("/admin", authn, admins)
	{
		adminGroup.GET("/upgrade", consultantHandler.ListPending)
		adminGroup.PUT("/upgrade/:user_id", consultantHandler.Decide)

		adminGroup.POST("/emails", notificationHandler.SendEmail)
		adminGroup.POST("/emails/company/:company_id", notificationHandler.SendCompanyEmail)
		adminGroup.GET("/emails", notificationHandler.ListEmails)
		adminGroup.POST("/push", notificationHandler.SendPush)
		adminGroup.GET("/push", notificationHandler.ListPush)
	}

	inbox := apiGroup.Group("/notifications", authn, users)
	{
		inbox.GET("", notificationHandler.ListMine)
		inbox.PUT("/:id/read", notificationHandler.MarkRead)
	}
}
