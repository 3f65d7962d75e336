// Package main is the entry point for the QualiTrack server.
// It connects the database, runs migrations, wires the security stack and
// mounts all HTTP routes.
package main

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/template/html/v2"
	"github.com/joho/godotenv"

	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/handlers"
	"github.com/hyg1997/qualitrack/internal/middleware"
	"github.com/hyg1997/qualitrack/internal/security"
)

func main() {
	// .env is optional; production sets real environment variables
	_ = godotenv.Load()

	dbConfig, err := database.DefaultConfig()
	if err != nil {
		log.Fatalf("database configuration: %v", err)
	}
	database.MustConnect(dbConfig)
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	securityConfig := security.DefaultConfig()
	securityLogger := security.NewLogger()
	securityMonitor := security.NewMonitor(securityLogger, securityConfig, nil)

	securityMiddleware := middleware.NewSecurityMiddleware(
		securityLogger,
		securityConfig,
		securityMonitor,
	)

	// Per-endpoint token buckets. Refill interval = window / budget.
	registerLimiter := security.NewRateLimiter(securityConfig.RateLimitRegister, time.Hour/time.Duration(securityConfig.RateLimitRegister))
	defer registerLimiter.Stop()

	submitLimiter := security.NewRateLimiter(securityConfig.RateLimitSubmit, time.Minute/time.Duration(securityConfig.RateLimitSubmit))
	defer submitLimiter.Stop()

	resolveLimiter := security.NewRateLimiter(securityConfig.RateLimitResolve, time.Minute/time.Duration(securityConfig.RateLimitResolve))
	defer resolveLimiter.Stop()

	importLimiter := security.NewRateLimiter(securityConfig.RateLimitImport, time.Hour/time.Duration(securityConfig.RateLimitImport))
	defer importLimiter.Stop()

	engine := html.New("./web/templates", ".html")
	if os.Getenv("ENV") != "production" {
		engine.Reload(true)
	}

	app := fiber.New(fiber.Config{
		Views:             engine,
		ViewsLayout:       "layouts/main",
		PassLocalsToViews: true,
	})

	app.Use(recover.New())
	app.Use(securityMiddleware.RequestLogger())
	app.Use(securityMiddleware.SecureHeaders())
	app.Use(securityMiddleware.InputValidation())

	app.Static("/static", "./web/static")

	store := session.New(session.Config{
		Expiration:     securityConfig.SessionTimeout,
		CookieSecure:   securityConfig.SessionSecure,
		CookieHTTPOnly: securityConfig.SessionHTTPOnly,
		CookieSameSite: securityConfig.SessionSameSite,
		CookieName:     securityConfig.SessionCookieName,
		CookiePath:     "/",
	})

	app.Use(securityMiddleware.SecureSession(store))
	app.Use(securityMiddleware.SetCSRFToken(store))

	authHandler := handlers.NewAuthHandler(store, securityConfig, securityMiddleware, securityLogger)
	adminHandler := handlers.NewAdminHandler(store, securityConfig, securityLogger, securityMonitor)
	qcHandler := handlers.NewQCHandler(store, securityConfig, securityLogger)

	app.Get("/", func(c *fiber.Ctx) error {
		sess, _ := store.Get(c)
		if sess != nil && sess.Get("user_id") != nil {
			return c.Redirect("/records")
		}
		return c.Redirect("/login")
	})

	app.Get("/login", authHandler.ShowLogin)
	app.Post("/login", authHandler.Login)
	app.Get("/logout", authHandler.Logout)

	// Quality-control workflow. Fine-grained permission checks happen in
	// the service layer; the group only requires an authenticated session.
	qc := app.Group("/",
		middleware.AuthRequired(store),
		securityMiddleware.CSRFProtection(store),
	)

	qc.Get("/dashboard", qcHandler.Dashboard)
	qc.Get("/alerts", qcHandler.Alerts)

	qc.Get("/records", qcHandler.ListRecords)
	qc.Get("/records/export", qcHandler.ExportRecords)
	qc.Get("/records/new", qcHandler.ShowCreateRecord)
	qc.Post("/records",
		securityMiddleware.RateLimit(registerLimiter, "register"),
		qcHandler.CreateRecord,
	)
	qc.Get("/records/:id", qcHandler.RecordDetail)
	qc.Get("/records/:id/edit", qcHandler.ShowEditRecord)
	qc.Post("/records/:id/edit", qcHandler.UpdateRecord)
	qc.Post("/records/:id/delete", qcHandler.DeleteRecord)

	qc.Post("/records/:id/controls",
		securityMiddleware.RateLimit(submitLimiter, "submit"),
		qcHandler.SubmitControls,
	)
	qc.Post("/records/:id/approve",
		securityMiddleware.RateLimit(resolveLimiter, "resolve"),
		qcHandler.Approve,
	)
	qc.Post("/records/:id/reject",
		securityMiddleware.RateLimit(resolveLimiter, "resolve"),
		qcHandler.Reject,
	)

	// Administration surface, gated on role level on top of the per-service
	// permission checks.
	admin := app.Group("/admin",
		middleware.AuthRequired(store),
		middleware.MinimumLevel(authz.AdminLevel, securityLogger, securityMonitor),
		securityMiddleware.CSRFProtection(store),
	)

	admin.Get("/dashboard", adminHandler.Dashboard)

	admin.Get("/templates", adminHandler.ListTemplates)
	admin.Get("/templates/new", adminHandler.ShowCreateTemplate)
	admin.Post("/templates", adminHandler.CreateTemplate)
	admin.Get("/templates/:id/edit", adminHandler.ShowEditTemplate)
	admin.Post("/templates/:id/edit", adminHandler.UpdateTemplate)
	admin.Post("/templates/:id/active", adminHandler.SetTemplateActive)

	admin.Get("/products", adminHandler.ListProducts)
	admin.Post("/products", adminHandler.CreateProduct)
	admin.Post("/products/:id/edit", adminHandler.UpdateProduct)
	admin.Post("/products/:id/active", adminHandler.SetProductActive)

	admin.Get("/products/:id/specifications", adminHandler.ProductSpecifications)
	admin.Post("/products/:id/specifications", adminHandler.BindSpecification)
	admin.Post("/products/:id/specifications/import",
		securityMiddleware.RateLimit(importLimiter, "import"),
		adminHandler.ImportSpecifications,
	)
	admin.Post("/specifications/:id/edit", adminHandler.UpdateSpecification)
	admin.Post("/specifications/:id/unbind", adminHandler.UnbindSpecification)

	admin.Get("/users", adminHandler.ListUsers)
	admin.Post("/users", adminHandler.CreateUser)
	admin.Post("/users/:id/active", adminHandler.SetUserActive)
	admin.Post("/users/:id/roles", adminHandler.GrantUserRole)
	admin.Post("/users/:id/roles/revoke", adminHandler.RevokeUserRole)
	admin.Post("/users/:id/password", adminHandler.ChangeUserPassword)

	admin.Get("/roles", adminHandler.ListRoles)
	admin.Post("/roles", adminHandler.CreateRole)
	admin.Post("/roles/:id/edit", adminHandler.UpdateRole)
	admin.Post("/roles/:id/delete", adminHandler.DeleteRole)
	admin.Post("/roles/:id/permissions", adminHandler.SetRolePermissions)

	admin.Get("/audit", adminHandler.ViewAuditLog)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	securityLogger.Info("QualiTrack server starting on :" + port)

	certFile, keyFile := os.Getenv("TLS_CERT"), os.Getenv("TLS_KEY")
	if certFile != "" && keyFile != "" {
		if err := app.ListenTLS(":"+port, certFile, keyFile); err != nil {
			securityLogger.Critical("server stopped", err)
			log.Fatal(err)
		}
		return
	}

	if err := app.Listen(":" + port); err != nil {
		securityLogger.Critical("server stopped", err)
		log.Fatal(err)
	}
}
