package middleware

import (
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/security"
)

// expectPrincipalLoad queues the three queries AuthRequired issues when it
// builds the principal for user 42: the user row, the granted roles and
// each role's permissions.
func expectPrincipalLoad(mock pgxmock.PgxPoolIface, active bool) {
	mock.ExpectQuery("SELECT id, email, name, password_hash, active, created_at FROM users WHERE id").
		WithArgs(42).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "password_hash", "active", "created_at"}).
			AddRow(42, "inspector@example.com", "Maria Torres", "$2a$12$hash", active, time.Now()))

	if !active {
		return
	}

	mock.ExpectQuery("FROM roles ro").
		WithArgs(42).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "display_name", "level", "is_system", "created_at"}).
			AddRow(2, "inspector", "Quality Inspector", 40, true, time.Now()))

	mock.ExpectQuery("FROM permissions p").
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "resource", "action", "display_name"}).
			AddRow(10, "record:create", "record", "create", "Register records"))
}

// loginApp builds a fiber app with a mock login endpoint that stores
// user_id 42 in the session, plus the protected route under test.
func loginApp(store *session.Store, protected ...fiber.Handler) *fiber.App {
	app := fiber.New()

	app.Get("/login-mock", func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return err
		}
		sess.Set("user_id", 42)
		if err := sess.Save(); err != nil {
			return err
		}
		return c.SendString("logged in")
	})

	handlers := append(protected, func(c *fiber.Ctx) error {
		return c.SendString("protected content")
	})
	app.Get("/protected", handlers...)

	return app
}

func TestAuthRequired_WithValidSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	expectPrincipalLoad(mock, true)

	store := session.New()
	var captured *authz.Principal
	app := loginApp(store, AuthRequired(store), func(c *fiber.Ctx) error {
		captured = PrincipalFrom(c)
		return c.Next()
	})

	resp1, err := app.Test(httptest.NewRequest("GET", "/login-mock", nil))
	require.NoError(t, err)
	defer resp1.Body.Close()

	req := httptest.NewRequest("GET", "/protected", nil)
	for _, cookie := range resp1.Cookies() {
		req.Header.Add("Cookie", cookie.Name+"="+cookie.Value)
	}

	resp2, err := app.Test(req)
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp2.StatusCode)
	body, _ := io.ReadAll(resp2.Body)
	assert.Equal(t, "protected content", string(body))

	require.NotNil(t, captured)
	assert.Equal(t, 42, captured.UserID)
	assert.Equal(t, "inspector@example.com", captured.Email)
	assert.True(t, captured.HasPermission("record:create"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthRequired_WithoutSession(t *testing.T) {
	store := session.New()
	app := fiber.New()

	app.Use("/protected", AuthRequired(store))
	app.Get("/protected", func(c *fiber.Ctx) error {
		return c.SendString("protected content")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestAuthRequired_DisabledAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldDB := database.DB
	database.DB = mock
	defer func() { database.DB = oldDB }()

	expectPrincipalLoad(mock, false)

	store := session.New()
	app := loginApp(store, AuthRequired(store))

	resp1, err := app.Test(httptest.NewRequest("GET", "/login-mock", nil))
	require.NoError(t, err)
	defer resp1.Body.Close()

	req := httptest.NewRequest("GET", "/protected", nil)
	for _, cookie := range resp1.Cookies() {
		req.Header.Add("Cookie", cookie.Name+"="+cookie.Value)
	}

	resp2, err := app.Test(req)
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, fiber.StatusFound, resp2.StatusCode)
	assert.Equal(t, "/login", resp2.Header.Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// withPrincipal simulates AuthRequired having already populated the context.
func withPrincipal(p *authz.Principal) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(principalKey, p)
		return c.Next()
	}
}

// principalWith builds a principal holding one role at the given level
// with the given permissions.
func principalWith(level int, perms ...string) *authz.Principal {
	role := models.Role{ID: 1, Name: "test_role", Level: level}
	for i, p := range perms {
		role.Permissions = append(role.Permissions, models.Permission{ID: i + 1, Name: p})
	}
	user := models.User{ID: 7, Email: "inspector@example.com", Name: "Maria Torres", Active: true}
	return authz.NewPrincipal(user, []models.Role{role})
}

func quietOutput() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestPermissionRequired(t *testing.T) {
	logger := security.NewLogger()
	logger.SetOutput(quietOutput())
	monitor := security.NewMonitor(logger, security.DefaultConfig(), nil)

	tests := []struct {
		name       string
		perms      []string
		wantStatus int
	}{
		{
			name:       "granted",
			perms:      []string{"record:approve"},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "denied",
			perms:      []string{"record:create"},
			wantStatus: fiber.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/resolve",
				withPrincipal(principalWith(40, tt.perms...)),
				PermissionRequired("record", "approve", logger, monitor),
				func(c *fiber.Ctx) error { return c.SendString("ok") })

			resp, err := app.Test(httptest.NewRequest("GET", "/resolve", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestPermissionRequired_Unauthenticated(t *testing.T) {
	logger := security.NewLogger()
	logger.SetOutput(quietOutput())
	monitor := security.NewMonitor(logger, security.DefaultConfig(), nil)

	app := fiber.New()
	app.Get("/resolve",
		PermissionRequired("record", "approve", logger, monitor),
		func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/resolve", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestMinimumLevel(t *testing.T) {
	logger := security.NewLogger()
	logger.SetOutput(quietOutput())
	monitor := security.NewMonitor(logger, security.DefaultConfig(), nil)

	tests := []struct {
		name       string
		level      int
		wantStatus int
	}{
		{name: "admin level passes", level: 90, wantStatus: fiber.StatusOK},
		{name: "inspector level rejected", level: 40, wantStatus: fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/admin",
				withPrincipal(principalWith(tt.level)),
				MinimumLevel(authz.AdminLevel, logger, monitor),
				func(c *fiber.Ctx) error { return c.SendString("ok") })

			resp, err := app.Test(httptest.NewRequest("GET", "/admin", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
