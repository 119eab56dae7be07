package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func identityApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(testSecret))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"id":    c.Locals(LocalUserID),
			"role":  c.Locals(LocalUserRole),
			"name":  c.Locals(LocalUserName),
			"email": c.Locals(LocalUserEmail),
		})
	})
	return app
}

func TestJWTProtectedPopulatesIdentity(t *testing.T) {
	app := identityApp()
	token := signToken(t, jwt.MapClaims{
		"sub":   "cus_42",
		"role":  "Customer",
		"name":  "Ada Lovelace",
		"email": "ADA@Example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "cus_42", body["id"])
	require.Equal(t, "customer", body["role"])
	require.Equal(t, "Ada Lovelace", body["name"])
	require.Equal(t, "ada@example.com", body["email"])
}

func TestJWTProtectedNumericSubject(t *testing.T) {
	app := identityApp()
	token := signToken(t, jwt.MapClaims{"sub": float64(7), "roles": []interface{}{"Admin"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "7", body["id"])
	require.Equal(t, "admin", body["role"])
}

func TestJWTProtectedRejections(t *testing.T) {
	app := identityApp()

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("other"))
	require.NoError(t, err)
	expired := signToken(t, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()})
	anonymous := signToken(t, jwt.MapClaims{"role": "customer"})

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"bad signature":  "Bearer " + foreign,
		"expired":        "Bearer " + expired,
		"no subject":     "Bearer " + anonymous,
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestJWTProtectedQueryTokenOnlyForUpgrades(t *testing.T) {
	app := identityApp()
	token := signToken(t, jwt.MapClaims{"sub": "cus_1"})

	req := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
