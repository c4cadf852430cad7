package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_mes"
	JWTSecret  = "nimo-mes-test-secret"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the directory holding go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// RequireIntegration skips the test unless INTEGRATION_TESTS=1.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if root := projectRoot(); root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run against Postgres")
	}
}

// SetupTestDB connects to Postgres with a fresh schema per test, migrated and
// dropped again on cleanup. Skips unless INTEGRATION_TESTS=1.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	RequireIntegration(t)

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "127.0.0.1"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "nimo"),
		getEnv("DB_PASSWORD", "nimo123"),
		getEnv("DB_NAME", "nimo_mes"),
	)
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)
	quiet := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	setupDB, err := gorm.Open(postgres.Open(baseDSN), quiet)
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// search_path in the DSN so every pooled connection uses the test schema
	db, err := gorm.Open(postgres.Open(baseDSN+" search_path="+schemaName), quiet)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := entity.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, err := gorm.Open(postgres.Open(baseDSN), quiet)
		if err != nil {
			return
		}
		cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
		if sqlClean, _ := cleanDB.DB(); sqlClean != nil {
			sqlClean.Close()
		}
	})
	return db
}

// SetupSQLiteDB opens a private in-memory SQLite database with every table
// migrated. now drives the created_at and updated_at stamps; nil means UTC wall time.
func SetupSQLiteDB(t *testing.T, now func() time.Time) *gorm.DB {
	t.Helper()
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), NowFunc: now}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_time_format=sqlite", uuid.NewString())
	db, err := repository.OpenSQLite(dsn, cfg)
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	if err := entity.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate sqlite tables: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
	})
	return db
}

// SetupRouter gin engine in test mode with recovery
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID())
	return r
}

// AuthGroup API group behind the JWT middleware
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs a token for userID holding roles
func GenerateTestToken(userID, name string, roles ...string) string {
	if roles == nil {
		roles = []string{}
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": userID + "@test.local",
		"roles": roles,
		"iss":   "nimo-mes",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken admin token, passes every role check
func DefaultTestToken() string {
	return GenerateTestToken("test-admin", "Test Admin", middleware.AdminRole)
}

// DoRequest executes a JSON request against the router
func DoRequest(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the {code, message, data} envelope
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// Data the "data" object of a response, nil if absent
func Data(w *httptest.ResponseRecorder) map[string]interface{} {
	data, _ := ParseResponse(w)["data"].(map[string]interface{})
	return data
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
