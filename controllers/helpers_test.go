package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"securevault/middleware"
	"securevault/models"
	"securevault/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// envelope mirrors the wire response shape.
type envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return env
}

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

// mailRecorder stands in for SMTP delivery and captures the codes that
// would have been mailed out.
type mailRecorder struct {
	mu       sync.Mutex
	sent     int
	lastTo   string
	lastCode string
	failNext bool
}

func (m *mailRecorder) send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("smtp unavailable")
	}
	m.sent++
	m.lastTo = to
	m.lastCode = otpPattern.FindString(body)
	return nil
}

func (m *mailRecorder) code() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCode
}

func (m *mailRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory SQLite: a second connection would see an empty database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.File{}))
	return db
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	auth   *AuthController
	files  *FileController
	mails  *mailRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	mails := &mailRecorder{}

	auth := &AuthController{
		db:         db,
		otpTTL:     10 * time.Minute,
		otpLength:  6,
		resendWait: 0,
		sessionTTL: time.Hour,
		quotaLimit: 1 << 20,
		sendMail:   mails.send,
	}
	files := &FileController{
		db:             db,
		uploadDir:      t.TempDir(),
		maxUploadBytes: 1 << 20,
	}

	r := gin.New()
	api := r.Group("/api")
	api.POST("/register", auth.Register)
	api.POST("/verify-otp", auth.VerifyOTP)
	api.POST("/login", auth.Login)
	api.POST("/logout", middleware.AuthRequired(), auth.Logout)
	api.GET("/config/limits", GetLimits)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.GET("/profile", auth.Profile)
	protected.GET("/files", files.List)
	protected.POST("/upload", files.Upload)
	protected.GET("/download/:id", files.Download)
	protected.DELETE("/delete/:id", files.Delete)

	return &testEnv{router: r, db: db, auth: auth, files: files, mails: mails}
}

// Each request gets a fresh client IP so per-IP registration throttles
// never interfere across test requests.
var ipCounter atomic.Int64

func nextRemoteAddr() string {
	n := ipCounter.Add(1)
	return fmt.Sprintf("203.0.113.%d:4000", n%250+1)
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = nextRemoteAddr()
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doUpload(t *testing.T, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.RemoteAddr = nextRemoteAddr()
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createVerifiedUser inserts a verified account directly and mints a session
// for it, bypassing the OTP flow for file-handler tests.
func (e *testEnv) createVerifiedUser(t *testing.T, email string, quota int64) (models.User, string) {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)
	user := models.User{
		Username:        "tester",
		Email:           email,
		PasswordHash:    hash,
		Verified:        true,
		QuotaLimitBytes: quota,
	}
	require.NoError(t, e.db.Create(&user).Error)
	token, err := utils.MintSession(user.ID, time.Hour)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) userUsedBytes(t *testing.T, userID uint) int64 {
	t.Helper()
	var user models.User
	require.NoError(t, e.db.First(&user, userID).Error)
	return user.UsedBytes
}
