package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/example/storefront/pkg/account"
	"github.com/example/storefront/pkg/admin"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminEmail    = "owner@example.com"
	adminPassword = "s3cret-admin"
	keySecret     = "rzp_test_secret"
)

var orderIDPattern = regexp.MustCompile(`^ORD-\d+-[0-9A-F]{6}$`)

type testServer struct {
	gateway *Gateway
	repo    *repository.FileRepository
	uploads afero.Fs
}

type serverOption func(*config.Config)

func withRateLimit(perSecond float64, burst int) serverOption {
	return func(cfg *config.Config) {
		cfg.Gateway.RateLimit = perSecond
		cfg.Gateway.RateBurst = burst
	}
}

func withPaymentAPI(url string) serverOption {
	return func(cfg *config.Config) { cfg.Payment.APIURL = url }
}

func newTestServer(t *testing.T, configured bool, opts ...serverOption) *testServer {
	t.Helper()

	cfg := &config.Config{
		Gateway: config.GatewayConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			AllowedOrigins: []string{"*"},
			RateLimit:      1000,
			RateBurst:      1000,
			MaxUploadBytes: 1 << 20,
		},
		Auth: config.AuthConfig{
			JWTSecret:     "test-jwt-secret",
			TokenTTL:      time.Hour,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
		Payment: config.PaymentConfig{
			APIURL:   "http://127.0.0.1:0",
			Currency: "INR",
			Timeout:  5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	repo, err := repository.NewFileRepository(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.SaveProducts(ctx, []models.Product{
		{Title: "Bamboo Chair v1", Price: 690, Images: []string{"uploads/chair.jpg"}},
		{Title: "Bamboo Stool", Price: 1200},
	}))
	if configured {
		require.NoError(t, repo.SaveCredentials(ctx, models.Credentials{KeyID: "rzp_test_key", KeySecret: keySecret}))
	}

	logger := zap.NewNop()
	uploads := afero.NewBasePathFs(afero.NewMemMapFs(), "/uploads")
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	services := Services{
		Auth:     auth.NewService(repo, tokens, cfg.Auth, nil, logger),
		Accounts: account.NewService(repo, nil, logger),
		Admin: admin.NewService(admin.Stores{
			Catalog:  repo,
			Users:    repo,
			Ledger:   repo,
			Settings: repo,
			Activity: repo,
		}, uploads, nil, logger),
		Pipeline:    order.NewPipeline(repo, repo, repo, repo, order.WithLogger(logger)),
		Catalog:     repo,
		Credentials: repo,
		Payments:    payment.NewClient(cfg.Payment),
		Metrics:     metrics.New(),
		Uploads:     uploads,
	}

	return &testServer{
		gateway: NewGateway(cfg, services, logger),
		repo:    repo,
		uploads: uploads,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.gateway.Handler().ServeHTTP(w, req)
	return w
}

func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/signup", "", auth.SignupRequest{
		Email:    email,
		Password: "hunter22",
		Name:     "Test User",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Token
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: adminEmail, Password: adminPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token   string `json:"token"`
		IsAdmin bool   `json:"isAdmin"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.IsAdmin)
	return resp.Token
}

type placeResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

func decodePlace(t *testing.T, w *httptest.ResponseRecorder) placeResponse {
	t.Helper()
	var resp placeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func codBody() map[string]interface{} {
	return map[string]interface{}{
		"type": "COD",
		"items": []map[string]interface{}{
			{"title": "Bamboo Chair v1", "quantity": 2, "price": 1},
			{"title": "Bamboo Stool", "quantity": 1},
		},
		"userDetails": map[string]string{"name": "Asha", "phone": "9999999999", "address": "12 Lake Road"},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	s.gateway.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

func TestListProducts(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var products []models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	require.Len(t, products, 2)
	assert.Equal(t, "Bamboo Chair v1", products[0].Title)
}

func TestGuestCashOnDelivery(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/orders/place", "", codBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodePlace(t, w)
	assert.True(t, resp.Success)
	assert.Regexp(t, orderIDPattern, resp.OrderID)

	orders, err := s.repo.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.GuestUserID, orders[0].UserID)
	assert.EqualValues(t, 2580, orders[0].Total)
	assert.Equal(t, models.PaymentPending, orders[0].PaymentStatus)
}

func TestAdminCheckoutIsGuestOrder(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/orders/place", s.adminToken(t), codBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	orders, err := s.repo.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.GuestUserID, orders[0].UserID)
}

func TestPlaceOrderRejections(t *testing.T) {
	tests := []struct {
		name       string
		configured bool
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name:       "empty cart",
			body:       map[string]interface{}{"type": "COD", "items": []interface{}{}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "no matching products",
			body: map[string]interface{}{
				"type":  "COD",
				"items": []map[string]interface{}{{"title": "Ghost", "quantity": 1}},
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "online without payment data",
			body: map[string]interface{}{
				"type":  "ONLINE",
				"items": []map[string]interface{}{{"title": "Bamboo Stool", "quantity": 1}},
			},
			configured: true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "online with forged signature",
			body: map[string]interface{}{
				"type":  "ONLINE",
				"items": []map[string]interface{}{{"title": "Bamboo Stool", "quantity": 1}},
				"paymentData": map[string]string{
					"razorpay_order_id":   "order_1",
					"razorpay_payment_id": "pay_1",
					"razorpay_signature":  strings.Repeat("0", 64),
				},
			},
			configured: true,
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name: "online without gateway keys",
			body: map[string]interface{}{
				"type":  "ONLINE",
				"items": []map[string]interface{}{{"title": "Bamboo Stool", "quantity": 1}},
				"paymentData": map[string]string{
					"razorpay_order_id":   "order_1",
					"razorpay_payment_id": "pay_1",
					"razorpay_signature":  payment.Sign("order_1", "pay_1", keySecret),
				},
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.configured)

			w := s.do(t, http.MethodPost, "/api/orders/place", "", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			resp := decodePlace(t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)

			orders, err := s.repo.ListOrders(context.Background())
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestMalformedPlaceBody(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/place", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.gateway.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidTokenIsNotDowngradedToGuest(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/orders/place", "not-a-jwt", codBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	orders, err := s.repo.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOnlineOrderForSignedInUser(t *testing.T) {
	s := newTestServer(t, true)
	token := s.signup(t, "Buyer@Example.com")

	body := map[string]interface{}{
		"type":  "ONLINE",
		"items": []map[string]interface{}{{"title": "Bamboo Stool", "quantity": 2}},
		"paymentData": map[string]string{
			"razorpay_order_id":   "order_9",
			"razorpay_payment_id": "pay_9",
			"razorpay_signature":  payment.Sign("order_9", "pay_9", keySecret),
		},
	}
	w := s.do(t, http.MethodPost, "/api/orders/place", token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	orderID := decodePlace(t, w).OrderID

	w = s.do(t, http.MethodGet, "/api/user/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool           `json:"success"`
		Orders  []models.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, orderID, resp.Orders[0].ID)
	assert.Equal(t, models.PaymentPaid, resp.Orders[0].PaymentStatus)
	require.NotNil(t, resp.Orders[0].PaymentID)
	assert.Equal(t, "pay_9", *resp.Orders[0].PaymentID)
	assert.EqualValues(t, 2400, resp.Orders[0].Total)
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t, false)
	s.signup(t, "asha@example.com")

	w := s.do(t, http.MethodPost, "/api/auth/signup", "", auth.SignupRequest{Email: "ASHA@example.com", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "asha@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")

	w = s.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "asha@example.com", Password: "hunter22"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")
}

func TestCartRoutes(t *testing.T) {
	s := newTestServer(t, false)
	token := s.signup(t, "cart@example.com")

	w := s.do(t, http.MethodPost, "/api/user/cart/save", token, map[string]interface{}{
		"cart": []map[string]interface{}{
			{"title": "Bamboo Stool", "quantity": 3},
			{"title": "Bamboo Chair v1", "quantity": 0},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	users, err := s.repo.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, []models.CartLine{{Title: "Bamboo Stool", Quantity: 3}}, users[0].Cart)

	w = s.do(t, http.MethodPost, "/api/user/cart/clear", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	user, err := s.repo.FindUser(context.Background(), users[0].ID)
	require.NoError(t, err)
	assert.Empty(t, user.Cart)
}

func TestUserRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodGet, "/api/user/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateAvatar(t *testing.T) {
	s := newTestServer(t, false)
	token := s.signup(t, "avatar@example.com")

	w := s.do(t, http.MethodPost, "/api/user/update", token, map[string]interface{}{"avatar": "uploads/me.png"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		User models.Profile `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.User.Avatar)
	assert.Equal(t, "uploads/me.png", *resp.User.Avatar)

	w = s.do(t, http.MethodPost, "/api/user/update", token, map[string]interface{}{"avatar": nil})
	require.Equal(t, http.StatusOK, w.Code)
	resp.User = models.Profile{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.User.Avatar)
}

func TestAdminRoutesRejectNonAdmins(t *testing.T) {
	s := newTestServer(t, false)
	userToken := s.signup(t, "plain@example.com")

	w := s.do(t, http.MethodGet, "/api/admin/data/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/data/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/products", userToken, []models.Product{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/data/users", s.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")
	assert.Contains(t, w.Body.String(), "plain@example.com")
}

func TestAdminDatasets(t *testing.T) {
	s := newTestServer(t, false)
	token := s.adminToken(t)

	w := s.do(t, http.MethodPost, "/api/orders/place", "", codBody())
	require.Equal(t, http.StatusOK, w.Code)
	orderID := decodePlace(t, w).OrderID

	w = s.do(t, http.MethodGet, "/api/admin/data/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), orderID)

	w = s.do(t, http.MethodPut, "/api/admin/orders/"+orderID+"/status", token, map[string]string{"status": "Delivered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/admin/data/orders", token, nil)
	assert.JSONEq(t, `[]`, w.Body.String())
	w = s.do(t, http.MethodGet, "/api/admin/data/archives", token, nil)
	assert.Contains(t, w.Body.String(), orderID)

	w = s.do(t, http.MethodPut, "/api/admin/orders/ORD-0-000000/status", token, map[string]string{"status": "Shipped"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/orders/"+orderID+"/status", token, map[string]string{"status": "Lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/data/secrets", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGatewayKeys(t *testing.T) {
	s := newTestServer(t, false)
	token := s.adminToken(t)

	w := s.do(t, http.MethodGet, "/api/config/razorpay/status", "", nil)
	assert.JSONEq(t, `{"available":false}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/admin/config/razorpay", token, map[string]string{"keyId": "rzp_key"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/admin/config/razorpay", token, map[string]string{"keyId": "rzp_key", "keySecret": "sec"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/config/razorpay/status", token, nil)
	assert.JSONEq(t, `{"configured":true}`, w.Body.String())
	w = s.do(t, http.MethodGet, "/api/config/razorpay/status", "", nil)
	assert.JSONEq(t, `{"available":true}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "sec")
}

func TestReplaceProducts(t *testing.T) {
	s := newTestServer(t, false)
	token := s.adminToken(t)

	w := s.do(t, http.MethodPost, "/api/products", token, []models.Product{{Title: "Cane Lamp", Price: 450}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/products", "", nil)
	assert.JSONEq(t, `[{"title":"Cane Lamp","price":450,"images":[]}]`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/products", token, []models.Product{{Title: "A"}, {Title: "A"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadIsServed(t *testing.T) {
	s := newTestServer(t, false)
	token := s.adminToken(t)

	content := []byte("\x89PNG fake image")
	w := s.do(t, http.MethodPost, "/api/upload", token, map[string]string{
		"filename": "../../chair.png",
		"image":    base64.StdEncoding.EncodeToString(content),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Filepath string `json:"filepath"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, `^uploads/\d+_chair\.png$`, resp.Filepath)

	w = s.do(t, http.MethodGet, "/"+resp.Filepath, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}

func TestCreateGatewayOrder(t *testing.T) {
	var gotAmount float64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != keySecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotAmount, _ = body["amount"].(float64)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_test_1","amount":258000,"currency":"INR","status":"created"}`))
	}))
	defer api.Close()

	s := newTestServer(t, true, withPaymentAPI(api.URL))

	w := s.do(t, http.MethodPost, "/api/orders/create", "", map[string]interface{}{
		"items": []map[string]interface{}{
			{"title": "Bamboo Chair v1", "quantity": 2, "price": 1},
			{"title": "Bamboo Stool", "quantity": 1},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 258000, gotAmount)
	assert.JSONEq(t, `{"success":true,"orderId":"order_test_1","keyId":"rzp_test_key","amount":258000,"currency":"INR"}`, w.Body.String())
}

func TestCreateGatewayOrderWithoutKeys(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/orders/create", "", map[string]interface{}{
		"items": []map[string]interface{}{{"title": "Bamboo Stool", "quantity": 1}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	s := newTestServer(t, false, withRateLimit(0.001, 2))

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "x@example.com", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := s.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "x@example.com", Password: "nope"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Other routes are not limited.
	w = s.do(t, http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	s.do(t, http.MethodPost, "/api/orders/place", "", codBody())
	w := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `storefront_http_requests_total{method="POST",route="/api/orders/place",status="200"} 1`)
}

func TestIPLimiterSeparatesClients(t *testing.T) {
	l := newIPLimiter(0.001, 1)

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"Bearer abc":    "abc",
		"bearer abc":    "abc",
		"abc":           "abc",
		"Bearer  abc  ": "abc",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = req
		assert.Equal(t, want, bearerToken(c), "header %q", header)
	}
}
