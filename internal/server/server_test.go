package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	checkoutservice "github.com/smallbiznis/streamgate/internal/checkout/service"
	"github.com/smallbiznis/streamgate/internal/clock"
	"github.com/smallbiznis/streamgate/internal/config"
	devicedomain "github.com/smallbiznis/streamgate/internal/device/domain"
	devicerepo "github.com/smallbiznis/streamgate/internal/device/repository"
	"github.com/smallbiznis/streamgate/internal/jobs"
	"github.com/smallbiznis/streamgate/internal/observability"
	"github.com/smallbiznis/streamgate/internal/providers/compute"
	"github.com/smallbiznis/streamgate/internal/providers/dns"
	"github.com/smallbiznis/streamgate/internal/providers/email"
	"github.com/smallbiznis/streamgate/internal/providers/payment"
	provisioningdomain "github.com/smallbiznis/streamgate/internal/provisioning/domain"
	provisioningservice "github.com/smallbiznis/streamgate/internal/provisioning/service"
	"github.com/smallbiznis/streamgate/internal/ratelimit"
	streamdomain "github.com/smallbiznis/streamgate/internal/stream/domain"
	streamservice "github.com/smallbiznis/streamgate/internal/stream/service"
	"github.com/smallbiznis/streamgate/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePayment struct {
	createErr error
	canceled  []string
}

func (f *fakePayment) CreateCheckoutSession(context.Context, payment.CheckoutParams) (payment.CheckoutSession, error) {
	if f.createErr != nil {
		return payment.CheckoutSession{}, f.createErr
	}
	return payment.CheckoutSession{ID: "cs_test_1"}, nil
}

func (f *fakePayment) RetrieveCustomer(_ context.Context, id string) (payment.Customer, error) {
	return payment.Customer{ID: id, Email: "customer@example.org"}, nil
}

func (f *fakePayment) CancelSubscription(_ context.Context, id string) error {
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakePayment) ConstructEvent(payload []byte, _ string) (payment.Event, error) {
	var event payment.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return payment.Event{}, payment.ErrInvalidPayload
	}
	return event, nil
}

func (f *fakePayment) PublishableKey() string { return "pk_test_1" }

type fakeCompute struct{}

func (fakeCompute) ListRegions(context.Context) ([]compute.Region, error) {
	return []compute.Region{{ID: "us-east"}}, nil
}

func (fakeCompute) FindImageByLabel(_ context.Context, label string) (compute.Image, error) {
	return compute.Image{ID: "private/1", Label: label}, nil
}

func (fakeCompute) CreateInstance(_ context.Context, req compute.CreateInstanceRequest) (compute.Instance, error) {
	return compute.Instance{ID: 42, Label: req.Label, Region: req.Region, IPv4: "198.51.100.4", RootPassword: "pw-123", Status: compute.StatusRunning}, nil
}

func (fakeCompute) WaitForStatus(context.Context, int64, string, time.Duration) error { return nil }

type fakeDNS struct{}

func (fakeDNS) ZoneID(context.Context, string) (string, error) { return "zone-1", nil }

func (fakeDNS) CreateRecord(_ context.Context, _ string, record dns.Record) (dns.Record, error) {
	record.ID = "rec-1"
	return record, nil
}

type hookRecorder struct {
	mu     sync.Mutex
	events []streamdomain.WebhookPayload
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload streamdomain.WebhookPayload
	_ = json.NewDecoder(r.Body).Decode(&payload)
	h.mu.Lock()
	h.events = append(h.events, payload)
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (h *hookRecorder) received() []streamdomain.WebhookPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]streamdomain.WebhookPayload(nil), h.events...)
}

type testEnv struct {
	engine  *gin.Engine
	db      *gorm.DB
	repo    devicedomain.Repository
	payment *fakePayment
}

type envOption func(*config.Config)

func newTestEnv(t *testing.T, redisClient *redis.Client, opts ...envOption) *testEnv {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&devicedomain.Device{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		SiteURL:   "https://stream.example.com",
		StaticDir: t.TempDir(),
		DNS:       config.DNSConfig{RootDomain: "example.com"},
		RateLimit: config.RateLimitConfig{StreamKeyRate: 0.001, StreamKeyBurst: 1},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := zap.NewNop()
	repo := devicerepo.Provide(node)
	registry := jobs.NewRegistry()
	dispatcher := jobs.NewInlineDispatcher(registry, log, nil)
	fp := &fakePayment{}

	provisioning := provisioningservice.New(provisioningservice.Params{
		DB:     conn,
		Log:    log,
		Config: cfg,
		Profiles: config.NewStaticProfileHolder(config.ProvisioningProfile{
			InstanceType: "g6-nanode-1",
			ImageLabel:   "nginx-rtmp",
		}),
		Clock:   clock.New(),
		Repo:    repo,
		Compute: fakeCompute{},
		DNS:     fakeDNS{},
		Email:   &email.NoOpProvider{},
	})
	registry.Register(provisioningdomain.JobSetupStreamingInstance, provisioning.HandleJob)

	stream := streamservice.New(streamservice.Params{
		DB:         conn,
		Log:        log,
		Config:     cfg,
		Repo:       repo,
		Dispatcher: dispatcher,
	})
	registry.Register(streamdomain.JobInvokeWebhook, stream.HandleWebhookJob)

	checkout := checkoutservice.New(checkoutservice.Params{
		DB:         conn,
		Log:        log,
		Config:     cfg,
		Repo:       repo,
		Payment:    fp,
		Dispatcher: dispatcher,
	})

	srv := NewServer(ServerParams{
		Gin:              NewEngine(observability.Config{}, nil),
		Cfg:              cfg,
		Log:              log,
		CheckoutSvc:      checkout,
		StreamSvc:        stream,
		StreamKeyLimiter: ratelimit.NewStreamKeyLimiter(cfg, redisClient),
	})

	return &testEnv{engine: srv.Engine(), db: conn, repo: repo, payment: fp}
}

func (e *testEnv) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postJSON(target string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	return e.do(http.MethodPost, target, "application/json", string(raw))
}

func (e *testEnv) postForm(target string, values url.Values) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, target, "application/x-www-form-urlencoded", values.Encode())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func checkoutCompleted(sessionID, email string) string {
	return fmt.Sprintf(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":%q,"customer":"cus_1","subscription":"sub_1","customer_details":{"email":%q}}}}`, sessionID, email)
}

func TestCheckoutToStreamLifecycle(t *testing.T) {
	hooks := &hookRecorder{}
	hookSrv := httptest.NewServer(hooks)
	defer hookSrv.Close()

	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/webhook", "application/json", checkoutCompleted("sess_1", "a@b.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", decode(t, rec)["status"])

	device, err := env.repo.FindOne(context.Background(), env.db, devicedomain.FieldStripeSessionID, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", device.Email)
	assert.Equal(t, "198.51.100.4", device.IPAddress)
	assert.NotEmpty(t, device.Password)
	assert.Len(t, device.Subdomain, provisioningdomain.SubdomainLength)

	rec = env.do(http.MethodGet, "/checkout-session?sessionId=sess_1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, device.Identifier, decode(t, rec)["api_key"])

	rec = env.postJSON("/getStreamKey/", map[string]any{
		"api_key":             device.Identifier,
		"publish_webhook":     hookSrv.URL + "/start",
		"publish_end_webhook": hookSrv.URL + "/end",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	key := decode(t, rec)
	streamToken, _ := key["stream_token"].(string)
	require.Len(t, streamToken, streamdomain.TokenLength)
	host := strings.ToLower(device.Subdomain) + ".example.com"
	assert.Equal(t, "rtmp://"+host+"/live/"+streamToken, key["rtmp_stream_endpoint"])
	assert.Equal(t, "http://"+host+"/hls/"+streamToken+"/index.m3u8", key["hls_endoint"])

	rec = env.postForm("/publish/", url.Values{"name": {streamToken}, "swfUrl": {"rtmp://" + host + "/live"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["response"])

	rec = env.postForm("/resetToken/", url.Values{"name": {streamToken}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["response"])

	assert.Equal(t, []streamdomain.WebhookPayload{
		{StreamToken: streamToken, Event: streamdomain.EventPublish},
		{StreamToken: streamToken, Event: streamdomain.EventPublishEnd},
	}, hooks.received())

	rec = env.postForm("/publish/", url.Values{"name": {streamToken}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid publish", rec.Body.String())

	rec = env.postForm("/resetToken/", url.Values{"name": {streamToken}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, hooks.received(), 2)
}

func TestPaymentWebhookRedeliveryInsertsOnce(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/webhook", "application/json", checkoutCompleted("sess_1", "a@b.com"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var count int64
	require.NoError(t, env.db.Model(&devicedomain.Device{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPaymentWebhookRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/webhook", "application/json", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/publishable-key", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pk_test_1", decode(t, rec)["publishableKey"])

	rec = env.postJSON("/create-checkout-session", map[string]any{"donation": 500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cs_test_1", decode(t, rec)["checkoutSessionId"])

	env.payment.createErr = errors.New("No such price: 'price_x'")
	rec = env.postJSON("/create-checkout-session", map[string]any{"donation": 0})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "No such price: 'price_x'", decode(t, rec)["error"])

	rec = env.do(http.MethodGet, "/checkout-session?sessionId=unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/checkout-session", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRendersPage(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.repo.Insert(context.Background(), env.db, &devicedomain.Device{
		Email: "a@b.com", StripeSessionID: "sess_1", Subscription: "sub_1",
	})
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/cancel/?sessionId=sess_1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subscription has been canceled")
	assert.Equal(t, []string{"sub_1"}, env.payment.canceled)

	rec = env.do(http.MethodGet, "/cancel/?sessionId=missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelPrefersStaticPage(t *testing.T) {
	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "cancel.html"), []byte("<p>custom cancel</p>"), 0o644))
	env := newTestEnv(t, nil, func(cfg *config.Config) { cfg.StaticDir = staticDir })

	_, err := env.repo.Insert(context.Background(), env.db, &devicedomain.Device{
		Email: "a@b.com", StripeSessionID: "sess_1", Subscription: "sub_1",
	})
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/cancel/?sessionId=sess_1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "custom cancel")
}

func TestStaticFiles(t *testing.T) {
	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("home"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "success.html"), []byte("paid"), 0o644))
	env := newTestEnv(t, nil, func(cfg *config.Config) { cfg.StaticDir = staticDir })

	rec := env.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "home", rec.Body.String())

	rec = env.do(http.MethodGet, "/success.html", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", rec.Body.String())

	rec = env.do(http.MethodGet, "/about", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/../go.mod", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStreamKeyErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/getStreamKey/", "application/json", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postJSON("/getStreamKey/", map[string]any{"api_key": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postJSON("/getStreamKey/", map[string]any{"api_key": "unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pending := &devicedomain.Device{Email: "a@b.com", StripeSessionID: "sess_1"}
	_, err := env.repo.Insert(context.Background(), env.db, pending)
	require.NoError(t, err)

	rec = env.postJSON("/getStreamKey/", map[string]any{"api_key": pending.Identifier})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.postJSON("/getStreamKey/", map[string]any{"api_key": pending.Identifier, "publish_webhook": "ftp://nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody, _ := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "validation_error", errBody["type"])
}

func TestGetStreamKeyRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, client)

	rec := env.postJSON("/getStreamKey/", map[string]any{"api_key": "unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.postJSON("/getStreamKey/", map[string]any{"api_key": "unknown"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{devicedomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{streamdomain.ErrInvalidWebhookURL, http.StatusBadRequest, "validation_error"},
		{streamdomain.ErrNotProvisioned, http.StatusConflict, "conflict"},
		{payment.ErrInvalidSignature, http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("wrapped: %w", ErrRateLimited), http.StatusTooManyRequests, "rate_limited"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, payload.Type, tc.err.Error())
	}

	_, payload := mapError(streamdomain.ErrInvalidIdentifier)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "api_key", payload.Errors[0].Field)
}
