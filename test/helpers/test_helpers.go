package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kryos/kryos-api/internal/model"
	"github.com/kryos/kryos-api/internal/processor"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/kryos/kryos-api/pkg/pg"
	"github.com/kryos/kryos-api/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func SetupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&repository.TransactionEntity{}, &repository.UserEntity{}))
	return pg.Wrap(db, db)
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "test:", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return mr, adapter
}

func CreateTestUser(t *testing.T, db *pg.DB, id, email string, role model.Role) *model.User {
	t.Helper()
	user, err := repository.NewUserRepository(db).Create(context.Background(), &model.User{
		ID:          id,
		Email:       email,
		DisplayName: strings.Split(email, "@")[0],
		Role:        role,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
	return user
}

// Do runs one request through handler and returns the status and body. The
// context is initialized like a served one, so handlers may pass it on as a
// context.Context.
func Do(handler fasthttp.RequestHandler, method, uri string, body any, headers map[string]string) (int, []byte) {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != nil {
		b, _ := json.Marshal(body)
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	handler(&ctx)
	return ctx.Response.StatusCode(), append([]byte(nil), ctx.Response.Body()...)
}

func Decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

// FakeGateway answers POST /v1/orders like the payment gateway and remembers
// the minor-unit amounts it was asked for.
type FakeGateway struct {
	*httptest.Server

	mu      sync.Mutex
	amounts []int64
	next    int
}

func NewFakeGateway(t *testing.T, keyID, secret string) *FakeGateway {
	t.Helper()
	fg := &FakeGateway{}
	fg.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != keyID || pass != secret {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
			return
		}
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fg.mu.Lock()
		fg.next++
		id := fmt.Sprintf("order_test%06d", fg.next)
		fg.amounts = append(fg.amounts, body.Amount)
		fg.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.Order{
			ID:        id,
			Entity:    "order",
			Amount:    body.Amount,
			AmountDue: body.Amount,
			Currency:  body.Currency,
			Receipt:   body.Receipt,
			Status:    "created",
			CreatedAt: time.Now().Unix(),
		})
	}))
	t.Cleanup(fg.Close)
	return fg
}

func (g *FakeGateway) Amounts() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.amounts...)
}

type RecordingMailer struct {
	mu   sync.Mutex
	sent []processor.Mail
}

func (m *RecordingMailer) Send(_ context.Context, mail processor.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(mail.To) == 0 {
		return errors.New("no recipients")
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *RecordingMailer) Sent() []processor.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]processor.Mail(nil), m.sent...)
}
