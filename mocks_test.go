package lifecycle_test

import (
	"context"
	"database/sql"
	"io"
	"mime/multipart"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	lifecycle "github.com/spaportal/go-lifecycle"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// stubRepoManager wires mock repositories behind the manager interface.
// RunInTx invokes the callback with a zero tx; the mocks never touch it.
type stubRepoManager struct {
	spas        *MockSpas
	therapists  *MockTherapists
	credentials *MockCredentials
	sessions    *MockSessions
	audit       *MockAuditEvents
}

func newStubRepoManager() *stubRepoManager {
	return &stubRepoManager{
		spas:        &MockSpas{},
		therapists:  &MockTherapists{},
		credentials: &MockCredentials{},
		sessions:    &MockSessions{},
		audit:       &MockAuditEvents{},
	}
}

func (s *stubRepoManager) Validate() error { return nil }
func (s *stubRepoManager) MustValidate()   {}

func (s *stubRepoManager) Spas() lifecycle.Spas               { return s.spas }
func (s *stubRepoManager) Therapists() lifecycle.Therapists   { return s.therapists }
func (s *stubRepoManager) Credentials() lifecycle.Credentials { return s.credentials }
func (s *stubRepoManager) Sessions() lifecycle.Sessions       { return s.sessions }
func (s *stubRepoManager) AuditEvents() lifecycle.AuditEvents { return s.audit }

func (s *stubRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return f(ctx, bun.Tx{})
	}
}

// MockSpas implements lifecycle.Spas. The embedded generic repository is
// nil; tests only exercise the lifecycle-specific methods.
type MockSpas struct {
	mock.Mock
	repository.Repository[*lifecycle.Spa]
}

func (m *MockSpas) Register(ctx context.Context, spa *lifecycle.Spa) (*lifecycle.Spa, error) {
	args := m.Called(ctx, spa)
	return getOrNil[*lifecycle.Spa](args.Get(0)), args.Error(1)
}

func (m *MockSpas) RegisterTx(ctx context.Context, tx bun.IDB, spa *lifecycle.Spa) (*lifecycle.Spa, error) {
	args := m.Called(ctx, tx, spa)
	return getOrNil[*lifecycle.Spa](args.Get(0)), args.Error(1)
}

func (m *MockSpas) FindByID(ctx context.Context, id uuid.UUID) (*lifecycle.Spa, error) {
	args := m.Called(ctx, id)
	return getOrNil[*lifecycle.Spa](args.Get(0)), args.Error(1)
}

func (m *MockSpas) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*lifecycle.Spa, error) {
	args := m.Called(ctx, tx, id)
	return getOrNil[*lifecycle.Spa](args.Get(0)), args.Error(1)
}

func (m *MockSpas) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next lifecycle.SpaStatus, opts ...lifecycle.SpaStatusUpdateOption) (*lifecycle.Spa, error) {
	args := m.Called(ctx, id, expected, next, opts)
	return getOrNil[*lifecycle.Spa](args.Get(0)), args.Error(1)
}

func (m *MockSpas) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected, next lifecycle.SpaStatus, opts ...lifecycle.SpaStatusUpdateOption) (*lifecycle.Spa, error) {
	args := m.Called(ctx, tx, id, expected, next, opts)
	return getOrNil[*lifecycle.Spa](args.Get(0)), args.Error(1)
}

func (m *MockSpas) UpdatePaymentStateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, state lifecycle.PaymentState) error {
	args := m.Called(ctx, tx, id, state)
	return args.Error(0)
}

func (m *MockSpas) CountByStatus(ctx context.Context) (map[lifecycle.SpaStatus]int, error) {
	args := m.Called(ctx)
	return getOrNil[map[lifecycle.SpaStatus]int](args.Get(0)), args.Error(1)
}

// MockTherapists implements lifecycle.Therapists.
type MockTherapists struct {
	mock.Mock
	repository.Repository[*lifecycle.Therapist]
}

func (m *MockTherapists) Register(ctx context.Context, therapist *lifecycle.Therapist) (*lifecycle.Therapist, error) {
	args := m.Called(ctx, therapist)
	return getOrNil[*lifecycle.Therapist](args.Get(0)), args.Error(1)
}

func (m *MockTherapists) RegisterTx(ctx context.Context, tx bun.IDB, therapist *lifecycle.Therapist) (*lifecycle.Therapist, error) {
	args := m.Called(ctx, tx, therapist)
	return getOrNil[*lifecycle.Therapist](args.Get(0)), args.Error(1)
}

func (m *MockTherapists) FindByID(ctx context.Context, id uuid.UUID) (*lifecycle.Therapist, error) {
	args := m.Called(ctx, id)
	return getOrNil[*lifecycle.Therapist](args.Get(0)), args.Error(1)
}

func (m *MockTherapists) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*lifecycle.Therapist, error) {
	args := m.Called(ctx, tx, id)
	return getOrNil[*lifecycle.Therapist](args.Get(0)), args.Error(1)
}

func (m *MockTherapists) ListBySpa(ctx context.Context, spaID uuid.UUID) ([]*lifecycle.Therapist, error) {
	args := m.Called(ctx, spaID)
	return getOrNil[[]*lifecycle.Therapist](args.Get(0)), args.Error(1)
}

func (m *MockTherapists) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next lifecycle.TherapistStatus, opts ...lifecycle.TherapistStatusUpdateOption) (*lifecycle.Therapist, error) {
	args := m.Called(ctx, id, expected, next, opts)
	return getOrNil[*lifecycle.Therapist](args.Get(0)), args.Error(1)
}

func (m *MockTherapists) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected, next lifecycle.TherapistStatus, opts ...lifecycle.TherapistStatusUpdateOption) (*lifecycle.Therapist, error) {
	args := m.Called(ctx, tx, id, expected, next, opts)
	return getOrNil[*lifecycle.Therapist](args.Get(0)), args.Error(1)
}

func (m *MockTherapists) CountByStatus(ctx context.Context) (map[lifecycle.TherapistStatus]int, error) {
	args := m.Called(ctx)
	return getOrNil[map[lifecycle.TherapistStatus]int](args.Get(0)), args.Error(1)
}

// MockCredentials implements lifecycle.Credentials.
type MockCredentials struct {
	mock.Mock
	repository.Repository[*lifecycle.ThirdPartyCredential]
}

func (m *MockCredentials) CreateCredential(ctx context.Context, cred *lifecycle.ThirdPartyCredential) (*lifecycle.ThirdPartyCredential, error) {
	args := m.Called(ctx, cred)
	return getOrNil[*lifecycle.ThirdPartyCredential](args.Get(0)), args.Error(1)
}

func (m *MockCredentials) CreateCredentialTx(ctx context.Context, tx bun.IDB, cred *lifecycle.ThirdPartyCredential) (*lifecycle.ThirdPartyCredential, error) {
	args := m.Called(ctx, tx, cred)
	return getOrNil[*lifecycle.ThirdPartyCredential](args.Get(0)), args.Error(1)
}

func (m *MockCredentials) FindByID(ctx context.Context, id uuid.UUID) (*lifecycle.ThirdPartyCredential, error) {
	args := m.Called(ctx, id)
	return getOrNil[*lifecycle.ThirdPartyCredential](args.Get(0)), args.Error(1)
}

func (m *MockCredentials) NewestByUsername(ctx context.Context, username string) (*lifecycle.ThirdPartyCredential, error) {
	args := m.Called(ctx, username)
	return getOrNil[*lifecycle.ThirdPartyCredential](args.Get(0)), args.Error(1)
}

func (m *MockCredentials) ActiveByUsername(ctx context.Context, username string, now time.Time) (*lifecycle.ThirdPartyCredential, error) {
	args := m.Called(ctx, username, now)
	return getOrNil[*lifecycle.ThirdPartyCredential](args.Get(0)), args.Error(1)
}

func (m *MockCredentials) TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockCredentials) ClaimExpiryNotice(ctx context.Context, now time.Time) ([]*lifecycle.ThirdPartyCredential, error) {
	args := m.Called(ctx, now)
	return getOrNil[[]*lifecycle.ThirdPartyCredential](args.Get(0)), args.Error(1)
}

func (m *MockCredentials) HardDelete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSessions implements lifecycle.Sessions.
type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Start(ctx context.Context, session *lifecycle.AdminSession) (*lifecycle.AdminSession, error) {
	args := m.Called(ctx, session)
	return getOrNil[*lifecycle.AdminSession](args.Get(0)), args.Error(1)
}

func (m *MockSessions) FindByPrincipal(ctx context.Context, principalID string) (*lifecycle.AdminSession, error) {
	args := m.Called(ctx, principalID)
	return getOrNil[*lifecycle.AdminSession](args.Get(0)), args.Error(1)
}

func (m *MockSessions) Touch(ctx context.Context, principalID string, at time.Time) error {
	args := m.Called(ctx, principalID, at)
	return args.Error(0)
}

func (m *MockSessions) ClaimExpiry(ctx context.Context, principalID string, at time.Time) (*lifecycle.AdminSession, error) {
	args := m.Called(ctx, principalID, at)
	return getOrNil[*lifecycle.AdminSession](args.Get(0)), args.Error(1)
}

func (m *MockSessions) StaleBefore(ctx context.Context, cutoff time.Time) ([]*lifecycle.AdminSession, error) {
	args := m.Called(ctx, cutoff)
	return getOrNil[[]*lifecycle.AdminSession](args.Get(0)), args.Error(1)
}

func (m *MockSessions) DeleteByPrincipal(ctx context.Context, principalID string) error {
	args := m.Called(ctx, principalID)
	return args.Error(0)
}

// MockAuditEvents implements lifecycle.AuditEvents.
type MockAuditEvents struct {
	mock.Mock
}

func (m *MockAuditEvents) Append(ctx context.Context, event *lifecycle.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockAuditEvents) AppendTx(ctx context.Context, tx bun.IDB, event *lifecycle.AuditEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func (m *MockAuditEvents) Query(ctx context.Context, filter lifecycle.AuditFilter) ([]*lifecycle.AuditEvent, error) {
	args := m.Called(ctx, filter)
	return getOrNil[[]*lifecycle.AuditEvent](args.Get(0)), args.Error(1)
}

// MockSessionGuard implements lifecycle.SessionGuard for middleware tests.
type MockSessionGuard struct {
	mock.Mock
}

func (m *MockSessionGuard) StartSession(ctx context.Context, principalID, token string) (*lifecycle.AdminSession, error) {
	args := m.Called(ctx, principalID, token)
	return getOrNil[*lifecycle.AdminSession](args.Get(0)), args.Error(1)
}

func (m *MockSessionGuard) Touch(ctx context.Context, principalID string) error {
	args := m.Called(ctx, principalID)
	return args.Error(0)
}

func (m *MockSessionGuard) IsValid(ctx context.Context, principalID string) (bool, error) {
	args := m.Called(ctx, principalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionGuard) Expire(ctx context.Context, principalID string) error {
	args := m.Called(ctx, principalID)
	return args.Error(0)
}

func (m *MockSessionGuard) Sweep(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionGuard) StartSweep(scheduler lifecycle.Scheduler, interval time.Duration) func() {
	args := m.Called(scheduler, interval)
	return args.Get(0).(func())
}

func getOrNil[T any](raw any) T {
	var zero T
	if raw == nil {
		return zero
	}
	return raw.(T)
}

// MockContext mocks the router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	return args.Get(0).([]string)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	return args.Get(0).(map[string]any)
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	return getOrNil[*multipart.FileHeader](args.Get(0)), args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}
