package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg *Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// recordingSender guarda los mensajes; apto para uso concurrente.
type recordingSender struct {
	mu   sync.Mutex
	msgs []*Message
}

func (r *recordingSender) Send(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func testTemplates() TemplateSource {
	return NewFSSource(fstest.MapFS{
		TemplateActivation:    {Data: []byte("activate {{activationCode}} at {{activationUrl}}")},
		TemplatePasswordReset: {Data: []byte("reset {{activationCode}} at {{activationUrl}}")},
	})
}

func newTestService(t *testing.T, sender Sender, mutate ...func(*ServiceConfig)) *Service {
	t.Helper()
	cfg := ServiceConfig{
		Sender:      sender,
		Templates:   testTemplates(),
		From:        Mailbox{Name: "HelloJohn", Address: "no-reply@hello.test"},
		FrontendURL: "https://app.hello.test",
		Logger:      zap.NewNop(),
	}
	for _, f := range mutate {
		f(&cfg)
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	svc.newID = func() string { return "msg-1" }
	return svc
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(ServiceConfig{Templates: testTemplates(), From: Mailbox{Address: "a@b.test"}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewService(ServiceConfig{Sender: &recordingSender{}, From: Mailbox{Address: "a@b.test"}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewService(ServiceConfig{Sender: &recordingSender{}, Templates: testTemplates()})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_Compose(t *testing.T) {
	svc := newTestService(t, &recordingSender{})

	msg, err := svc.Compose(context.Background(), SendRequest{
		Kind:       PasswordReset,
		To:         Mailbox{Name: "Ana", Address: "ana@example.test"},
		Activation: Activation{Code: "ABC123"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, PasswordReset, msg.Kind)
	assert.Equal(t, "Password Reset", msg.Subject)
	assert.Equal(t, "no-reply@hello.test", msg.From.Address)
	assert.Equal(t, "ana@example.test", msg.To.Address)
	assert.Equal(t, "reset ABC123 at https://app.hello.test/pages/reset-password?c=ABC123", msg.HTML)
}

func TestService_ComposeFallbackKind(t *testing.T) {
	svc := newTestService(t, &recordingSender{})

	msg, err := svc.Compose(context.Background(), SendRequest{
		Kind:       Kind(42),
		To:         Mailbox{Address: "ana@example.test"},
		Activation: Activation{Code: "c1", URL: "http://other.test/"},
	})
	require.NoError(t, err)
	assert.Equal(t, UserActivation, msg.Kind)
	assert.Equal(t, "Activate Your Account", msg.Subject)
	assert.Equal(t, "activate c1 at http://other.test/pages/activate-account?c=c1", msg.HTML)
}

func TestService_ComposeUsesSealer(t *testing.T) {
	svc := newTestService(t, &recordingSender{}, func(c *ServiceConfig) { c.Sealer = upperSealer() })

	msg, err := svc.Compose(context.Background(), SendRequest{
		Kind:       UserActivation,
		To:         Mailbox{Address: "ana@example.test"},
		Activation: Activation{Code: "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "activate abc at https://app.hello.test/pages/activate-account?c=sealed%3AABC", msg.HTML)
}

func TestService_ComposeInvalidInput(t *testing.T) {
	svc := newTestService(t, &recordingSender{})
	ctx := context.Background()

	for name, req := range map[string]SendRequest{
		"empty recipient": {Kind: UserActivation, Activation: Activation{Code: "c"}},
		"bad recipient":   {Kind: UserActivation, To: Mailbox{Address: "not an address"}, Activation: Activation{Code: "c"}},
		"empty code":      {Kind: UserActivation, To: Mailbox{Address: "a@b.test"}},
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, req.Validate(), ErrInvalidInput)
			_, err := svc.Compose(ctx, req)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestService_MissingTemplateIsHardFailure(t *testing.T) {
	sender := &mockSender{}
	svc := newTestService(t, sender, func(c *ServiceConfig) {
		c.Templates = NewFSSource(fstest.MapFS{TemplateActivation: {Data: []byte("x")}})
	})

	res, err := svc.Send(context.Background(), SendRequest{
		Kind:       PasswordReset,
		To:         Mailbox{Address: "ana@example.test"},
		Activation: Activation{Code: "c"},
	})
	require.ErrorIs(t, err, ErrTemplateNotFound)
	require.NotNil(t, res)
	assert.ErrorIs(t, res.Err, ErrTemplateNotFound)
	assert.Empty(t, res.MessageID)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestService_SendSuccess(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(m *Message) bool {
		return m.Subject == SubjectActivation && m.To.Address == "ana@example.test"
	})).Return(nil).Once()

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	svc := newTestService(t, sender, func(c *ServiceConfig) {
		c.Metrics = metrics
		c.Logger = zap.New(core)
	})

	res, err := svc.Send(context.Background(), SendRequest{
		Kind:       UserActivation,
		To:         Mailbox{Address: "ana@example.test"},
		Activation: Activation{Code: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", res.MessageID)
	assert.Equal(t, UserActivation, res.Kind)
	assert.NoError(t, res.Err)
	sender.AssertExpectations(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sent.WithLabelValues("user_activation", "sent", "none")))

	entries := logs.FilterMessage("email sent").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "msg-1", entries[0].ContextMap()["message_id"])
	assert.NotContains(t, entries[0].ContextMap()["to"], "ana@")
}

func TestService_SendFailureIsObservable(t *testing.T) {
	cause := errors.New("535 5.7.8 Authentication credentials invalid")
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(cause)

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	svc := newTestService(t, sender, func(c *ServiceConfig) { c.Metrics = metrics })

	res, err := svc.Send(context.Background(), SendRequest{
		Kind:       PasswordReset,
		To:         Mailbox{Address: "ana@example.test"},
		Activation: Activation{Code: "c"},
	})
	require.ErrorIs(t, err, ErrSendFailed)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "msg-1", res.MessageID)
	assert.Equal(t, err, res.Err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sent.WithLabelValues("password_reset", "failed", "auth")))
}

func TestService_SendAsync(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(fmt.Errorf("dial tcp: connection refused"))
	svc := newTestService(t, sender)

	ch := svc.SendAsync(context.Background(), SendRequest{
		Kind:       PasswordReset,
		To:         Mailbox{Address: "ana@example.test"},
		Activation: Activation{Code: "c"},
	})

	select {
	case res, ok := <-ch:
		require.True(t, ok)
		assert.ErrorIs(t, res.Err, ErrSendFailed)
		assert.Equal(t, PasswordReset, res.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
	}
	_, ok := <-ch
	assert.False(t, ok, "channel closed after the result")
}

func TestService_ConcurrentKindsDoNotMix(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestService(t, sender)
	svc.newID = func() string { return "" }

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		kind := PasswordReset
		if i%2 == 1 {
			kind = UserActivation
		}
		wg.Add(1)
		go func(i int, kind Kind) {
			defer wg.Done()
			_, err := svc.Send(context.Background(), SendRequest{
				Kind:       kind,
				To:         Mailbox{Address: fmt.Sprintf("u%d@example.test", i)},
				Activation: Activation{Code: fmt.Sprintf("code-%d", i)},
			})
			assert.NoError(t, err)
		}(i, kind)
	}
	wg.Wait()

	require.Len(t, sender.msgs, 50)
	for _, m := range sender.msgs {
		want := Select(m.Kind)
		assert.Equal(t, want.Subject, m.Subject)
		assert.Contains(t, m.HTML, want.LinkPath)
	}
}
