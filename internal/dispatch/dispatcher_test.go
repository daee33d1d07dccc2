package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/coachnotify/internal/model"
)

// --- モック ---

type mockResolver struct {
	tokensFn func(ctx context.Context, userID string) ([]string, error)
}

func (m *mockResolver) Tokens(ctx context.Context, userID string) ([]string, error) {
	return m.tokensFn(ctx, userID)
}

// memoryStore はユーザーのトークンをメモリ上に保持するTokenStore。
type memoryStore struct {
	mu          sync.Mutex
	users       map[string]*model.User
	findErr     error
	updateCalls int
	updated     [][]string
	// beforeFind はFindByIDの直前に呼ばれる。並行書き込みの再現に使う。
	beforeFind func()
}

func newMemoryStore(users ...*model.User) *memoryStore {
	s := &memoryStore{users: map[string]*model.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memoryStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	if s.beforeFind != nil {
		s.beforeFind()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	cp.FCMTokens = slices.Clone(u.FCMTokens)
	return &cp, nil
}

func (s *memoryStore) UpdateTokens(ctx context.Context, id string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	s.updated = append(s.updated, slices.Clone(tokens))
	if u, ok := s.users[id]; ok {
		u.FCMTokens = slices.Clone(tokens)
	}
	return nil
}

func (s *memoryStore) addToken(id, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].FCMTokens = append(s.users[id].FCMTokens, token)
}

func (s *memoryStore) tokens(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users[id].FCMTokens)
}

type mockSender struct {
	mu      sync.Mutex
	failOn  map[string]bool
	panicOn map[string]bool
	sent    []string
}

func (m *mockSender) Send(ctx context.Context, token string, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, token)
	if m.panicOn[token] {
		panic("sender exploded")
	}
	if m.failOn[token] {
		return errors.New("registration-token-not-registered")
	}
	return nil
}

type mockMetrics struct {
	mu     sync.Mutex
	sent   int
	failed int
	pruned int
}

func (m *mockMetrics) RecordNotificationSent(kind string) {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}
func (m *mockMetrics) RecordSendFailure(kind string) {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}
func (m *mockMetrics) RecordTokensPruned(count int) {
	m.mu.Lock()
	m.pruned += count
	m.mu.Unlock()
}
func (m *mockMetrics) RecordWebhookEvent(eventType, outcome string) {}
func (m *mockMetrics) RecordReminderMatches(job string, count int)  {}
func (m *mockMetrics) RecordHandlerFailure(handler string)          {}
func (m *mockMetrics) RecordChangeLag(lag time.Duration)            {}
func (m *mockMetrics) RecordHTTPStatus(statusCode int)              {}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func storeResolver(s *memoryStore) *mockResolver {
	return &mockResolver{tokensFn: func(ctx context.Context, userID string) ([]string, error) {
		u, err := s.FindByID(ctx, userID)
		if err != nil || u == nil {
			return []string{}, err
		}
		return u.FCMTokens, nil
	}}
}

var testNotification = model.Notification{
	Title: "Workout Reminder",
	Body:  "Don't forget today's workout: Leg Day",
	Data:  map[string]any{"type": "workout_reminder"},
}

// --- テスト ---

func TestDispatch_NoTokens_NoSendNoWrite(t *testing.T) {
	store := newMemoryStore(&model.User{ID: "u1"})
	sender := &mockSender{}
	d := NewDispatcher(storeResolver(store), store, sender, newTestLogger(&bytes.Buffer{}), nil)

	d.Dispatch(context.Background(), "u1", testNotification)

	if len(sender.sent) != 0 {
		t.Errorf("送信数 = %d, want 0", len(sender.sent))
	}
	if store.updateCalls != 0 {
		t.Errorf("書き込み回数 = %d, want 0", store.updateCalls)
	}
}

func TestDispatch_AllSucceed_NoWrite(t *testing.T) {
	store := newMemoryStore(&model.User{ID: "u1", FCMTokens: []string{"a", "b", "c"}})
	sender := &mockSender{}
	mc := &mockMetrics{}
	d := NewDispatcher(storeResolver(store), store, sender, newTestLogger(&bytes.Buffer{}), mc)

	d.Dispatch(context.Background(), "u1", testNotification)

	if len(sender.sent) != 3 {
		t.Errorf("送信数 = %d, want 3", len(sender.sent))
	}
	if store.updateCalls != 0 {
		t.Errorf("全件成功時は書き込まないべき: %d", store.updateCalls)
	}
	if mc.sent != 3 || mc.failed != 0 {
		t.Errorf("metrics sent=%d failed=%d, want 3/0", mc.sent, mc.failed)
	}
}

func TestDispatch_SubsetFails_PrunesOnlyFailed(t *testing.T) {
	store := newMemoryStore(&model.User{ID: "u1", FCMTokens: []string{"a", "b", "c"}})
	sender := &mockSender{failOn: map[string]bool{"b": true}}
	mc := &mockMetrics{}
	d := NewDispatcher(storeResolver(store), store, sender, newTestLogger(&bytes.Buffer{}), mc)

	d.Dispatch(context.Background(), "u1", testNotification)

	if store.updateCalls != 1 {
		t.Fatalf("書き込み回数 = %d, want 1", store.updateCalls)
	}
	if got := store.tokens("u1"); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("tokens = %v, want [a c]", got)
	}
	if mc.pruned != 1 || mc.failed != 1 || mc.sent != 2 {
		t.Errorf("metrics sent=%d failed=%d pruned=%d, want 2/1/1", mc.sent, mc.failed, mc.pruned)
	}
}

func TestDispatch_SenderPanic_TreatedAsFailure(t *testing.T) {
	store := newMemoryStore(&model.User{ID: "u1", FCMTokens: []string{"a", "b", "c"}})
	sender := &mockSender{panicOn: map[string]bool{"b": true}}
	mc := &mockMetrics{}
	var buf bytes.Buffer
	d := NewDispatcher(storeResolver(store), store, sender, newTestLogger(&buf), mc)

	d.Dispatch(context.Background(), "u1", testNotification)

	if got := store.tokens("u1"); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("tokens = %v, want [a c]", got)
	}
	if mc.sent != 2 || mc.failed != 1 || mc.pruned != 1 {
		t.Errorf("metrics sent=%d failed=%d pruned=%d, want 2/1/1", mc.sent, mc.failed, mc.pruned)
	}
	if !strings.Contains(buf.String(), "sender panicked") {
		t.Errorf("panic should be logged, got: %s", buf.String())
	}
}

func TestDispatch_AllFail_EmptiesTokens(t *testing.T) {
	store := newMemoryStore(&model.User{ID: "u1", FCMTokens: []string{"a", "b"}})
	sender := &mockSender{failOn: map[string]bool{"a": true, "b": true}}
	d := NewDispatcher(storeResolver(store), store, sender, newTestLogger(&bytes.Buffer{}), nil)

	d.Dispatch(context.Background(), "u1", testNotification)

	if got := store.tokens("u1"); len(got) != 0 {
		t.Errorf("tokens = %v, want empty", got)
	}
}

func TestDispatch_UserVanished_SkipsWrite(t *testing.T) {
	store := newMemoryStore()
	resolver := &mockResolver{tokensFn: func(ctx context.Context, userID string) ([]string, error) {
		return []string{"a"}, nil
	}}
	sender := &mockSender{failOn: map[string]bool{"a": true}}
	d := NewDispatcher(resolver, store, sender, newTestLogger(&bytes.Buffer{}), nil)

	d.Dispatch(context.Background(), "gone", testNotification)

	if store.updateCalls != 0 {
		t.Errorf("削除済みユーザーには書き込まないべき: %d", store.updateCalls)
	}
}

// 送信中に追加されたトークンは整理で失われない。
func TestDispatch_ConcurrentlyAddedTokenPreserved(t *testing.T) {
	store := newMemoryStore(&model.User{ID: "u1", FCMTokens: []string{"a", "b"}})
	sender := &mockSender{failOn: map[string]bool{"a": true}}
	d := NewDispatcher(storeResolver(store), store, sender, newTestLogger(&bytes.Buffer{}), nil)

	resolved := false
	store.beforeFind = func() {
		// 1回目はトークン解決、2回目が整理前の再取得
		if !resolved {
			resolved = true
			return
		}
		store.addToken("u1", "new-device")
	}

	d.Dispatch(context.Background(), "u1", testNotification)

	if got := store.tokens("u1"); !slices.Equal(got, []string{"b", "new-device"}) {
		t.Errorf("tokens = %v, want [b new-device]", got)
	}
}

// 同一ユーザーへの並行Dispatchは後勝ちになり得る。
// 両方の整理結果がどちらかの書き込みで上書きされることを許容する。
func TestDispatch_ConcurrentDispatchesLastWriterWins(t *testing.T) {
	store := newMemoryStore(&model.User{ID: "u1", FCMTokens: []string{"a", "b", "c"}})
	sender := &mockSender{failOn: map[string]bool{"a": true, "b": true}}
	d := NewDispatcher(storeResolver(store), store, sender, newTestLogger(&bytes.Buffer{}), nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), "u1", testNotification)
		}()
	}
	wg.Wait()

	got := store.tokens("u1")
	if !slices.Contains(got, "c") {
		t.Errorf("成功したトークンは残るべき: %v", got)
	}
	if slices.Contains(got, "a") || slices.Contains(got, "b") {
		t.Errorf("失敗したトークンは削除されるべき: %v", got)
	}
	if store.updateCalls > 2 {
		t.Errorf("Dispatchごとの書き込みは最大1回: %d", store.updateCalls)
	}
}

func TestDispatch_ResolveError_Logged(t *testing.T) {
	var buf bytes.Buffer
	resolver := &mockResolver{tokensFn: func(ctx context.Context, userID string) ([]string, error) {
		return nil, errors.New("db down")
	}}
	sender := &mockSender{}
	d := NewDispatcher(resolver, newMemoryStore(), sender, newTestLogger(&buf), nil)

	d.Dispatch(context.Background(), "u1", testNotification)

	if len(sender.sent) != 0 {
		t.Errorf("送信数 = %d, want 0", len(sender.sent))
	}
	if !strings.Contains(buf.String(), "db down") {
		t.Errorf("解決エラーがログに出力されていません: %s", buf.String())
	}
}

func TestDispatch_RefetchError_NoWrite(t *testing.T) {
	store := newMemoryStore(&model.User{ID: "u1", FCMTokens: []string{"a"}})
	resolver := &mockResolver{tokensFn: func(ctx context.Context, userID string) ([]string, error) {
		return []string{"a"}, nil
	}}
	store.findErr = errors.New("read timeout")
	sender := &mockSender{failOn: map[string]bool{"a": true}}
	d := NewDispatcher(resolver, store, sender, newTestLogger(&bytes.Buffer{}), nil)

	d.Dispatch(context.Background(), "u1", testNotification)

	if store.updateCalls != 0 {
		t.Errorf("再取得失敗時は書き込まないべき: %d", store.updateCalls)
	}
}
