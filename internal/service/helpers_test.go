package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chatsend/internal/database"
	"chatsend/internal/ident"
	"chatsend/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSession = models.Session{
	Server:    "http://chat.local",
	UserID:    "u1",
	AuthToken: "token",
	User:      models.UserRef{ID: "u1", Username: "alice", Name: "Alice"},
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(models.DatabaseConfig{Path: filepath.Join(t.TempDir(), "outbox.db")}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ms(n int64) time.Time {
	return time.UnixMilli(n).UTC()
}

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) SendMessage(ctx context.Context, session models.Session, msg *models.OutgoingMessage) (*models.SendResult, error) {
	args := m.Called(ctx, session, msg)
	var result *models.SendResult
	if r := args.Get(0); r != nil {
		result = r.(*models.SendResult)
	}
	return result, args.Error(1)
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) UploadFile(ctx context.Context, session models.Session, roomID string, upload *models.Upload, tmid string, isRetry bool) error {
	args := m.Called(ctx, session, roomID, upload, tmid, isRetry)
	return args.Error(0)
}

// plainEncryptor copies the payload through, or fails when err is set.
type plainEncryptor struct {
	err error
}

func (e plainEncryptor) EncryptMessage(_ context.Context, msg *models.OutgoingMessage) (*models.OutgoingMessage, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := *msg
	return &out, nil
}

// flakyStore fails Batch calls for which failBatch returns true. Batches are
// numbered from 1.
type flakyStore struct {
	Store
	mu        sync.Mutex
	batches   int
	failBatch func(n int, mutations []models.Mutation) bool
}

func (s *flakyStore) Batch(ctx context.Context, mutations ...models.Mutation) error {
	s.mu.Lock()
	s.batches++
	n := s.batches
	s.mu.Unlock()
	if s.failBatch != nil && s.failBatch(n, mutations) {
		return fmt.Errorf("disk I/O error")
	}
	return s.Store.Batch(ctx, mutations...)
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

func newTestCourier(store Store, remote RemoteService, transport FileTransport) (*Courier, *ident.FixedClock) {
	clock := &ident.FixedClock{T: ms(1_700_000_000_000)}
	c := NewCourier(store, plainEncryptor{}, remote, transport, quietLogger(),
		WithClock(clock),
		WithIDGenerator(sequentialIDs("MSG")),
	)
	return c, clock
}

func acked() *models.SendResult {
	return &models.SendResult{Success: true}
}

func idIs(id string) interface{} {
	return mock.MatchedBy(func(msg *models.OutgoingMessage) bool { return msg.ID == id })
}

func seedMessage(t *testing.T, store *database.Database, m *models.Message) {
	t.Helper()
	require.NoError(t, store.Batch(context.Background(), models.CreateMessage(m)))
}

func seedThreadMessage(t *testing.T, store *database.Database, tm *models.ThreadMessage) {
	t.Helper()
	require.NoError(t, store.Batch(context.Background(), models.CreateThreadMessage(tm)))
}

func seedUpload(t *testing.T, store *database.Database, u *models.Upload) {
	t.Helper()
	require.NoError(t, store.Batch(context.Background(), models.CreateUpload(u)))
}

func messageStatus(t *testing.T, store Store, id string) models.MessageStatus {
	t.Helper()
	m, err := store.FindMessage(context.Background(), id)
	require.NoError(t, err)
	return m.Status
}

func threadMessageStatus(t *testing.T, store Store, id string) models.MessageStatus {
	t.Helper()
	tm, err := store.FindThreadMessage(context.Background(), id)
	require.NoError(t, err)
	return tm.Status
}

func storedMessage(id string, status models.MessageStatus, ts int64) *models.Message {
	return &models.Message{
		ID:        id,
		RoomID:    "GENERAL",
		Msg:       "body of " + id,
		User:      models.UserRef{ID: "u1", Username: "alice"},
		TS:        ms(ts),
		UpdatedAt: ms(ts),
		Status:    status,
	}
}
