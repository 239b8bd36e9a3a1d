package service

import (
	"context"
	"sync"

	"chatsend/internal/errors"
	"chatsend/internal/ident"
	"chatsend/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is the local store contract the outbox needs. Lookups return an
// error wrapping models.ErrNotFound when the record is absent.
type Store interface {
	FindMessage(ctx context.Context, id string) (*models.Message, error)
	FindThreadMessage(ctx context.Context, id string) (*models.ThreadMessage, error)
	FindThread(ctx context.Context, id string) (*models.Thread, error)
	FindSubscription(ctx context.Context, id string) (*models.Subscription, error)
	PendingMessages(ctx context.Context) ([]*models.Message, error)
	PendingThreadMessages(ctx context.Context) ([]*models.ThreadMessage, error)
	FailedUploads(ctx context.Context) ([]*models.Upload, error)
	Batch(ctx context.Context, mutations ...models.Mutation) error
}

// Encryptor prepares the wire payload of an outgoing message.
type Encryptor interface {
	EncryptMessage(ctx context.Context, msg *models.OutgoingMessage) (*models.OutgoingMessage, error)
}

// RemoteService delivers a prepared message to the chat server.
type RemoteService interface {
	SendMessage(ctx context.Context, session models.Session, msg *models.OutgoingMessage) (*models.SendResult, error)
}

// FileTransport delivers a file upload to the chat server.
type FileTransport interface {
	UploadFile(ctx context.Context, session models.Session, roomID string, upload *models.Upload, tmid string, isRetry bool) error
}

// Courier owns every outgoing message of the process. Local writes and
// network calls are serialised separately: a message is always committed
// locally without waiting for the network, while deliveries go out one at a
// time through a single logical sender.
type Courier struct {
	store     Store
	encryptor Encryptor
	remote    RemoteService
	uploads   *UploadSender
	clock     ident.Clock
	newID     func() string
	logger    *logrus.Logger
	errLog    *errors.Logger

	// writeMu guards thread bookkeeping, sweep marks and inflight. It is
	// never held across a network call.
	writeMu  sync.Mutex
	inflight map[string]struct{}

	// sendMu serialises the network phase.
	sendMu sync.Mutex

	// background counts transmissions started by Enqueue.
	background sync.WaitGroup
}

type Option func(*Courier)

// WithClock replaces the wall clock used to timestamp new records.
func WithClock(clock ident.Clock) Option {
	return func(c *Courier) { c.clock = clock }
}

// WithIDGenerator replaces the generator of new message and upload ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Courier) { c.newID = fn }
}

func NewCourier(store Store, encryptor Encryptor, remote RemoteService, transport FileTransport, logger *logrus.Logger, opts ...Option) *Courier {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Courier{
		store:     store,
		encryptor: encryptor,
		remote:    remote,
		clock:     ident.SystemClock(),
		newID:     ident.NewMessageID,
		logger:    logger,
		errLog:    errors.WrapLogger(logger),
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.uploads = NewUploadSender(store, transport, logger)
	return c
}

// Uploads returns the sender used for file messages.
func (c *Courier) Uploads() *UploadSender {
	return c.uploads
}

// Wait blocks until every transmission started by Enqueue has finished.
func (c *Courier) Wait() {
	c.background.Wait()
}

// claimLocked marks id as being delivered. It reports false when another
// delivery of the same record is already under way. writeMu must be held.
func (c *Courier) claimLocked(id string) bool {
	if _, busy := c.inflight[id]; busy {
		return false
	}
	c.inflight[id] = struct{}{}
	return true
}

func (c *Courier) claim(id string) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.claimLocked(id)
}

func (c *Courier) release(id string) {
	c.writeMu.Lock()
	delete(c.inflight, id)
	c.writeMu.Unlock()
}

func (c *Courier) inFlightLocked(id string) bool {
	_, busy := c.inflight[id]
	return busy
}

func senderRef(user models.UserRef) models.UserRef {
	if user.ID == "" {
		user.ID = fallbackUserID
	}
	return user
}
