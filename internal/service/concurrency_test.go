package service

import (
	"context"
	"testing"
	"time"

	"chatsend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const blockedTimeout = 2 * time.Second

func TestEnqueue_StoresWhileSweepIsBlocked(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)
	seedMessage(t, store, storedMessage("OLD", models.StatusError, 1))

	started := make(chan struct{})
	unblock := make(chan struct{})
	remote.On("SendMessage", mock.Anything, mock.Anything, idIs("OLD")).
		Run(func(args mock.Arguments) {
			close(started)
			<-unblock
		}).
		Return(acked(), nil).Once()
	remote.On("SendMessage", mock.Anything, mock.Anything, idIs("MSG001")).
		Return(acked(), nil).Once()

	done := make(chan SweepReport, 1)
	go func() {
		done <- courier.ResendFailedMessages(context.Background(), testSession)
	}()

	select {
	case <-started:
	case <-time.After(blockedTimeout):
		t.Fatal("sweep never reached the network")
	}

	enqueued := make(chan string, 1)
	go func() {
		enqueued <- courier.Enqueue(context.Background(), testSession, "R", "hi", "", testSession.User, false)
	}()

	var id string
	select {
	case id = <-enqueued:
	case <-time.After(blockedTimeout):
		close(unblock)
		t.Fatal("new message was not stored while the sweep was blocked")
	}
	require.Equal(t, "MSG001", id)
	assert.Equal(t, models.StatusTemp, messageStatus(t, store, id))

	close(unblock)
	report := <-done
	courier.Wait()

	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, models.StatusSent, messageStatus(t, store, "OLD"))
	assert.Equal(t, models.StatusSent, messageStatus(t, store, id))
	remote.AssertExpectations(t)
}

func TestEnqueue_ReturnsBeforeTransmit(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)

	unblock := make(chan struct{})
	remote.On("SendMessage", mock.Anything, mock.Anything, idIs("MSG001")).
		Run(func(args mock.Arguments) { <-unblock }).
		Return(acked(), nil).Once()

	id := courier.Enqueue(context.Background(), testSession, "R", "hi", "", testSession.User, false)
	require.Equal(t, "MSG001", id)
	assert.Equal(t, models.StatusTemp, messageStatus(t, store, id))

	close(unblock)
	courier.Wait()
	assert.Equal(t, models.StatusSent, messageStatus(t, store, id))
	remote.AssertExpectations(t)
}

func TestEnqueue_NotStoredReturnsEmptyID(t *testing.T) {
	store := &flakyStore{Store: newTestStore(t), failBatch: func(int, []models.Mutation) bool { return true }}
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)

	id := courier.Enqueue(context.Background(), testSession, "R", "hi", "", testSession.User, false)
	courier.Wait()

	assert.Empty(t, id)
	remote.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestResendFailedMessages_SkipsInFlightRecords(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)
	seedMessage(t, store, storedMessage("A", models.StatusError, 1))

	require.True(t, courier.claim("A"))
	report := courier.ResendFailedMessages(context.Background(), testSession)
	assert.Equal(t, 0, report.Marked)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, models.StatusError, messageStatus(t, store, "A"))
	remote.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)

	courier.release("A")
	remote.On("SendMessage", mock.Anything, mock.Anything, idIs("A")).Return(acked(), nil).Once()
	report = courier.ResendFailedMessages(context.Background(), testSession)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, models.StatusSent, messageStatus(t, store, "A"))
	remote.AssertExpectations(t)
}

func TestResendMessage_SkipsInFlightRecord(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)
	m := storedMessage("A", models.StatusError, 1)
	seedMessage(t, store, m)

	require.True(t, courier.claim("A"))
	courier.ResendMessage(context.Background(), testSession, FromMessage(m), "", false)

	assert.Equal(t, models.StatusError, messageStatus(t, store, "A"))
	remote.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)

	courier.release("A")
	assert.True(t, courier.claim("A"))
}
