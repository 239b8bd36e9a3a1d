package service

import (
	"context"
	"testing"

	"chatsend/internal/errors"
	"chatsend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResendMessage_ManualMarksTempFirst(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)
	m := storedMessage("A", models.StatusError, 1)
	seedMessage(t, store, m)

	remote.On("SendMessage", mock.Anything, mock.Anything, idIs("A")).
		Run(func(args mock.Arguments) {
			assert.Equal(t, models.StatusTemp, messageStatus(t, store, "A"))
		}).
		Return(acked(), nil).Once()

	courier.ResendMessage(context.Background(), testSession, FromMessage(m), "", false)

	assert.Equal(t, models.StatusSent, messageStatus(t, store, "A"))
	remote.AssertExpectations(t)
}

func TestResendMessage_AutoLeavesStatusAlone(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)
	m := storedMessage("A", models.StatusError, 1)
	seedMessage(t, store, m)

	remote.On("SendMessage", mock.Anything, mock.Anything, idIs("A")).
		Run(func(args mock.Arguments) {
			assert.Equal(t, models.StatusError, messageStatus(t, store, "A"))
		}).
		Return(nil, assert.AnError).Once()

	courier.ResendMessage(context.Background(), testSession, FromMessage(m), "", true)

	assert.Equal(t, models.StatusError, messageStatus(t, store, "A"))
	remote.AssertExpectations(t)
}

func TestResendMessage_ThreadReplyMarksThreadCollection(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)
	tm := &models.ThreadMessage{ID: "R", RoomID: "GENERAL", ThreadID: "P", Msg: "reply", TS: ms(5), UpdatedAt: ms(5), Status: models.StatusError}
	seedThreadMessage(t, store, tm)

	remote.On("SendMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(msg *models.OutgoingMessage) bool {
		return msg.ID == "R" && msg.ThreadID == "P" && !msg.ThreadShow
	})).
		Run(func(args mock.Arguments) {
			assert.Equal(t, models.StatusTemp, threadMessageStatus(t, store, "R"))
		}).
		Return(acked(), nil).Once()

	courier.ResendMessage(context.Background(), testSession, FromThreadMessage(tm), tm.ThreadID, false)

	assert.Equal(t, models.StatusSent, threadMessageStatus(t, store, "R"))
	remote.AssertExpectations(t)
}

func TestResendMessage_EncryptionFailureLeavesRecord(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier := NewCourier(store, plainEncryptor{err: assert.AnError}, remote, nil, quietLogger())
	m := storedMessage("A", models.StatusError, 1)
	seedMessage(t, store, m)

	courier.ResendMessage(context.Background(), testSession, FromMessage(m), "", true)

	assert.Equal(t, models.StatusError, messageStatus(t, store, "A"))
	remote.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestResendByID(t *testing.T) {
	store := newTestStore(t)
	remote := &mockRemote{}
	courier, _ := newTestCourier(store, remote, nil)
	seedMessage(t, store, storedMessage("A", models.StatusError, 1))
	seedThreadMessage(t, store, &models.ThreadMessage{ID: "R", RoomID: "GENERAL", ThreadID: "P", Msg: "reply", TS: ms(2), UpdatedAt: ms(2), Status: models.StatusError})

	remote.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(acked(), nil)

	t.Run("message", func(t *testing.T) {
		require.NoError(t, courier.ResendByID(context.Background(), testSession, "A"))
		assert.Equal(t, models.StatusSent, messageStatus(t, store, "A"))
	})

	t.Run("thread message", func(t *testing.T) {
		require.NoError(t, courier.ResendByID(context.Background(), testSession, "R"))
		assert.Equal(t, models.StatusSent, threadMessageStatus(t, store, "R"))
	})

	t.Run("unknown", func(t *testing.T) {
		err := courier.ResendByID(context.Background(), testSession, "nope")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	})
}
