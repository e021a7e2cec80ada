package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func TestPublisher_PublishUsage(t *testing.T) {
	event := models.UsageEvent{
		EntryID:      "e-1",
		UserID:       "u-1",
		Endpoint:     "/api/edit",
		InputTokens:  12,
		OutputTokens: 8,
		Model:        "default",
		CreatedAt:    time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	t.Run("success", func(t *testing.T) {
		ch := new(MockChannel)
		ch.On("Publish", "editor.usage", "usage.recorded", false, false, mock.MatchedBy(func(p amqp.Publishing) bool {
			var got models.UsageEvent
			if err := json.Unmarshal(p.Body, &got); err != nil {
				return false
			}
			return p.ContentType == "application/json" &&
				p.DeliveryMode == amqp.Persistent &&
				p.MessageId == "e-1" &&
				got.InputTokens == 12 && got.OutputTokens == 8
		})).Return(nil)

		p := NewPublisher(ch, "editor.usage", "usage.recorded")
		require.NoError(t, p.PublishUsage(context.Background(), event))
		ch.AssertExpectations(t)
	})

	t.Run("broker error", func(t *testing.T) {
		ch := new(MockChannel)
		ch.On("Publish", mock.Anything, mock.Anything, false, false, mock.Anything).Return(errors.New("channel closed"))

		p := NewPublisher(ch, "editor.usage", "usage.recorded")
		err := p.PublishUsage(context.Background(), event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "channel closed")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ch := new(MockChannel)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := NewPublisher(ch, "editor.usage", "usage.recorded")
		require.ErrorIs(t, p.PublishUsage(ctx, event), context.Canceled)
		ch.AssertNotCalled(t, "Publish")
	})
}
