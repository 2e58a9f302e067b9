package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/milad/meteretl/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublisher_Notify(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev notify.RunCompleted
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.RunID != "run-1" || ev.Status != notify.StatusSucceeded || ev.Rows["halfhourly_consumption"] != 48 {
			return fmt.Errorf("unexpected event: %+v", ev)
		}
		return nil
	})

	p := New(producer, "etl.runs", zaptest.NewLogger(t))
	err := p.Notify(context.Background(), notify.RunCompleted{
		RunID:         "run-1",
		Status:        notify.StatusSucceeded,
		ReferenceDate: "2021-01-01",
		StartedAt:     time.Date(2021, 1, 2, 8, 30, 0, 0, time.UTC),
		FinishedAt:    time.Date(2021, 1, 2, 8, 31, 0, 0, time.UTC),
		Sinks:         []string{"postgres"},
		Rows:          map[string]int{"halfhourly_consumption": 48},
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublisher_NotifyError(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := New(producer, "etl.runs", nil)
	err := p.Notify(context.Background(), notify.RunCompleted{RunID: "run-2", Status: notify.StatusFailed})
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers), "err=%v", err)
	require.NoError(t, p.Close())
}

func TestPublisher_CancelledContext(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(producer, "etl.runs", nil).Notify(ctx, notify.RunCompleted{RunID: "run-3"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, producer.Close())
}
