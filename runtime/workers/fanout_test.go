package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/observability"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_DeliversToEveryTarget(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sinkA := mocks.NewMockEventSink(ctrl)
	sinkB := mocks.NewMockEventSink(ctrl)

	done := make(chan struct{})
	count := 0
	deliver := func(ctx context.Context, e event.DomainEvent) error {
		count++
		if count == 2 {
			close(done)
		}
		return nil
	}
	sinkA.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(deliver).Times(1)
	sinkB.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(deliver).Times(1)

	queue := make(chan contract.TargetedEvent, 1)
	worker := NewEventFanout(log, queue, 10*time.Second, observability.NewStats(log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	queue <- contract.TargetedEvent{
		Targets: []contract.EventSink{sinkA, sinkB},
		Event:   event.TypingSnapshot{RoomID: "general"},
	}

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		req.Fail("Goroutine did not terminated at time")
	}
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	slowSink := mocks.NewMockEventSink(ctrl)
	delivered := make(chan error, 1)

	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, e event.DomainEvent) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			delivered <- ctx.Err()
			return ctx.Err()
		}).
		Times(1)

	queue := make(chan contract.TargetedEvent, 1)
	stats := observability.NewStats(log)
	worker := NewEventFanout(log, queue, 20*time.Millisecond, stats)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	queue <- contract.TargetedEvent{
		Targets: []contract.EventSink{slowSink},
		Event:   event.TypingSnapshot{RoomID: "general"},
	}

	select {
	case err := <-delivered:
		req.ErrorIs(err, context.DeadlineExceeded)
	case <-time.After(1 * time.Second):
		req.Fail("Sink was never cancelled")
	}

	// The drop must be visible in the counters
	req.Eventually(func() bool {
		return stats.Latest().DeliveriesDropped == 1
	}, time.Second, 10*time.Millisecond)
}
