// Package worker provides async evaluation processing over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// DefaultQueue is the queue group workers join on buses that support it.
const DefaultQueue = "kestrel-workers"

// Evaluator runs one evaluation. The decision service persists and
// publishes the result itself.
type Evaluator interface {
	Evaluate(ctx context.Context, applicantKey string) (*domain.Evaluation, error)
}

// Worker consumes evaluation requests from the EventBus.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator
	logger    *zap.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	stopped       bool
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Queue is the queue group name. Members of a group share the load.
	Queue string

	// Timeout bounds a single evaluation. Zero means 30 seconds.
	Timeout time.Duration
}

// RequestMessage is the payload of an evaluation request.
type RequestMessage struct {
	RequestID string `json:"requestId,omitempty"`
	domain.EvaluateRequest
}

// ReplyMessage answers a request sent with request-reply semantics.
type ReplyMessage struct {
	RequestID  string                     `json:"requestId,omitempty"`
	Evaluation *domain.EvaluationResponse `json:"evaluation,omitempty"`
	Error      *domain.Error              `json:"error,omitempty"`
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, evaluator Evaluator, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       b,
		evaluator: evaluator,
		logger:    logger.Named("worker"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to evaluation requests.
func (w *Worker) Start(cfg Config) error {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	handler := func(ctx context.Context, msg *domain.Message) error {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return nil
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		// Stop drains in-flight evaluations rather than aborting them
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
		defer cancel()
		return w.process(ctx, msg)
	}

	var (
		sub domain.Subscription
		err error
	)
	if qs, ok := w.bus.(bus.QueueSubscriber); ok {
		sub, err = qs.QueueSubscribe(w.ctx, domain.TopicEvaluationRequested, cfg.Queue, handler)
	} else {
		sub, err = w.bus.Subscribe(w.ctx, domain.TopicEvaluationRequested, handler)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicEvaluationRequested, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	w.logger.Info("worker started",
		zap.String("topic", domain.TopicEvaluationRequested),
		zap.String("queue", cfg.Queue),
	)
	return nil
}

// process evaluates one request message.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req RequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		metrics.WorkerMessages.WithLabelValues("malformed").Inc()
		w.logger.Error("failed to parse evaluation request",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		w.reply(ctx, msg, ReplyMessage{Error: domain.NewInputError(domain.CodeInvalidInput, "malformed request: %v", err)})
		return err
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	eval, err := w.evaluator.Evaluate(ctx, req.ApplicantKey)
	if err != nil {
		metrics.WorkerMessages.WithLabelValues("failed").Inc()
		w.reply(ctx, msg, ReplyMessage{RequestID: req.RequestID, Error: asDomainError(err)})
		return fmt.Errorf("evaluation of %q failed: %w", req.ApplicantKey, err)
	}

	metrics.WorkerMessages.WithLabelValues("evaluated").Inc()
	w.reply(ctx, msg, ReplyMessage{RequestID: req.RequestID, Evaluation: eval.ToResponse()})

	w.logger.Info("evaluation request processed",
		zap.String("request_id", req.RequestID),
		zap.String("evaluation_id", eval.ID),
		zap.String("outcome", string(eval.Outcome)),
		zap.String("trace_id", msg.Metadata["traceId"]),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

func (w *Worker) reply(ctx context.Context, msg *domain.Message, r ReplyMessage) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := bus.Reply(ctx, w.bus, msg, data); err != nil {
		w.logger.Warn("failed to send reply", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// asDomainError hides internal error detail from bus clients.
func asDomainError(err error) *domain.Error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return &domain.Error{Code: "INTERNAL", Message: "evaluation failed"}
}

// Stop unsubscribes and waits for in-flight evaluations to finish and
// reply.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.stopped = true
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				zap.String("topic", sub.Topic()),
				zap.Error(err),
			)
		}
	}

	w.wg.Wait()
	w.cancel()
	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
