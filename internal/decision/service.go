package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// SnapshotSource supplies validated configuration snapshots.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*domain.ConfigSnapshot, error)
}

// ActivitySource derives account activity metrics for an applicant.
type ActivitySource interface {
	Metrics(ctx context.Context, a *domain.Applicant) (*domain.ActivityMetrics, error)
}

// Service evaluates stored applicants: it resolves the applicant, takes one
// configuration snapshot, runs the engine, then persists and publishes the
// result.
type Service struct {
	repo      domain.Repository
	snapshots SnapshotSource
	activity  ActivitySource
	engine    *Engine
	bus       domain.EventBus
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a decision service. bus may be nil.
func NewService(repo domain.Repository, snapshots SnapshotSource, activity ActivitySource, engine *Engine, bus domain.EventBus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		snapshots: snapshots,
		activity:  activity,
		engine:    engine,
		bus:       bus,
		logger:    logger.Named("decision"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs a full evaluation for the applicant identified by key: an
// applicant id, e-mail address or national id.
func (s *Service) Evaluate(ctx context.Context, applicantKey string) (*domain.Evaluation, error) {
	start := time.Now()
	ctx, span := s.engine.tracer.Start(ctx, "decision.service.evaluate")
	defer span.End()

	eval, err := s.evaluate(ctx, strings.TrimSpace(applicantKey), start)
	if err != nil {
		class := string(domain.ClassOf(err))
		if class == "" {
			class = "internal"
		}
		metrics.EvaluationErrors.WithLabelValues(class).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("evaluation failed",
			zap.String("applicant_key", applicantKey),
			zap.String("class", class),
			zap.Error(err),
		)
		return nil, err
	}
	return eval, nil
}

func (s *Service) evaluate(ctx context.Context, key string, start time.Time) (*domain.Evaluation, error) {
	if key == "" {
		return nil, domain.NewInputError(domain.CodeInvalidInput, "applicantKey is required")
	}

	applicant, err := s.repo.FindApplicant(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ApplicantNotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve applicant: %w", err)
	}

	var warnings []domain.Warning
	var activity *domain.ActivityMetrics
	if s.activity != nil {
		activity, err = s.activity.Metrics(ctx, applicant)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("activity metrics unavailable", zap.String("applicant_id", applicant.ID), zap.Error(err))
			warnings = append(warnings, domain.Warning{
				Stage:   domain.StageFraud,
				Message: "account activity unavailable: " + err.Error(),
			})
			activity = nil
		}
	}

	snapStart := time.Now()
	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	snapshotMs := time.Since(snapStart).Milliseconds()

	engineStart := time.Now()
	out, err := s.engine.Evaluate(ctx, Input{Profile: &applicant.Profile, Activity: activity, Snapshot: snap})
	if err != nil {
		return nil, err
	}
	engineMs := time.Since(engineStart).Milliseconds()

	report := out.Result.Report()
	eval := &domain.Evaluation{
		ID:          uuid.New().String(),
		ApplicantID: applicant.ID,
		Decision:    report.Decision,
		Outcome:     report.Outcome,
		Timestamp:   s.now(),
		Report:      report,
		Warnings:    append(warnings, out.Warnings...),
		Metadata: domain.EvaluationMetadata{
			SnapshotMs:     snapshotMs,
			EngineMs:       engineMs,
			ConfigVersions: snap.Versions,
			EngineVersion:  EngineVersion,
		},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		eval.Metadata.TraceID = sc.TraceID().String()
	}
	eval.Metadata.TotalMs = time.Since(start).Milliseconds()

	if err := s.repo.SaveEvaluation(ctx, eval); err != nil {
		return nil, fmt.Errorf("failed to save evaluation: %w", err)
	}

	s.record(eval, out, time.Since(start))
	s.publish(ctx, eval)

	s.logger.Info("evaluation complete",
		zap.String("evaluation_id", eval.ID),
		zap.String("applicant_id", eval.ApplicantID),
		zap.String("outcome", string(eval.Outcome)),
		zap.String("rating", string(report.RiskRating)),
		zap.Int("fraud_flags", len(report.FraudFlags)),
		zap.Int("warnings", len(eval.Warnings)),
		zap.Int64("total_ms", eval.Metadata.TotalMs),
	)
	return eval, nil
}

func (s *Service) record(eval *domain.Evaluation, out *Output, elapsed time.Duration) {
	outcome := string(eval.Outcome)
	metrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
	metrics.EvaluationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	for _, rule := range out.KnockoutViolations {
		metrics.KnockoutViolations.WithLabelValues(rule).Inc()
	}
	for _, f := range eval.Report.FraudFlags {
		metrics.FraudFlags.WithLabelValues(f.Code).Inc()
	}
	for _, w := range eval.Warnings {
		metrics.Warnings.WithLabelValues(w.Stage).Inc()
	}
}

// publish announces the decision on the bus. Failures are logged only: the
// evaluation is already stored.
func (s *Service) publish(ctx context.Context, eval *domain.Evaluation) {
	if s.bus == nil {
		return
	}
	topic := domain.TopicEvaluationCompleted
	if eval.Outcome == domain.OutcomeRejected {
		topic = domain.TopicEvaluationRejected
	}
	data, err := json.Marshal(eval.ToResponse())
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, topic, data); err != nil {
		s.logger.Warn("failed to publish evaluation", zap.String("evaluation_id", eval.ID), zap.Error(err))
	}
}
