// Package decision runs the credit decision pipeline and hosts it as a
// service.
package decision

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// EngineVersion is recorded on every evaluation.
const EngineVersion = "1.0.0"

// RequiredFields are the applicant attributes an evaluation cannot run
// without.
var RequiredFields = requiredFields()

func requiredFields() []string {
	seen := map[string]bool{}
	var out []string
	for _, group := range [][]string{rules.KnockoutFields, rules.ScoringFields, {domain.FieldDBRObligations}} {
		for _, f := range group {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Policy domain.DecisionPolicy
	Logger *zap.Logger

	// Sequential runs the independent stages one after another instead of
	// concurrently. The result is the same either way.
	Sequential bool
}

// Engine evaluates one applicant against one configuration snapshot. It
// holds no per-run state and is safe for concurrent use.
type Engine struct {
	policy     domain.DecisionPolicy
	fraud      *rules.FraudDetector
	tracer     trace.Tracer
	logger     *zap.Logger
	sequential bool
}

// Input is everything one evaluation reads.
type Input struct {
	Profile  *domain.ApplicantProfile
	Activity *domain.ActivityMetrics // nil when no account activity is known
	Snapshot *domain.ConfigSnapshot
}

// Output is the engine's answer.
type Output struct {
	Result   domain.Result
	Warnings []domain.Warning

	// KnockoutViolations names the knockout checks that failed.
	KnockoutViolations []string
}

// NewEngine creates an engine and compiles the fraud heuristics.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Policy == (domain.DecisionPolicy{}) {
		opts.Policy = domain.DefaultDecisionPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	fraud, err := rules.NewFraudDetector(rules.Heuristics()...)
	if err != nil {
		return nil, fmt.Errorf("failed to build fraud detector: %w", err)
	}

	return &Engine{
		policy:     opts.Policy,
		fraud:      fraud,
		tracer:     otel.Tracer("kestrel/decision"),
		logger:     opts.Logger.Named("engine"),
		sequential: opts.Sequential,
	}, nil
}

// Policy returns the policies the engine applies.
func (e *Engine) Policy() domain.DecisionPolicy {
	return e.policy
}

// Evaluate runs the pipeline: knockout, optionally a blocking DBR check,
// scoring, rating, then DBR, fraud, offer and insights side by side.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Output, error) {
	if in.Profile == nil {
		return nil, domain.NewInputError(domain.CodeInvalidInput, "applicant profile is required")
	}
	if in.Snapshot == nil {
		return nil, domain.NewConfigError(domain.CodeMissingConfiguration, "configuration snapshot is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "decision.evaluate")
	defer span.End()

	out, err := e.evaluate(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("decision.outcome", string(out.Result.Outcome())))
	return out, nil
}

func (e *Engine) evaluate(ctx context.Context, in Input) (*Output, error) {
	p, snap := in.Profile, in.Snapshot
	out := &Output{}

	if missing := p.Missing(RequiredFields...); len(missing) > 0 {
		return nil, domain.MissingFieldError(missing...)
	}

	var knockout domain.KnockoutResult
	err := e.stage(ctx, domain.StageKnockout, func(context.Context) error {
		var err error
		knockout, out.KnockoutViolations, err = rules.CheckKnockout(p, &snap.Knockout)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !knockout.Passed {
		out.Result = &domain.Rejected{Knockout: knockout, RejectedBy: domain.StageKnockout}
		return out, nil
	}

	if e.policy.DBR == domain.DBRBlocking {
		var dbr domain.DBRResult
		err := e.stage(ctx, domain.StageDBR, func(context.Context) error {
			var err error
			dbr, err = rules.CheckDBR(p, &snap.DBR)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !dbr.Passed {
			out.KnockoutViolations = []string{"maximumDBRPercentage"}
			out.Result = &domain.Rejected{
				Knockout:   domain.KnockoutResult{Passed: false, Details: []string{rules.MsgDBRAboveMaximum}},
				RejectedBy: domain.StageDBR,
				DBR:        &dbr,
			}
			return out, nil
		}
	}

	var score domain.ScoreResult
	err = e.stage(ctx, domain.StageScoring, func(context.Context) error {
		var (
			warnings []domain.Warning
			err      error
		)
		score, warnings, err = rules.Score(p, &snap.Scoring, e.policy)
		out.Warnings = append(out.Warnings, warnings...)
		return err
	})
	if err != nil {
		return nil, err
	}

	var rating domain.Rating
	err = e.stage(ctx, domain.StageRating, func(context.Context) error {
		var err error
		rating, err = rules.Rate(score.NormalizedScore, &snap.RiskRatings)
		return err
	})
	if err != nil {
		return nil, err
	}

	completed := &domain.Completed{
		Knockout:   knockout,
		Score:      score,
		RiskRating: rating,
	}
	var fraudWarnings, insightWarnings []domain.Warning

	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{domain.StageDBR, func(context.Context) error {
			var err error
			completed.DBR, err = rules.CheckDBR(p, &snap.DBR)
			return err
		}},
		{domain.StageFraud, func(context.Context) error {
			completed.FraudFlags, fraudWarnings = e.fraud.Detect(in.Activity, &snap.Fraud)
			return nil
		}},
		{domain.StageOffer, func(context.Context) error {
			var err error
			completed.LoanOffer, err = rules.Offer(rating, score.NormalizedScore, &snap.LoanOffers, &snap.RiskRatings, e.policy.Offer)
			return err
		}},
		{domain.StageInsights, func(context.Context) error {
			completed.Insights, insightWarnings = rules.GenerateInsights(p, &snap.Insights)
			return nil
		}},
	}

	if e.sequential {
		for _, s := range stages {
			if err := e.stage(ctx, s.name, s.run); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range stages {
			g.Go(func() error { return e.stage(gctx, s.name, s.run) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	// fixed order keeps warnings identical across runs
	out.Warnings = append(out.Warnings, fraudWarnings...)
	out.Warnings = append(out.Warnings, insightWarnings...)
	out.Result = completed
	return out, nil
}

// stage runs fn inside its own span.
func (e *Engine) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "decision."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("stage failed", zap.String("stage", name), zap.Error(err))
		return err
	}
	return nil
}
