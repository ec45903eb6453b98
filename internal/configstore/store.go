// Package configstore serves versioned decision configuration to the engine.
//
// Every aggregate is stored as a new version on each write. Reads go through
// the cache with a bounded staleness and snapshots are validated as a whole
// before an evaluation may use them.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Options configures a Store.
type Options struct {
	// MaxStaleness bounds how long a cached aggregate may be served.
	MaxStaleness time.Duration

	// Policy is used to validate scoring rules and snapshots.
	Policy domain.DecisionPolicy

	Logger *zap.Logger
}

// Store reads and writes configuration aggregates.
type Store struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	ttl     time.Duration
	policy  domain.DecisionPolicy
	schemas map[domain.ConfigKind]*gojsonschema.Schema
	logger  *zap.Logger
}

// New creates a Store. cache and bus may be nil.
func New(repo domain.Repository, cache domain.Cache, bus domain.EventBus, opts Options) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	compiled, err := schemas()
	if err != nil {
		return nil, err
	}
	if opts.MaxStaleness <= 0 {
		opts.MaxStaleness = 30 * time.Second
	}
	if opts.Policy == (domain.DecisionPolicy{}) {
		opts.Policy = domain.DefaultDecisionPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		ttl:     opts.MaxStaleness,
		policy:  opts.Policy,
		schemas: compiled,
		logger:  opts.Logger.Named("configstore"),
	}, nil
}

func cacheKey(kind domain.ConfigKind) string {
	return "config:" + string(kind)
}

// Record returns the latest stored version of an aggregate.
func (s *Store) Record(ctx context.Context, kind domain.ConfigKind) (*domain.ConfigRecord, error) {
	if !kind.Valid() {
		return nil, domain.NewInputError(domain.CodeInvalidInput, "unknown configuration kind %q", kind)
	}

	if s.cache != nil {
		data, err := s.cache.Get(ctx, cacheKey(kind))
		if err != nil {
			s.logger.Warn("config cache read failed", zap.String("kind", string(kind)), zap.Error(err))
		} else if data != nil {
			var rec domain.ConfigRecord
			if err := json.Unmarshal(data, &rec); err == nil {
				return &rec, nil
			}
		}
	}

	rec, err := s.repo.GetConfig(ctx, kind)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewConfigError(domain.CodeMissingConfiguration, "%s is not configured", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind, err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := s.cache.Set(ctx, cacheKey(kind), data, s.ttl); err != nil {
				s.logger.Warn("config cache write failed", zap.String("kind", string(kind)), zap.Error(err))
			}
		}
	}
	return rec, nil
}

// load decodes the latest version of kind into a T.
func load[T any](ctx context.Context, s *Store, kind domain.ConfigKind) (*T, int, error) {
	rec, err := s.Record(ctx, kind)
	if err != nil {
		return nil, 0, err
	}
	v := new(T)
	if err := json.Unmarshal(rec.Payload, v); err != nil {
		return nil, 0, domain.NewConfigError(domain.CodeInvalidConfiguration, "%s version %d cannot be decoded: %v", kind, rec.Version, err)
	}
	return v, rec.Version, nil
}

// KnockoutRules returns the latest knockout rule set.
func (s *Store) KnockoutRules(ctx context.Context) (*domain.KnockoutRuleSet, error) {
	v, _, err := load[domain.KnockoutRuleSet](ctx, s, domain.ConfigKnockout)
	return v, err
}

// ScoringRules returns the latest scoring rule set.
func (s *Store) ScoringRules(ctx context.Context) (*domain.ScoringRuleSet, error) {
	v, _, err := load[domain.ScoringRuleSet](ctx, s, domain.ConfigScoring)
	return v, err
}

// RiskRatingThresholds returns the latest rating bands.
func (s *Store) RiskRatingThresholds(ctx context.Context) (*domain.RiskRatingThresholds, error) {
	v, _, err := load[domain.RiskRatingThresholds](ctx, s, domain.ConfigRiskRatings)
	return v, err
}

// LoanOfferRanges returns the latest loan offer ranges.
func (s *Store) LoanOfferRanges(ctx context.Context) (*domain.LoanOfferRanges, error) {
	v, _, err := load[domain.LoanOfferRanges](ctx, s, domain.ConfigLoanOffers)
	return v, err
}

// DBRSettings returns the latest DBR settings.
func (s *Store) DBRSettings(ctx context.Context) (*domain.DBRSettings, error) {
	v, _, err := load[domain.DBRSettings](ctx, s, domain.ConfigDBR)
	return v, err
}

// FraudDetectionRules returns the latest fraud thresholds.
func (s *Store) FraudDetectionRules(ctx context.Context) (*domain.FraudDetectionRuleSet, error) {
	v, _, err := load[domain.FraudDetectionRuleSet](ctx, s, domain.ConfigFraud)
	return v, err
}

// InsightMessages returns the latest insight templates.
func (s *Store) InsightMessages(ctx context.Context) (*domain.InsightMessages, error) {
	v, _, err := load[domain.InsightMessages](ctx, s, domain.ConfigInsights)
	return v, err
}

// Snapshot loads every aggregate and validates them together. The result
// is what one evaluation runs against.
func (s *Store) Snapshot(ctx context.Context) (*domain.ConfigSnapshot, error) {
	snap := &domain.ConfigSnapshot{Versions: make(map[domain.ConfigKind]int, len(domain.ConfigKinds))}
	versions := make([]int, len(domain.ConfigKinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range domain.ConfigKinds {
		g.Go(func() error {
			var (
				version int
				err     error
			)
			switch kind {
			case domain.ConfigKnockout:
				var v *domain.KnockoutRuleSet
				if v, version, err = load[domain.KnockoutRuleSet](gctx, s, kind); err == nil {
					snap.Knockout = *v
				}
			case domain.ConfigScoring:
				var v *domain.ScoringRuleSet
				if v, version, err = load[domain.ScoringRuleSet](gctx, s, kind); err == nil {
					snap.Scoring = *v
				}
			case domain.ConfigRiskRatings:
				var v *domain.RiskRatingThresholds
				if v, version, err = load[domain.RiskRatingThresholds](gctx, s, kind); err == nil {
					snap.RiskRatings = *v
				}
			case domain.ConfigLoanOffers:
				var v *domain.LoanOfferRanges
				if v, version, err = load[domain.LoanOfferRanges](gctx, s, kind); err == nil {
					snap.LoanOffers = *v
				}
			case domain.ConfigDBR:
				var v *domain.DBRSettings
				if v, version, err = load[domain.DBRSettings](gctx, s, kind); err == nil {
					snap.DBR = *v
				}
			case domain.ConfigFraud:
				var v *domain.FraudDetectionRuleSet
				if v, version, err = load[domain.FraudDetectionRuleSet](gctx, s, kind); err == nil {
					snap.Fraud = *v
				}
			case domain.ConfigInsights:
				var v *domain.InsightMessages
				if v, version, err = load[domain.InsightMessages](gctx, s, kind); err == nil {
					snap.Insights = *v
				}
			}
			versions[i] = version
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, kind := range domain.ConfigKinds {
		snap.Versions[kind] = versions[i]
	}
	snap.TakenAt = time.Now().UTC()

	if err := rules.ValidateSnapshot(snap, s.policy); err != nil {
		return nil, err
	}
	return snap, nil
}

// Save validates payload and stores it as the next version of kind. The
// body is checked against the aggregate's JSON Schema first, then
// semantically.
func (s *Store) Save(ctx context.Context, kind domain.ConfigKind, payload json.RawMessage) (*domain.ConfigRecord, error) {
	if !kind.Valid() {
		return nil, domain.NewInputError(domain.CodeInvalidInput, "unknown configuration kind %q", kind)
	}
	if err := checkShape(s.schemas[kind], kind, payload); err != nil {
		return nil, err
	}
	if err := s.validate(kind, payload); err != nil {
		return nil, err
	}

	rec, err := s.repo.SaveConfig(ctx, kind, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", kind, err)
	}

	s.invalidate(ctx, kind)
	s.publish(ctx, rec)
	metrics.ConfigUpdates.WithLabelValues(string(kind)).Inc()

	s.logger.Info("configuration updated",
		zap.String("kind", string(kind)),
		zap.Int("version", rec.Version),
	)
	return rec, nil
}

func (s *Store) validate(kind domain.ConfigKind, payload json.RawMessage) error {
	decode := func(v any) error {
		if err := json.Unmarshal(payload, v); err != nil {
			return domain.NewInputError(domain.CodeInvalidInput, "%s: %v", kind, err)
		}
		return nil
	}

	switch kind {
	case domain.ConfigKnockout:
		var v domain.KnockoutRuleSet
		if err := decode(&v); err != nil {
			return err
		}
		return rules.ValidateKnockout(&v)
	case domain.ConfigScoring:
		var v domain.ScoringRuleSet
		if err := decode(&v); err != nil {
			return err
		}
		return rules.ValidateScoring(&v, s.policy)
	case domain.ConfigRiskRatings:
		var v domain.RiskRatingThresholds
		if err := decode(&v); err != nil {
			return err
		}
		return rules.ValidateRiskRatings(&v)
	case domain.ConfigLoanOffers:
		var v domain.LoanOfferRanges
		if err := decode(&v); err != nil {
			return err
		}
		return rules.ValidateLoanOffers(&v)
	case domain.ConfigDBR:
		var v domain.DBRSettings
		if err := decode(&v); err != nil {
			return err
		}
		return rules.ValidateDBR(&v)
	case domain.ConfigFraud:
		var v domain.FraudDetectionRuleSet
		if err := decode(&v); err != nil {
			return err
		}
		return rules.ValidateFraud(&v)
	case domain.ConfigInsights:
		var v domain.InsightMessages
		if err := decode(&v); err != nil {
			return err
		}
		return rules.ValidateInsights(&v)
	}
	return nil
}

func (s *Store) saveValue(ctx context.Context, kind domain.ConfigKind, v any) (*domain.ConfigRecord, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return s.Save(ctx, kind, data)
}

// SaveKnockoutRules stores a new knockout rule set version.
func (s *Store) SaveKnockoutRules(ctx context.Context, v *domain.KnockoutRuleSet) (*domain.ConfigRecord, error) {
	return s.saveValue(ctx, domain.ConfigKnockout, v)
}

// SaveScoringRules stores a new scoring rule set version.
func (s *Store) SaveScoringRules(ctx context.Context, v *domain.ScoringRuleSet) (*domain.ConfigRecord, error) {
	return s.saveValue(ctx, domain.ConfigScoring, v)
}

// SaveRiskRatingThresholds stores a new rating band version.
func (s *Store) SaveRiskRatingThresholds(ctx context.Context, v *domain.RiskRatingThresholds) (*domain.ConfigRecord, error) {
	return s.saveValue(ctx, domain.ConfigRiskRatings, v)
}

// SaveLoanOfferRanges stores a new loan offer range version.
func (s *Store) SaveLoanOfferRanges(ctx context.Context, v *domain.LoanOfferRanges) (*domain.ConfigRecord, error) {
	return s.saveValue(ctx, domain.ConfigLoanOffers, v)
}

// SaveDBRSettings stores a new DBR settings version.
func (s *Store) SaveDBRSettings(ctx context.Context, v *domain.DBRSettings) (*domain.ConfigRecord, error) {
	return s.saveValue(ctx, domain.ConfigDBR, v)
}

// SaveFraudDetectionRules stores a new fraud threshold version.
func (s *Store) SaveFraudDetectionRules(ctx context.Context, v *domain.FraudDetectionRuleSet) (*domain.ConfigRecord, error) {
	return s.saveValue(ctx, domain.ConfigFraud, v)
}

// SaveInsightMessages stores a new insight template version.
func (s *Store) SaveInsightMessages(ctx context.Context, v *domain.InsightMessages) (*domain.ConfigRecord, error) {
	return s.saveValue(ctx, domain.ConfigInsights, v)
}

// Versions lists every stored version of kind, newest first.
func (s *Store) Versions(ctx context.Context, kind domain.ConfigKind) ([]*domain.ConfigRecord, error) {
	if !kind.Valid() {
		return nil, domain.NewInputError(domain.CodeInvalidInput, "unknown configuration kind %q", kind)
	}
	return s.repo.ListConfigVersions(ctx, kind)
}

// Seed stores the default value of every aggregate that has never been
// configured. It returns the kinds it wrote.
func (s *Store) Seed(ctx context.Context) ([]domain.ConfigKind, error) {
	defaults := Defaults()
	var seeded []domain.ConfigKind
	for _, kind := range domain.ConfigKinds {
		_, err := s.repo.GetConfig(ctx, kind)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return seeded, fmt.Errorf("failed to check %s: %w", kind, err)
		}

		data, err := payload(defaults, kind)
		if err != nil {
			return seeded, err
		}
		if _, err := s.repo.SaveConfig(ctx, kind, data); err != nil {
			return seeded, fmt.Errorf("failed to seed %s: %w", kind, err)
		}
		s.invalidate(ctx, kind)
		seeded = append(seeded, kind)
	}
	if len(seeded) > 0 {
		s.logger.Info("seeded default configuration", zap.Int("aggregates", len(seeded)))
	}
	return seeded, nil
}

// Watch drops cached aggregates when another node publishes an update.
func (s *Store) Watch(ctx context.Context) (domain.Subscription, error) {
	if s.bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	return s.bus.Subscribe(ctx, domain.TopicConfigUpdated, func(ctx context.Context, msg *domain.Message) error {
		var evt domain.ConfigUpdatedEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("failed to decode config update: %w", err)
		}
		if !evt.Kind.Valid() {
			return fmt.Errorf("config update for unknown kind %q", evt.Kind)
		}
		s.invalidate(ctx, evt.Kind)
		s.logger.Debug("config cache invalidated",
			zap.String("kind", string(evt.Kind)),
			zap.Int("version", evt.Version),
		)
		return nil
	})
}

func (s *Store) invalidate(ctx context.Context, kind domain.ConfigKind) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(kind)); err != nil {
		s.logger.Warn("config cache invalidation failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Store) publish(ctx context.Context, rec *domain.ConfigRecord) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(domain.ConfigUpdatedEvent{Kind: rec.Kind, Version: rec.Version})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.TopicConfigUpdated, data); err != nil {
		s.logger.Warn("failed to publish config update", zap.String("kind", string(rec.Kind)), zap.Error(err))
	}
}
