package decision

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// topProfile lands in the best rule of every category.
func topProfile() *domain.ApplicantProfile {
	return &domain.ApplicantProfile{
		SimahScore:      intPtr(750),
		ActiveLoans:     intPtr(1),
		Defaults:        intPtr(0),
		AvgBankBalance:  floatPtr(30000),
		EstimatedIncome: floatPtr(15000),
		SpendingRatio:   floatPtr(0.3),
		Age:             intPtr(35),
		DBRObligations:  floatPtr(45),
	}
}

// testSnapshot has a maximum attainable score of 120.
func testSnapshot() *domain.ConfigSnapshot {
	return &domain.ConfigSnapshot{
		Knockout: domain.KnockoutRuleSet{
			MinimumSimahScore:            550,
			MaximumActiveDefaults:        2,
			MinimumAverageBalance:        5000,
			MinimumMonthlyIncome:         3000,
			MaximumSpendingToIncomeRatio: 0.85,
			MinimumAge:                   21,
		},
		Scoring: domain.ScoringRuleSet{
			SimahScore: []domain.RangeRule{
				{Min: 700, Max: nil, Points: 40},
				{Min: 0, Max: floatPtr(699), Points: 10},
			},
			ActiveLoans: []domain.CountRule{{Count: 2, Points: 10}},
			Defaults:    []domain.CountRule{{Count: 0, Points: 20}},
			AvgBankBalance: []domain.RangeRule{
				{Min: 20000, Max: nil, Points: 20},
			},
			EstimatedMonthlyIncome: []domain.RangeRule{
				{Min: 10000, Max: nil, Points: 15},
				{Min: 3000, Max: floatPtr(9999.99), Points: 5},
			},
			SpendingToIncomeRatio: []domain.CountRule{
				{Count: 0.4, Points: 15},
				{Count: 0.7, Points: 3},
			},
		},
		RiskRatings: domain.RiskRatingThresholds{RatingRanges: []domain.RatingRange{
			{Rating: domain.RatingA, MinScore: 90, MaxScore: 100},
			{Rating: domain.RatingB, MinScore: 70, MaxScore: 89},
			{Rating: domain.RatingC, MinScore: 50, MaxScore: 69},
			{Rating: domain.RatingD, MinScore: 30, MaxScore: 49},
			{Rating: domain.RatingE, MinScore: 0, MaxScore: 29},
		}},
		LoanOffers: domain.LoanOfferRanges{RatingRanges: []domain.OfferRange{
			{Rating: domain.RatingA, MinimumAmount: 300000, MaximumAmount: 500000},
			{Rating: domain.RatingB, MinimumAmount: 150000, MaximumAmount: 300000},
			{Rating: domain.RatingC, MinimumAmount: 75000, MaximumAmount: 150000},
			{Rating: domain.RatingD, MinimumAmount: 25000, MaximumAmount: 75000},
			{Rating: domain.RatingE, MinimumAmount: 10000, MaximumAmount: 25000},
		}},
		DBR: domain.DBRSettings{MaximumDBRPercentage: 65},
		Fraud: domain.FraudDetectionRuleSet{
			MaxUnrelatedIncomingTransactions:    5,
			MaxSuddenDepositMultiple:            3,
			MinimumAccountAge:                   90,
			MaxAllowedNoExpensePeriod:           45,
			HighBalanceWithoutActivityThreshold: 100000,
		},
		Insights: domain.InsightMessages{
			PositiveInsights: []domain.InsightRule{
				{Message: "Strong credit history", Trigger: domain.Trigger{Field: domain.FieldSimahScore, Operator: domain.OpGreaterEqual, Value: 700.0}},
			},
			NegativeInsights: []domain.InsightRule{
				{Message: "High existing debt burden", Trigger: domain.Trigger{Field: domain.FieldDBRObligations, Operator: domain.OpGreater, Value: 50.0}},
			},
			AlertInsights: []domain.InsightRule{
				{Message: "Has defaults", Trigger: domain.Trigger{Field: domain.FieldDefaults, Operator: domain.OpGreater, Value: 0.0}},
			},
		},
	}
}

func quietActivity() *domain.ActivityMetrics {
	return &domain.ActivityMetrics{
		UnrelatedIncomingTransactions: 1,
		SuddenDepositMultiple:         1.2,
		AccountAgeDays:                900,
		NoExpensePeriodDays:           5,
		CurrentBalance:                20000,
		OutgoingTransactions:          12,
	}
}

func newTestEngine(t *testing.T, policy domain.DecisionPolicy) *Engine {
	t.Helper()
	e, err := NewEngine(EngineOptions{Policy: policy, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return e
}

func evaluate(t *testing.T, e *Engine, p *domain.ApplicantProfile, snap *domain.ConfigSnapshot) *Output {
	t.Helper()
	out, err := e.Evaluate(context.Background(), Input{Profile: p, Activity: quietActivity(), Snapshot: snap})
	require.NoError(t, err)
	return out
}

func TestEngine_KnockoutRejects(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())
	p := topProfile()
	p.SimahScore = intPtr(500)

	out := evaluate(t, e, p, testSnapshot())

	rejected, ok := out.Result.(*domain.Rejected)
	require.True(t, ok, "expected a rejection")
	assert.False(t, rejected.Knockout.Passed)
	assert.Contains(t, rejected.Knockout.Details, rules.MsgSimahBelowMinimum)
	assert.Equal(t, []string{"minimumSimahScore"}, out.KnockoutViolations)

	report := rejected.Report()
	assert.Equal(t, domain.DecisionReject, report.Decision)
	assert.Equal(t, domain.StageKnockout, report.RejectedBy)
	assert.Nil(t, report.ScoreResult)
	assert.Nil(t, report.LoanOffer)
	assert.Empty(t, report.RiskRating)
}

func TestEngine_FullScoreAndDBR(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())

	out := evaluate(t, e, topProfile(), testSnapshot())

	completed, ok := out.Result.(*domain.Completed)
	require.True(t, ok, "expected a completed evaluation")
	assert.True(t, completed.Knockout.Passed)
	assert.Empty(t, completed.Knockout.Details)
	assert.Equal(t, 120.0, completed.Score.RawScore)
	assert.Equal(t, 100.0, completed.Score.NormalizedScore)
	assert.Equal(t, domain.RatingA, completed.RiskRating)
	assert.Equal(t, domain.DBRResult{Passed: true, Details: domain.DBRDetails{CalculatedDBR: 45}}, completed.DBR)
	assert.Equal(t, domain.LoanOffer{Minimum: 300000, Maximum: 500000}, completed.LoanOffer)
	assert.Empty(t, completed.FraudFlags)
	assert.Equal(t, []string{"Strong credit history"}, completed.Insights.PositiveInsights)
	assert.Empty(t, completed.Insights.NegativeInsights)
	assert.Empty(t, out.Warnings)
}

func TestEngine_PartialScoreRatesB(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())
	p := topProfile()
	p.EstimatedIncome = floatPtr(8000)
	p.SpendingRatio = floatPtr(0.6)

	out := evaluate(t, e, p, testSnapshot())

	completed := out.Result.(*domain.Completed)
	assert.Equal(t, 98.0, completed.Score.RawScore)
	assert.Equal(t, 81.67, completed.Score.NormalizedScore)
	assert.Equal(t, domain.RatingB, completed.RiskRating)
	assert.Equal(t, domain.LoanOffer{Minimum: 150000, Maximum: 300000}, completed.LoanOffer)
}

func TestEngine_NegativeInsight(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())
	p := topProfile()
	p.DBRObligations = floatPtr(55)

	out := evaluate(t, e, p, testSnapshot())

	completed := out.Result.(*domain.Completed)
	assert.Equal(t, []string{"High existing debt burden"}, completed.Insights.NegativeInsights)
	assert.True(t, completed.DBR.Passed)
}

func TestEngine_DBRPolicies(t *testing.T) {
	p := topProfile()
	p.DBRObligations = floatPtr(70)

	t.Run("Advisory", func(t *testing.T) {
		e := newTestEngine(t, domain.DefaultDecisionPolicy())
		out := evaluate(t, e, p, testSnapshot())

		completed, ok := out.Result.(*domain.Completed)
		require.True(t, ok)
		assert.False(t, completed.DBR.Passed)
		assert.Equal(t, 70.0, completed.DBR.Details.CalculatedDBR)
		assert.Equal(t, domain.DecisionAccept, completed.Report().Decision)
	})

	t.Run("Blocking", func(t *testing.T) {
		policy := domain.DefaultDecisionPolicy()
		policy.DBR = domain.DBRBlocking
		e := newTestEngine(t, policy)
		out := evaluate(t, e, p, testSnapshot())

		rejected, ok := out.Result.(*domain.Rejected)
		require.True(t, ok)
		assert.Equal(t, domain.StageDBR, rejected.RejectedBy)
		assert.Equal(t, []string{rules.MsgDBRAboveMaximum}, rejected.Knockout.Details)
		require.NotNil(t, rejected.DBR)
		assert.False(t, rejected.DBR.Passed)

		report := rejected.Report()
		assert.NotNil(t, report.DBRResult)
		assert.Nil(t, report.ScoreResult)
	})

	t.Run("BlockingPassesAtCeiling", func(t *testing.T) {
		policy := domain.DefaultDecisionPolicy()
		policy.DBR = domain.DBRBlocking
		e := newTestEngine(t, policy)
		q := topProfile()
		q.DBRObligations = floatPtr(65)

		out := evaluate(t, e, q, testSnapshot())
		_, ok := out.Result.(*domain.Completed)
		assert.True(t, ok)
	})
}

func TestEngine_InterpolatedOffer(t *testing.T) {
	policy := domain.DefaultDecisionPolicy()
	policy.Offer = domain.OfferInterpolated
	e := newTestEngine(t, policy)

	out := evaluate(t, e, topProfile(), testSnapshot())

	completed := out.Result.(*domain.Completed)
	// top of band A gets the full maximum
	assert.Equal(t, domain.LoanOffer{Minimum: 300000, Maximum: 500000}, completed.LoanOffer)
}

func TestEngine_Errors(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())
	ctx := context.Background()

	t.Run("MissingField", func(t *testing.T) {
		p := topProfile()
		p.Age = nil
		p.DBRObligations = nil
		_, err := e.Evaluate(ctx, Input{Profile: p, Snapshot: testSnapshot()})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrMissingField))
		assert.Equal(t, domain.ClassInput, domain.ClassOf(err))
	})

	t.Run("NoOfferConfigured", func(t *testing.T) {
		snap := testSnapshot()
		snap.LoanOffers.RatingRanges = snap.LoanOffers.RatingRanges[1:]
		_, err := e.Evaluate(ctx, Input{Profile: topProfile(), Snapshot: snap})
		assert.True(t, errors.Is(err, domain.ErrNoOfferConfigured))
		assert.Equal(t, domain.ClassConfiguration, domain.ClassOf(err))
	})

	t.Run("UnratableScore", func(t *testing.T) {
		snap := testSnapshot()
		snap.RiskRatings.RatingRanges = snap.RiskRatings.RatingRanges[1:]
		_, err := e.Evaluate(ctx, Input{Profile: topProfile(), Snapshot: snap})
		assert.True(t, errors.Is(err, domain.ErrUnratableScore))
	})

	t.Run("OverlappingRatings", func(t *testing.T) {
		snap := testSnapshot()
		snap.RiskRatings.RatingRanges = []domain.RatingRange{
			{Rating: domain.RatingA, MinScore: 60, MaxScore: 100},
			{Rating: domain.RatingB, MinScore: 0, MaxScore: 95},
		}
		out, err := e.Evaluate(ctx, Input{Profile: topProfile(), Snapshot: snap})
		require.Error(t, err)
		assert.Nil(t, out)
		assert.True(t, errors.Is(err, domain.ErrOverlappingThresholds))
		assert.Equal(t, domain.ClassConfiguration, domain.ClassOf(err))
	})

	t.Run("NilInputs", func(t *testing.T) {
		_, err := e.Evaluate(ctx, Input{Snapshot: testSnapshot()})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		_, err = e.Evaluate(ctx, Input{Profile: topProfile()})
		assert.True(t, errors.Is(err, domain.ErrMissingConfiguration))
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Evaluate(cctx, Input{Profile: topProfile(), Snapshot: testSnapshot()})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_FraudFlagsAreAdvisory(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())
	ctx := context.Background()

	t.Run("FlagsRaised", func(t *testing.T) {
		a := quietActivity()
		a.AccountAgeDays = 20
		a.SuddenDepositMultiple = 6

		out, err := e.Evaluate(ctx, Input{Profile: topProfile(), Activity: a, Snapshot: testSnapshot()})
		require.NoError(t, err)

		completed := out.Result.(*domain.Completed)
		var codes []string
		for _, f := range completed.FraudFlags {
			codes = append(codes, f.Code)
		}
		assert.Equal(t, []string{rules.FlagSuddenLargeDeposit, rules.FlagNewAccount}, codes)
		assert.Equal(t, domain.DecisionAccept, completed.Report().Decision)
	})

	t.Run("NoActivity", func(t *testing.T) {
		out, err := e.Evaluate(ctx, Input{Profile: topProfile(), Snapshot: testSnapshot()})
		require.NoError(t, err)

		completed := out.Result.(*domain.Completed)
		assert.Empty(t, completed.FraudFlags)
		require.Len(t, out.Warnings, 1)
		assert.Equal(t, domain.StageFraud, out.Warnings[0].Stage)
	})
}

func TestEngine_MalformedInsightIsSkipped(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())
	snap := testSnapshot()
	snap.Insights.AlertInsights = append(snap.Insights.AlertInsights,
		domain.InsightRule{Message: "bogus", Trigger: domain.Trigger{Field: "income", Operator: domain.OpGreater, Value: 1.0}},
	)

	out := evaluate(t, e, topProfile(), snap)

	_, ok := out.Result.(*domain.Completed)
	assert.True(t, ok)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, domain.StageInsights, out.Warnings[0].Stage)
}

func reportJSON(t *testing.T, out *Output) string {
	t.Helper()
	data, err := json.Marshal(struct {
		Report   *domain.Report   `json:"report"`
		Warnings []domain.Warning `json:"warnings"`
	}{out.Result.Report(), out.Warnings})
	require.NoError(t, err)
	return string(data)
}

func TestEngine_Deterministic(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())
	p := topProfile()
	p.DBRObligations = floatPtr(55)
	snap := testSnapshot()

	first := reportJSON(t, evaluate(t, e, p, snap))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, reportJSON(t, evaluate(t, e, p, snap)))
	}
}

func TestEngine_SequentialMatchesConcurrent(t *testing.T) {
	concurrent := newTestEngine(t, domain.DefaultDecisionPolicy())
	sequential, err := NewEngine(EngineOptions{Sequential: true})
	require.NoError(t, err)

	profiles := []*domain.ApplicantProfile{topProfile()}
	for _, dbr := range []float64{10, 55, 80} {
		p := topProfile()
		p.DBRObligations = floatPtr(dbr)
		p.SimahScore = intPtr(620)
		profiles = append(profiles, p)
	}
	low := topProfile()
	low.Age = intPtr(18)
	profiles = append(profiles, low)

	for _, p := range profiles {
		in := Input{Profile: p, Activity: quietActivity(), Snapshot: testSnapshot()}
		a, err := concurrent.Evaluate(context.Background(), in)
		require.NoError(t, err)
		b, err := sequential.Evaluate(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, reportJSON(t, a), reportJSON(t, b))
	}
}

func TestEngine_HigherSimahNeverLowersScore(t *testing.T) {
	e := newTestEngine(t, domain.DefaultDecisionPolicy())
	prev := -1000.0
	for simah := 550; simah <= 900; simah += 25 {
		p := topProfile()
		p.SimahScore = intPtr(simah)
		completed := evaluate(t, e, p, testSnapshot()).Result.(*domain.Completed)
		assert.GreaterOrEqual(t, completed.Score.NormalizedScore, prev, "simah %d", simah)
		prev = completed.Score.NormalizedScore
	}
}

func TestRequiredFields(t *testing.T) {
	assert.ElementsMatch(t, domain.ApplicantFields, RequiredFields)
}
