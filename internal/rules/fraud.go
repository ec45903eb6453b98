package rules

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Fraud flag codes.
const (
	FlagUnrelatedIncoming   = "UNRELATED_INCOMING_TRANSACTIONS"
	FlagSuddenLargeDeposit  = "SUDDEN_LARGE_DEPOSIT"
	FlagNewAccount          = "NEW_ACCOUNT"
	FlagNoExpenseActivity   = "NO_EXPENSE_ACTIVITY"
	FlagHighBalanceInactive = "HIGH_BALANCE_WITHOUT_ACTIVITY"
)

// Heuristic is one fraud check. Expression is a CEL program over the
// activity metric variables and the single threshold variable.
type Heuristic struct {
	Code        string
	Description string
	Expression  string
	Threshold   func(r *domain.FraudDetectionRuleSet) float64
	Observed    func(a *domain.ActivityMetrics) float64
}

// Heuristics returns the built-in fraud checks in evaluation order.
func Heuristics() []Heuristic {
	return []Heuristic{
		{
			Code:        FlagUnrelatedIncoming,
			Description: "Too many incoming transactions from unrelated sources.",
			Expression:  "unrelated_incoming_transactions > threshold",
			Threshold:   func(r *domain.FraudDetectionRuleSet) float64 { return r.MaxUnrelatedIncomingTransactions },
			Observed:    func(a *domain.ActivityMetrics) float64 { return float64(a.UnrelatedIncomingTransactions) },
		},
		{
			Code:        FlagSuddenLargeDeposit,
			Description: "Sudden deposit far above the usual deposit size.",
			Expression:  "sudden_deposit_multiple > threshold",
			Threshold:   func(r *domain.FraudDetectionRuleSet) float64 { return r.MaxSuddenDepositMultiple },
			Observed:    func(a *domain.ActivityMetrics) float64 { return a.SuddenDepositMultiple },
		},
		{
			Code:        FlagNewAccount,
			Description: "Bank account is younger than the minimum account age.",
			Expression:  "account_age_days < threshold",
			Threshold:   func(r *domain.FraudDetectionRuleSet) float64 { return r.MinimumAccountAge },
			Observed:    func(a *domain.ActivityMetrics) float64 { return float64(a.AccountAgeDays) },
		},
		{
			Code:        FlagNoExpenseActivity,
			Description: "No expenses recorded for longer than the allowed period.",
			Expression:  "no_expense_period_days > threshold",
			Threshold:   func(r *domain.FraudDetectionRuleSet) float64 { return r.MaxAllowedNoExpensePeriod },
			Observed:    func(a *domain.ActivityMetrics) float64 { return float64(a.NoExpensePeriodDays) },
		},
		{
			Code:        FlagHighBalanceInactive,
			Description: "High balance held with no outgoing activity.",
			Expression:  "current_balance > threshold && outgoing_transactions == 0.0",
			Threshold:   func(r *domain.FraudDetectionRuleSet) float64 { return r.HighBalanceWithoutActivityThreshold },
			Observed:    func(a *domain.ActivityMetrics) float64 { return a.CurrentBalance },
		},
	}
}

// compiledHeuristic holds a pre-compiled CEL program.
type compiledHeuristic struct {
	Heuristic
	program cel.Program
}

// FraudDetector evaluates the fraud heuristics. It is built once and is
// safe for concurrent use: the compiled programs are never mutated.
type FraudDetector struct {
	heuristics []*compiledHeuristic
}

// NewFraudDetector compiles the given heuristics, or the built-in set when
// none are passed.
func NewFraudDetector(hs ...Heuristic) (*FraudDetector, error) {
	if len(hs) == 0 {
		hs = Heuristics()
	}

	env, err := cel.NewEnv(
		cel.Variable("unrelated_incoming_transactions", cel.DoubleType),
		cel.Variable("sudden_deposit_multiple", cel.DoubleType),
		cel.Variable("account_age_days", cel.DoubleType),
		cel.Variable("no_expense_period_days", cel.DoubleType),
		cel.Variable("current_balance", cel.DoubleType),
		cel.Variable("outgoing_transactions", cel.DoubleType),
		cel.Variable("threshold", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	d := &FraudDetector{}
	for _, h := range hs {
		ast, issues := env.Compile(h.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile heuristic %s: %w", h.Code, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("heuristic %s: expression must return bool, got %s", h.Code, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for heuristic %s: %w", h.Code, err)
		}
		d.heuristics = append(d.heuristics, &compiledHeuristic{Heuristic: h, program: program})
	}
	return d, nil
}

// Detect runs every heuristic independently. A heuristic with a malformed
// threshold or a failing program is skipped with a warning; detection never
// fails the evaluation.
func (d *FraudDetector) Detect(a *domain.ActivityMetrics, r *domain.FraudDetectionRuleSet) ([]domain.FraudFlag, []domain.Warning) {
	flags := []domain.FraudFlag{}
	if a == nil {
		return flags, []domain.Warning{{
			Stage:   domain.StageFraud,
			Message: "no account activity available, fraud heuristics skipped",
		}}
	}

	activation := map[string]any{
		"unrelated_incoming_transactions": float64(a.UnrelatedIncomingTransactions),
		"sudden_deposit_multiple":         a.SuddenDepositMultiple,
		"account_age_days":                float64(a.AccountAgeDays),
		"no_expense_period_days":          float64(a.NoExpensePeriodDays),
		"current_balance":                 a.CurrentBalance,
		"outgoing_transactions":           float64(a.OutgoingTransactions),
	}

	var warnings []domain.Warning
	for _, h := range d.heuristics {
		threshold := h.Threshold(r)
		if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
			warnings = append(warnings, domain.Warning{
				Stage:   domain.StageFraud,
				Message: fmt.Sprintf("heuristic %s skipped: malformed threshold %v", h.Code, threshold),
			})
			continue
		}
		activation["threshold"] = threshold

		out, _, err := h.program.Eval(activation)
		if err != nil {
			warnings = append(warnings, domain.Warning{
				Stage:   domain.StageFraud,
				Message: fmt.Sprintf("heuristic %s skipped: %v", h.Code, err),
			})
			continue
		}
		if out == types.True {
			flags = append(flags, domain.FraudFlag{
				Code:        h.Code,
				Description: h.Description,
				Observed:    h.Observed(a),
				Threshold:   threshold,
			})
		}
	}
	return flags, warnings
}
