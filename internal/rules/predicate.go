package rules

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ctxCheckEvery is how many transactions a worker evaluates between
// cancellation checks.
const ctxCheckEvery = 256

// newPredicateEnv declares the variables a row predicate can reference.
func newPredicateEnv() (*cel.Env, error) {
	return cel.NewEnv(
		// Transaction fields
		cel.Variable("user_id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("device_id", cel.StringType),
		cel.Variable("ip_address", cel.StringType),
		cel.Variable("reviewed", cel.BoolType),
		cel.Variable("hour", cel.IntType),
		// Owning user; zero values when has_user is false
		cel.Variable("has_user", cel.BoolType),
		cel.Variable("user_country", cel.StringType),
		cel.Variable("account_age_days", cel.IntType),
		cel.Variable("account_type", cel.StringType),
		cel.Variable("verified_email", cel.BoolType),
		cel.Variable("verified_phone", cel.BoolType),
		cel.Variable("payment_methods", cel.IntType),
		cel.Variable("user_risk_score", cel.DoubleType),
		cel.Function("is_private_ip",
			cel.Overload("is_private_ip_string",
				[]*cel.Type{cel.StringType}, cel.BoolType,
				cel.UnaryBinding(isPrivateIP),
			),
		),
	)
}

// isPrivateIP reports whether an address is private or loopback. Unparseable
// input is not private.
func isPrivateIP(v ref.Val) ref.Val {
	s, ok := v.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(v)
	}
	addr, err := netip.ParseAddr(string(s))
	if err != nil {
		return types.False
	}
	return types.Bool(addr.IsPrivate() || addr.IsLoopback())
}

// compilePredicate type-checks an expression and requires a bool result.
func compilePredicate(env *cel.Env, rule *domain.Rule) (cel.Program, error) {
	ast, issues := env.Compile(rule.Predicate.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile: %v", domain.ErrInvalidRuleDefinition, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", domain.ErrInvalidRuleDefinition, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: program: %v", domain.ErrInvalidRuleDefinition, err)
	}
	return program, nil
}

// activation binds one transaction and its user to predicate variables.
func activation(tx *domain.Transaction, user *domain.User) map[string]any {
	vars := map[string]any{
		"user_id":           tx.UserID,
		"amount":            tx.Amount,
		"merchant_category": tx.MerchantCategory,
		"country":           tx.Country,
		"device_id":         tx.DeviceID,
		"ip_address":        tx.IPAddress,
		"reviewed":          tx.Reviewed,
		"hour":              int64(tx.Timestamp.UTC().Hour()),
		"has_user":          user != nil,
		"user_country":      "",
		"account_age_days":  int64(0),
		"account_type":      "",
		"verified_email":    false,
		"verified_phone":    false,
		"payment_methods":   int64(0),
		"user_risk_score":   0.0,
	}
	if user != nil {
		vars["user_country"] = user.CountryOfResidence
		vars["account_age_days"] = int64(user.AccountAgeDays)
		vars["account_type"] = user.AccountType
		vars["verified_email"] = user.HasVerifiedEmail
		vars["verified_phone"] = user.HasVerifiedPhone
		vars["payment_methods"] = int64(user.NumPaymentMethods)
		vars["user_risk_score"] = user.RiskScore
	}
	return vars
}

// evalPredicate runs a compiled predicate over every transaction, splitting
// the population across at most workers goroutines. A runtime evaluation
// error fails the whole rule.
func evalPredicate(ctx context.Context, program cel.Program, pop *Population, workers int) ([]bool, error) {
	n := pop.Size()
	hits := make([]bool, n)
	if n == 0 {
		return hits, nil
	}

	chunk := (n + workers - 1) / workers

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if (i-lo)%ctxCheckEvery == 0 {
					if err := ctx.Err(); err != nil {
						fail(err)
						return
					}
				}

				tx := pop.Transactions[i]
				out, _, err := program.Eval(activation(tx, pop.Users[tx.UserID]))
				if err != nil {
					fail(fmt.Errorf("transaction %s: %w", tx.ID, err))
					return
				}
				b, ok := out.(types.Bool)
				if !ok {
					fail(fmt.Errorf("%w: transaction %s: non-bool result %v", domain.ErrInvalidRuleDefinition, tx.ID, out))
					return
				}
				hits[i] = bool(b)
			}
		}(start, end)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return hits, nil
}
