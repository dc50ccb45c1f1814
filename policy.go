package subproc

import (
	"context"
	"errors"
	"fmt"

	"github.com/gobwas/glob"
)

// Verdict is the outcome of an execution policy decision.
type Verdict int

const (
	ALLOW Verdict = iota
	DENY
)

func (v Verdict) String() string {
	switch v {
	case ALLOW:
		return "ALLOW"
	case DENY:
		return "DENY"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ErrDenied is the sentinel every policy denial matches via errors.Is.
var ErrDenied = errors.New("subproc: execution denied by policy")

// PolicyError reports a denied spawn: which executable path was checked and
// the verdict that stopped it.
type PolicyError struct {
	Verdict Verdict
	Path    string
}

func (e *PolicyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("subproc: policy verdict %s for %q", e.Verdict, e.Path)
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrDenied
}

type policyKey struct{}

type policyRule struct {
	pattern string
	matcher glob.Glob
	verdict Verdict
}

// executionPolicy is carried in a context.Context and consulted right before
// every spawn. Deny rules are checked before allow rules; an executable path
// matching no rule gets the default verdict.
type executionPolicy struct {
	defaultVerdict Verdict
	rules          []policyRule
}

func (p *executionPolicy) clone() *executionPolicy {
	cp := &executionPolicy{defaultVerdict: p.defaultVerdict}
	cp.rules = append(cp.rules, p.rules...)
	return cp
}

func (p *executionPolicy) decide(path string) Verdict {
	for _, r := range p.rules {
		if r.verdict == DENY && r.matcher.Match(path) {
			return DENY
		}
	}
	for _, r := range p.rules {
		if r.verdict == ALLOW && r.matcher.Match(path) {
			return ALLOW
		}
	}
	return p.defaultVerdict
}

// WithPolicy returns a context carrying an execution policy with the given
// default verdict and no rules. Spawns checked against a context without a
// policy are always allowed.
func WithPolicy(ctx context.Context, defaultVerdict Verdict) context.Context {
	return context.WithValue(ctx, policyKey{}, &executionPolicy{defaultVerdict: defaultVerdict})
}

// WithRule returns a context whose policy additionally applies verdict to
// executable paths matching pattern (glob syntax, matched against the path
// as configured, not resolved). A context without a policy gets one with an
// ALLOW default. WithRule panics on an invalid pattern; use
// WithRuleCatchError to handle that case.
func WithRule(ctx context.Context, pattern string, verdict Verdict) context.Context {
	ctx, err := WithRuleCatchError(ctx, pattern, verdict)
	if err != nil {
		panic(err)
	}
	return ctx
}

// WithRuleCatchError is WithRule returning pattern compilation errors
// instead of panicking.
func WithRuleCatchError(ctx context.Context, pattern string, verdict Verdict) (context.Context, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return ctx, fmt.Errorf("%w: pattern %q: %v", ErrConfiguration, pattern, err)
	}
	p := &executionPolicy{defaultVerdict: ALLOW}
	if prev, ok := ctx.Value(policyKey{}).(*executionPolicy); ok {
		p = prev.clone()
	}
	p.rules = append(p.rules, policyRule{pattern: pattern, matcher: matcher, verdict: verdict})
	return context.WithValue(ctx, policyKey{}, p), nil
}

// CheckPolicy evaluates ctx's execution policy for path. It returns nil when
// allowed (or when ctx carries no policy) and a *PolicyError matching
// ErrDenied when denied.
func CheckPolicy(ctx context.Context, path string) error {
	p, ok := ctx.Value(policyKey{}).(*executionPolicy)
	if !ok {
		return nil
	}
	if v := p.decide(path); v == DENY {
		return &PolicyError{Verdict: v, Path: path}
	}
	return nil
}
