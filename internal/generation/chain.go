// Package generation turns article-level requests into generated text.
//
// A Chain runs one prompt through a primary provider, one fallback
// provider on retryable failure, and finally an extractive summary of the
// source text, so a caller always gets an answer unless the prompt itself
// was rejected. Service puts the response cache and the generation log in
// front of the chain.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/hoanghai1803/lumen/internal/ai"
	"github.com/hoanghai1803/lumen/internal/metrics"
	"github.com/hoanghai1803/lumen/internal/models"
)

// ErrRejected is returned when a provider refuses the prompt itself. No
// fallback is attempted since another provider would refuse it too.
var ErrRejected = errors.New("generation request rejected by provider")

// ExtractiveModel is reported as the model of extractive answers.
const ExtractiveModel = "extractive"

// Stage names a state of the generation state machine.
type Stage string

const (
	StagePrimary    Stage = "primary"
	StageFallback   Stage = "fallback"
	StageExtractive Stage = "extractive"
	StageDone       Stage = "done"
)

// Result is the outcome of a Chain run.
type Result struct {
	Text         string
	Model        string
	TokensUsed   int
	Confidence   models.ConfidenceTier
	FallbackUsed bool
	// Stage is the stage that produced Text.
	Stage Stage
}

// Chain is the provider fallback state machine. It is safe for concurrent
// use.
type Chain struct {
	primary     ai.Provider
	fallback    ai.Provider
	callTimeout time.Duration
	memoPrefix  int
	memo        *ristretto.Cache[string, *ai.Completion]
}

// ChainConfig tunes a Chain.
type ChainConfig struct {
	// CallTimeout bounds each provider call; an expired call is a
	// retryable failure.
	CallTimeout time.Duration
	// MemoPrefixChars is how much of the user prompt keys the memo.
	MemoPrefixChars int
	// MemoMaxEntries bounds the memo; zero disables it.
	MemoMaxEntries int64
}

// NewChain creates a Chain. Either provider may be nil, in which case its
// stage is skipped.
func NewChain(primary, fallback ai.Provider, cfg ChainConfig) (*Chain, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.MemoPrefixChars <= 0 {
		cfg.MemoPrefixChars = 1024
	}

	c := &Chain{
		primary:     primary,
		fallback:    fallback,
		callTimeout: cfg.CallTimeout,
		memoPrefix:  cfg.MemoPrefixChars,
	}
	if cfg.MemoMaxEntries > 0 {
		memo, err := ristretto.NewCache(&ristretto.Config[string, *ai.Completion]{
			NumCounters:        cfg.MemoMaxEntries * 10,
			MaxCost:            cfg.MemoMaxEntries,
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("creating provider memo: %w", err)
		}
		c.memo = memo
	}
	return c, nil
}

// Close releases the memo.
func (c *Chain) Close() {
	if c.memo != nil {
		c.memo.Close()
	}
}

// Run drives p through the stages:
//
//	primary --ok--> done
//	primary --retryable--> fallback --ok--> done
//	fallback --failure--> extractive --> done
//	primary --malformed answer--> extractive --> done
//	primary --rejected--> ErrRejected
//
// excerpts feed the extractive stage.
func (c *Chain) Run(ctx context.Context, p ai.Prompt, excerpts []string) (*Result, error) {
	stage := StagePrimary

	for {
		switch stage {
		case StagePrimary:
			if c.primary == nil {
				stage = StageFallback
				continue
			}
			comp, err := c.call(ctx, c.primary, p)
			if err == nil {
				return c.done(comp, StagePrimary, false), nil
			}
			switch {
			case ai.IsRetryable(err):
				slog.Warn("primary provider failed, trying fallback",
					"provider", c.primary.Name(), "error", err)
				stage = StageFallback
			case ai.KindOf(err) == ai.KindMalformed:
				slog.Error("primary provider returned a malformed answer",
					"provider", c.primary.Name(), "error", err)
				stage = StageExtractive
			default:
				metrics.GenerationOutcomes.WithLabelValues("rejected").Inc()
				return nil, fmt.Errorf("%w: %v", ErrRejected, err)
			}

		case StageFallback:
			if c.fallback == nil {
				stage = StageExtractive
				continue
			}
			comp, err := c.call(ctx, c.fallback, p)
			if err == nil {
				return c.done(comp, StageFallback, true), nil
			}
			slog.Warn("fallback provider failed, using extractive answer",
				"provider", c.fallback.Name(), "error", err)
			stage = StageExtractive

		case StageExtractive:
			metrics.GenerationOutcomes.WithLabelValues(string(StageExtractive)).Inc()
			return &Result{
				Text:         Extract(excerpts),
				Model:        ExtractiveModel,
				Confidence:   models.ConfidenceLow,
				FallbackUsed: true,
				Stage:        StageExtractive,
			}, nil

		default:
			return nil, fmt.Errorf("generation reached unexpected stage %q", stage)
		}
	}
}

func (c *Chain) done(comp *ai.Completion, stage Stage, fallbackUsed bool) *Result {
	metrics.GenerationOutcomes.WithLabelValues(string(stage)).Inc()
	return &Result{
		Text:         comp.Text,
		Model:        comp.Model,
		TokensUsed:   comp.TokensUsed,
		Confidence:   models.ConfidenceHigh,
		FallbackUsed: fallbackUsed,
		Stage:        stage,
	}
}

// call runs one provider attempt under the call timeout, consulting the
// memo first.
func (c *Chain) call(ctx context.Context, provider ai.Provider, p ai.Prompt) (*ai.Completion, error) {
	key := c.memoKey(provider, p)
	if c.memo != nil {
		if comp, ok := c.memo.Get(key); ok {
			metrics.ProviderMemoHits.Inc()
			return comp, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	comp, err := provider.Complete(callCtx, p)
	if err != nil {
		kind := ai.KindOf(err)
		if kind == "" && errors.Is(err, context.DeadlineExceeded) {
			kind = ai.KindTimeout
		}
		metrics.ProviderFailures.WithLabelValues(provider.Name(), string(kind)).Inc()
		return nil, err
	}

	if c.memo != nil {
		c.memo.Set(key, comp, 1)
	}
	return comp, nil
}

// memoKey identifies near-identical prompts: same provider, model and
// system prompt, and the same leading user text.
func (c *Chain) memoKey(provider ai.Provider, p ai.Prompt) string {
	user := p.User
	if r := []rune(user); len(r) > c.memoPrefix {
		user = string(r[:c.memoPrefix])
	}
	return provider.Name() + "\x1f" + provider.Model() + "\x1f" + p.System + "\x1f" + user
}
