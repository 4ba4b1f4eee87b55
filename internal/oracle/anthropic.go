package oracle

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/mseverin/taskwright/internal/correction"
	"github.com/mseverin/taskwright/pkg/models"
)

const decompositionPrompt = `Break the following goal into the smallest set of
concrete, independently executable tasks. Respond with ONLY a JSON array, no
prose, where each element is:

  {"description": "<what to do>", "depends_on": ["<index or description>", ...]}

Dependency references are zero-based indexes into the array or the exact
description of an earlier task. Do not invent dependencies that are not
strictly required.

Goal: %s`

const revisionPrompt = `A task failed and will be retried. Propose a revised
approach. Respond with ONLY the revised approach text, no preamble.

Task: %s
Current approach: %s
Attempt %d failed with: %s`

// AnthropicConfig configures the LLM-backed oracle.
type AnthropicConfig struct {
	// Model is the model to use; empty selects a default.
	Model anthropic.Model
	// APIKey overrides the ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region, e.g. "us-west-2".
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// MaxTokens caps the response size; 0 uses a default.
	MaxTokens int64
}

// AnthropicOracle proposes task breakdowns via the Anthropic Messages API.
type AnthropicOracle struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicOracle creates an oracle from the given configuration.
func NewAnthropicOracle(cfg AnthropicConfig) (*AnthropicOracle, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &AnthropicOracle{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// translateModelForBedrock converts standard model names to Bedrock
// cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bm, ok := bedrockModels[model]; ok {
		return anthropic.Model(bm)
	}
	return model
}

// Propose implements Oracle.
func (o *AnthropicOracle) Propose(ctx context.Context, goal string) ([]models.RawTaskSpec, error) {
	text, err := o.complete(ctx, fmt.Sprintf(decompositionPrompt, goal))
	if err != nil {
		return nil, err
	}
	specs, err := ParseProposal(text)
	if err != nil {
		return nil, fmt.Errorf("parse decomposition response: %w", err)
	}
	return specs, nil
}

// complete issues a single-turn message and concatenates the text blocks.
func (o *AnthropicOracle) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	return text.String(), nil
}

// Reviser adapts the oracle to the correction interface so failed tasks get
// an LLM-revised approach instead of the heuristic ladder.
type Reviser struct {
	oracle *AnthropicOracle
}

// NewReviser creates an oracle-backed reviser.
func NewReviser(o *AnthropicOracle) *Reviser {
	return &Reviser{oracle: o}
}

// Revise implements correction.Reviser. On oracle failure it degrades to the
// heuristic ladder so a retry never blocks on the oracle.
func (r *Reviser) Revise(ctx context.Context, fc correction.FailureContext) (correction.Revision, error) {
	prompt := fmt.Sprintf(revisionPrompt, fc.Description, fc.Approach, fc.Attempt, fc.Error)
	text, err := r.oracle.complete(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return correction.NewHeuristicReviser().Revise(ctx, fc)
	}
	return correction.Revision{
		Strategy: "oracle_revision",
		Approach: strings.TrimSpace(text),
	}, nil
}
