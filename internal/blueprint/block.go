package blueprint

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/events"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/graphql"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/safety"
)

// BlockName identifies the block in emitted events.
const BlockName = "createStackFromBlueprint"

// Block creates stacks from blueprints.
type Block struct {
	exec    graphql.Executor
	filter  *safety.Filter
	emitter events.Emitter
	logger  zerolog.Logger
}

// BlockOption configures a Block.
type BlockOption func(*Block)

// WithFilter restricts the blueprints the block may instantiate.
func WithFilter(f *safety.Filter) BlockOption {
	return func(b *Block) { b.filter = f }
}

// WithEmitter sets where outputs are emitted. Without one, Run only returns
// them.
func WithEmitter(e events.Emitter) BlockOption {
	return func(b *Block) { b.emitter = e }
}

// WithLogger sets the block logger.
func WithLogger(l zerolog.Logger) BlockOption {
	return func(b *Block) { b.logger = l }
}

// NewBlock returns a Block running its mutation through exec.
func NewBlock(exec graphql.Executor, opts ...BlockOption) *Block {
	b := &Block{exec: exec, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run creates a stack from in.BlueprintID using the credentials in
// appConfig, emits the resulting ids and returns them.
func (b *Block) Run(ctx context.Context, appConfig map[string]any, in Input) (Output, error) {
	vars, err := BuildVariables(in)
	if err != nil {
		return Output{}, err
	}
	if err := b.filter.Check(in.BlueprintID); err != nil {
		return Output{}, fmt.Errorf("blueprint: %w", err)
	}

	creds, err := graphql.ExtractCredentials(appConfig)
	if err != nil {
		return Output{}, err
	}

	log := b.logger.With().Str("blueprint_id", in.BlueprintID).Logger()
	log.Debug().Int("template_inputs", len(in.Inputs)).Msg("creating stack from blueprint")

	res, err := graphql.Query[struct {
		BlueprintCreateStack *Output `json:"blueprintCreateStack"`
	}](ctx, b.exec, creds, createStackMutation, vars)
	if err != nil {
		log.Warn().Err(err).Msg("stack creation failed")
		return Output{}, err
	}
	if res.BlueprintCreateStack == nil {
		return Output{}, fmt.Errorf("%w: blueprintCreateStack missing from response", graphql.ErrProtocol)
	}

	out := *res.BlueprintCreateStack
	if out.StackIDs == nil {
		out.StackIDs = []string{}
	}
	if out.RunIDs == nil {
		out.RunIDs = []string{}
	}
	log.Info().Strs("stack_ids", out.StackIDs).Strs("run_ids", out.RunIDs).Msg("stack created from blueprint")

	if b.emitter != nil {
		if err := b.emitter.Emit(ctx, events.New(BlockName, out)); err != nil {
			return out, fmt.Errorf("blueprint: emit output: %w", err)
		}
	}
	return out, nil
}
