// Package filter evaluates CEL expressions against audio asset records.
//
// Expressions see the asset fields as variables, e.g.
//
//	provider == "elevenlabs" && duration_ms > 1500
//	hash.startsWith("ab") || created_ts >= now - 86400
package filter

import (
	"time"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/store"
)

// MaxExpressionLength bounds the accepted filter source.
const MaxExpressionLength = 1024

var assetEnv = mustNewAssetEnv()

func mustNewAssetEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("hash", cel.StringType),
		cel.Variable("bucket", cel.StringType),
		cel.Variable("object_key", cel.StringType),
		cel.Variable("content_type", cel.StringType),
		cel.Variable("provider", cel.StringType),
		cel.Variable("voice_id", cel.StringType),
		cel.Variable("model_id", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("duration_ms", cel.IntType),
		cel.Variable("created_ts", cel.IntType),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		panic(err)
	}
	return env
}

// Filter is a compiled, boolean-valued expression.
type Filter struct {
	source  string
	program cel.Program
}

// Parse compiles expr. Expressions that do not evaluate to a bool are rejected.
func Parse(expr string) (*Filter, error) {
	if expr == "" {
		return nil, errors.New("filter expression is empty")
	}
	if len(expr) > MaxExpressionLength {
		return nil, errors.Errorf("filter expression exceeds %d bytes", MaxExpressionLength)
	}

	ast, issues := assetEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "invalid filter expression")
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("filter expression must be boolean, got %s", ast.OutputType())
	}

	program, err := assetEnv.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build filter program")
	}
	return &Filter{source: expr, program: program}, nil
}

func (f *Filter) String() string {
	return f.source
}

// Match evaluates the filter against one asset.
func (f *Filter) Match(asset *store.AudioAsset) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"hash":         asset.Hash,
		"bucket":       asset.Bucket,
		"object_key":   asset.ObjectKey,
		"content_type": asset.ContentType,
		"provider":     asset.Provider,
		"voice_id":     asset.VoiceID,
		"model_id":     asset.ModelID,
		"size":         asset.Size,
		"duration_ms":  asset.DurationMs,
		"created_ts":   asset.CreatedTs,
		"now":          time.Now().Unix(),
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to evaluate filter on asset %s", asset.Hash)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("filter returned %T", out.Value())
	}
	return matched, nil
}

// Apply returns the assets the filter matches, preserving order.
func (f *Filter) Apply(assets []*store.AudioAsset) ([]*store.AudioAsset, error) {
	result := make([]*store.AudioAsset, 0, len(assets))
	for _, asset := range assets {
		matched, err := f.Match(asset)
		if err != nil {
			return nil, err
		}
		if matched {
			result = append(result, asset)
		}
	}
	return result, nil
}
