// Package fact はAIによるユーザー固有のファクト生成を提供する。
// 1回のリクエストにつき生成エンドポイントを1回だけ呼び出し、リトライもキャッシュもしない。
package fact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/qredentials/internal/metrics"
)

// ErrMissingFact は応答にfactフィールドが含まれない場合のエラー。
var ErrMissingFact = errors.New("response has no fact field")

// Generator はプロンプトを1回送信し、JSON文字列の応答を返す生成エンドポイント。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationError は生成の失敗を表す。
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("fact generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Result はファクト生成の結果。FactとErrのどちらか一方が設定される。
type Result struct {
	Fact string
	Err  error
}

// OK は生成に成功したかを返す。
func (r Result) OK() bool {
	return r.Err == nil
}

// OrFallback は成功時はファクトを、失敗時はfallbackを返す。
func (r Result) OrFallback(fallback string) string {
	if r.Err != nil {
		return fallback
	}
	return r.Fact
}

type response struct {
	Fact *string `json:"fact"`
}

// Flow はファクト生成フロー。
type Flow struct {
	generator Generator
	metrics   metrics.MetricsCollector
	timeout   time.Duration
	now       func() time.Time
}

// NewFlow はFlowを生成する。timeoutが0以下の場合は呼び出し元のコンテキストのみで打ち切る。
func NewFlow(generator Generator, collector metrics.MetricsCollector, timeout time.Duration) *Flow {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Flow{
		generator: generator,
		metrics:   collector,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Request は入力からプロンプトを組み立て、生成エンドポイントを1回呼び出す。
// 応答のテキストは検証も切り詰めもしない。
func (f *Flow) Request(ctx context.Context, in Input) Result {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := f.now()
	result := f.request(ctx, in)
	elapsed := f.now().Sub(start)

	outcome := "success"
	switch {
	case result.Err == nil:
	case errors.Is(result.Err, context.Canceled):
		outcome = "canceled"
	case errors.Is(result.Err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	f.metrics.RecordFactRequest(outcome, elapsed)

	if result.Err != nil {
		slog.Warn("fact generation failed",
			slog.String("user_id", in.UserID),
			slog.String("outcome", outcome),
			slog.String("error", result.Err.Error()),
		)
	}
	return result
}

func (f *Flow) request(ctx context.Context, in Input) Result {
	prompt, err := RenderPrompt(in)
	if err != nil {
		return Result{Err: &GenerationError{Err: err}}
	}

	raw, err := f.generator.Generate(ctx, prompt)
	if err != nil {
		return Result{Err: &GenerationError{Err: err}}
	}

	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Result{Err: &GenerationError{Err: fmt.Errorf("failed to decode response: %w", err)}}
	}
	if resp.Fact == nil {
		return Result{Err: &GenerationError{Err: ErrMissingFact}}
	}
	return Result{Fact: *resp.Fact}
}
