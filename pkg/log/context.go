// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type ctxKey struct{}

// CtxWith returns a copy of ctx that carries logger. FromCtx recovers it.
func CtxWith(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromCtx returns the logger carried by ctx, or the root logger. If ctx
// carries a tracing span, the returned logger also logs to the span. The
// result is never nil.
func FromCtx(ctx context.Context) Logger {
	if ctx == nil {
		return Root()
	}
	l, ok := ctx.Value(ctxKey{}).(Logger)
	if !ok {
		l = Root()
	}
	if _, ok := l.(Span); ok {
		return l
	}
	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return l
	}
	// Skip the Span wrapper frame when reporting callers.
	if zl, ok := l.(interface{ WithOptions(...zap.Option) Logger }); ok {
		l = zl.WithOptions(zap.AddCallerSkip(1))
	}
	return Span{Logger: l, Span: span}
}
