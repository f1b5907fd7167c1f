package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"bullrush.com/pkg/logger"
)

// Go runs fn in a goroutine that logs instead of crashing on panic.
func Go(fn func()) {
	go func() {
		defer recoverAndLog(context.Background())
		fn()
	}()
}

// GoCtx is Go with a context carried into fn and into the panic log.
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverAndLog(ctx)
		fn(ctx)
	}()
}

func recoverAndLog(ctx context.Context) {
	r := recover()
	if r == nil {
		return
	}
	stack := string(debug.Stack())
	if logger.Log != nil {
		logger.Error(ctx, "🚨 GOROUTINE PANIC RECOVERED",
			zap.Any("panic", r),
			zap.String("stack", stack),
		)
		return
	}
	fmt.Printf("🚨 GOROUTINE PANIC: %v\nStack: %s\n", r, stack)
}
