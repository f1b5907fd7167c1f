package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/metrics"
	"bullrush.com/pkg/xerr"
)

type sagaStep struct {
	name       string
	do         func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// Saga runs steps in order. When a step fails, the compensations of the steps
// that already completed run in reverse order. A failing first step returns its
// own error; a later one is reported as an integrity error wrapping it.
type Saga struct {
	name  string
	steps []sagaStep
}

func NewSaga(name string) *Saga {
	return &Saga{name: name}
}

// Step appends a forward action. compensate may be nil.
func (s *Saga) Step(name string, do, compensate func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, sagaStep{name: name, do: do, compensate: compensate})
	return s
}

func (s *Saga) Run(ctx context.Context) error {
	for i, st := range s.steps {
		if err := st.do(ctx); err != nil {
			logger.Warn(ctx, "saga step failed, compensating",
				zap.String("saga", s.name),
				zap.String("step", st.name),
				zap.Error(err),
			)
			s.compensate(ctx, i-1)
			if i == 0 {
				return err
			}
			return xerr.Wrap(err, xerr.KindIntegrity, fmt.Sprintf("%s: %s failed", s.name, st.name))
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, from int) {
	// compensations must run even if the caller has gone away
	ctx = context.WithoutCancel(ctx)
	for i := from; i >= 0; i-- {
		st := s.steps[i]
		if st.compensate == nil {
			continue
		}
		if err := st.compensate(ctx); err != nil {
			metrics.SagaCompensationFailures.WithLabelValues(s.name, st.name).Inc()
			logger.Error(ctx, "saga compensation failed, manual repair required",
				zap.String("saga", s.name),
				zap.String("step", st.name),
				zap.Error(err),
			)
		}
	}
}
