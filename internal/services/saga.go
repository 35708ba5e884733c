package services

import (
	"context"

	"promptflows/backend/internal/logging"
)

type sagaStep struct {
	name       string
	action     func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga runs ordered actions without a transaction. When an action fails,
// the compensations of every earlier completed step run in reverse order
// before the action's error is returned.
type saga struct {
	op      string
	log     *logging.Logger
	metrics *engineMetrics
	steps   []sagaStep
}

func (s *Service) newSaga(op string) *saga {
	return &saga{op: op, log: s.log, metrics: s.metrics}
}

// add appends a step. compensate may be nil.
func (sg *saga) add(name string, action, compensate func(ctx context.Context) error) *saga {
	sg.steps = append(sg.steps, sagaStep{name: name, action: action, compensate: compensate})
	return sg
}

func (sg *saga) run(ctx context.Context) error {
	for i, step := range sg.steps {
		if err := step.action(ctx); err != nil {
			sg.log.Warn("saga step failed, compensating", "op", sg.op, "step", step.name, "error", err)
			sg.rollback(ctx, i)
			return err
		}
	}
	return nil
}

// rollback compensates steps [0, failed) in reverse. It detaches from ctx
// cancellation so a dropped request still cleans up.
func (sg *saga) rollback(ctx context.Context, failed int) {
	if failed == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	sg.metrics.compensated(ctx, sg.op)
	for i := failed - 1; i >= 0; i-- {
		step := sg.steps[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			sg.log.Error("compensation failed", "op", sg.op, "step", step.name, "error", err)
		}
	}
}
