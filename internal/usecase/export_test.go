package usecase

import (
	"context"
	"time"
)

func (g *GenerationUseCase) SetSleep(fn func(ctx context.Context, d time.Duration) error) { g.sleep = fn }

func (g *GenerationUseCase) SetClock(fn func() time.Time) { g.now = fn }

func (r *RetentionUseCase) SetClock(fn func() time.Time) { r.now = fn }
