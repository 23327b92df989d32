package dream

import (
	"context"
	"fmt"

	"dreamloop/internal/config"
	"dreamloop/internal/imaging"
)

// Transformer turns one pixel array into another. Implementations may return
// values outside [0, 255]; callers clamp before encoding.
type Transformer interface {
	Transform(ctx context.Context, in *imaging.Pixels) (*imaging.Pixels, error)
}

// TransformerFunc adapts a plain function to Transformer.
type TransformerFunc func(ctx context.Context, in *imaging.Pixels) (*imaging.Pixels, error)

func (f TransformerFunc) Transform(ctx context.Context, in *imaging.Pixels) (*imaging.Pixels, error) {
	return f(ctx, in)
}

// Passthrough returns a copy of its input.
type Passthrough struct{}

func (Passthrough) Transform(ctx context.Context, in *imaging.Pixels) (*imaging.Pixels, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in.Clone(), nil
}

// FromConfig builds the transformer selected by cfg.Transform.Mode.
func FromConfig(cfg *config.Config, opts ...Option) (Transformer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dream: config required")
	}
	switch cfg.Transform.Mode {
	case config.TransformModePassthrough:
		return Passthrough{}, nil
	case config.TransformModeCommand:
		return NewCommand(cfg.Transform.Command, cfg.Transform.Args, cfg.TransformTimeout(), opts...)
	default:
		return nil, fmt.Errorf("dream: unsupported transform mode %q", cfg.Transform.Mode)
	}
}
