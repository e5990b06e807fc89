package integrations

import (
    "context"
    "io"

    "dronenav/internal/model"
    "dronenav/internal/opt"
)

// ProblemSource defines the minimal interface for planning problem integrations.
type ProblemSource interface {
    Name() string
    Fetch(ctx context.Context) (model.ProblemIn, error)
}

// CommandSink receives the drone command log of a finished plan.
type CommandSink interface {
    WriteCommands(w io.Writer, actions []opt.Action) error
}

// Static serves a problem that is already in memory (API uploads).
type Static struct {
    Label   string
    Problem model.ProblemIn
}

func (s Static) Name() string { return s.Label }

func (s Static) Fetch(ctx context.Context) (model.ProblemIn, error) {
    if err := ctx.Err(); err != nil {
        return model.ProblemIn{}, err
    }
    return s.Problem, nil
}
