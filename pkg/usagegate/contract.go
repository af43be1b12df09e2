package usagegate

import (
	"context"

	"github.com/heritage-labs/usagemeter/pkg/usageclient"
)

// Checker decides whether a tool may run. *usageclient.Client satisfies it.
type Checker interface {
	Check(ctx context.Context, category string) (usageclient.Decision, error)
}

// Recorder counts a completed tool run. *usageclient.Client satisfies it.
type Recorder interface {
	Record(ctx context.Context, category string) (usageclient.RecordResult, error)
}

// Work is the metered tool body. It must return nil only after its result is stored.
type Work func(ctx context.Context) error
