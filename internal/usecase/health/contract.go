package health

import "context"

// DBPinger checks counter store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}
