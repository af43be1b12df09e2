// Package usageclient keeps a display copy of a user's usage snapshot.
//
// Client fetches GET /v1/usage from the usagemeter API and also posts checks
// and records for the usagegate package. Cache wraps any
// Fetcher, refreshes on a fixed interval and on Invalidate, coalesces
// concurrent refreshes and keeps the last good snapshot when a fetch fails.
//
//	client := usageclient.NewClient("https://api.example.com",
//	    usageclient.WithToken(func(ctx context.Context) (string, error) { return session.Token(), nil }),
//	)
//	cache, err := usageclient.NewCache(client,
//	    usageclient.WithInterval(30*time.Second),
//	    usageclient.WithOnUpdate(render),
//	)
//	if err != nil {
//	    return err
//	}
//	go cache.Run(ctx)
//
//	// after a tool finishes:
//	cache.Invalidate()
package usageclient
