package limiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

func ExampleService_Consume() {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	svc := NewService(NewMemoryStore(),
		WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.DiscardHandler)),
	)

	var admin, user Identity
	admin[0], user[0] = 1, 2

	if _, err := svc.Initialize(ctx, admin, Config{MaxRequests: 2, WindowSeconds: 60, BurstLimit: 2}); err != nil {
		panic(err)
	}
	if _, err := svc.Register(ctx, user); err != nil {
		panic(err)
	}

	for i := 0; i < 3; i++ {
		dec, err := svc.Consume(ctx, user, user)
		fmt.Println(dec.Allow, dec.Remaining, errors.Is(err, ErrRateLimitExceeded))
	}
	// Output:
	// true 1 false
	// true 0 false
	// false 0 true
}
