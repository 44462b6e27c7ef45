package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vertical-shop/pkg/redis"
)

type exampleStore struct {
	seen map[string]bool
}

func (s *exampleStore) Get(_ context.Context, key string) (string, error) {
	if !s.seen[key] {
		return "", redis.ErrKeyNotFound
	}
	return "1", nil
}

func (s *exampleStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *exampleStore) IdempotencyKey(scope, id string) string {
	return "vshop:idempotency:" + scope + ":" + id
}

func ExampleManager_Run() {
	ctx := context.Background()
	manager, _ := NewManager(&exampleStore{seen: map[string]bool{}}, 7*24*time.Hour)
	eventID := uuid.MustParse("0192a5f0-7c1e-7b3a-9f00-6a4b2c3d4e5f")

	for i := 0; i < 2; i++ {
		skipped, _ := manager.Run(ctx, "inventory", eventID, func(context.Context) error {
			fmt.Println("processing event")
			return nil
		})
		if skipped {
			fmt.Println("already processed")
		}
	}
	// Output:
	// processing event
	// already processed
}
