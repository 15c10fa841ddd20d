package bot

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/chattobot/internal/config"
	"github.com/alfredjeanlab/chattobot/internal/store"
	"github.com/alfredjeanlab/chattobot/internal/store/postgres"
	"github.com/alfredjeanlab/chattobot/internal/store/redis"
)

// OpenStore opens the cursor store selected by stateURL.
func OpenStore(ctx context.Context, stateURL string) (store.CursorStore, error) {
	scheme, err := config.StateScheme(stateURL)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "postgres":
		s, err := postgres.New(stateURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres state: %w", err)
		}
		return s, nil
	case "redis":
		s, err := redis.New(ctx, stateURL, redis.DefaultKey)
		if err != nil {
			return nil, fmt.Errorf("opening redis state: %w", err)
		}
		return s, nil
	default:
		return store.NewFileStore(config.StatePath(stateURL)), nil
	}
}
