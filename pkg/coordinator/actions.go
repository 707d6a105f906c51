package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Action is a chain-mutating step the coordinator may take for a swap.
// The action store remembers which have been submitted so retries and
// restarts never double-submit.
type Action string

const (
	ActionCreateDst Action = "create-dst"
	ActionClaimSrc  Action = "claim-src"
	ActionClaimDst  Action = "claim-dst"
	ActionCancelSrc Action = "cancel-src"
	ActionCancelDst Action = "cancel-dst"
)

type ActionStore interface {
	// StoreAction keeps track of an action having been submitted for the
	// swap of the given order hash.
	StoreAction(action Action, orderHash string) error

	// CheckAction returns whether an action was submitted previously.
	CheckAction(action Action, orderHash string) (bool, error)
}

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (ActionStore, error) {
	parsedURL, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	redisPassword, _ := parsedURL.User.Password()
	client := redis.NewClient(&redis.Options{
		Addr:     parsedURL.Host,
		Password: redisPassword,
		DB:       0, // Use default DB.
	})
	return redisStore{client: client}, nil
}

func (rs redisStore) StoreAction(action Action, orderHash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return rs.client.Set(ctx, actionKey(action, orderHash), true, 0).Err()
}

func (rs redisStore) CheckAction(action Action, orderHash string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := rs.client.Get(ctx, actionKey(action, orderHash)).Bool()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return ok, err
}

func actionKey(action Action, orderHash string) string {
	return fmt.Sprintf("%v-%v", action, orderHash)
}

type inMemStore struct {
	mu      sync.Mutex
	actions map[string]struct{}
}

// NewInMemStore is the non-durable ActionStore used for local mode and
// tests.
func NewInMemStore() ActionStore {
	return &inMemStore{actions: map[string]struct{}{}}
}

func (s *inMemStore) StoreAction(action Action, orderHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[actionKey(action, orderHash)] = struct{}{}
	return nil
}

func (s *inMemStore) CheckAction(action Action, orderHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.actions[actionKey(action, orderHash)]
	return ok, nil
}
