package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
)

// Store persists host records in Redis, one JSON value per hostname
// plus a set of all hostnames.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// SaveHost stores a host record, replacing any previous one.
func (s *Store) SaveHost(ctx context.Context, host domain.Host) error {
	data, err := json.Marshal(host)
	if err != nil {
		return fmt.Errorf("failed to marshal host: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, HostKey(host.Hostname), data, 0)
		pipe.SAdd(ctx, AllHostsKey(), host.Hostname)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save host %s: %w", host.Hostname, err)
	}

	return nil
}

// GetAllHosts retrieves every stored host. Records that vanished or no
// longer decode are skipped.
func (s *Store) GetAllHosts(ctx context.Context) ([]domain.Host, error) {
	names, err := s.client.SMembers(ctx, AllHostsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostnames: %w", err)
	}

	if len(names) == 0 {
		return []domain.Host{}, nil
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = HostKey(name)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get hosts: %w", err)
	}

	hosts := make([]domain.Host, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var host domain.Host
		if err := json.Unmarshal([]byte(raw), &host); err != nil {
			continue
		}
		host.Hostname = names[i]
		hosts = append(hosts, host)
	}

	return hosts, nil
}

// DeleteHost removes a host record
func (s *Store) DeleteHost(ctx context.Context, hostname string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, HostKey(hostname))
		pipe.SRem(ctx, AllHostsKey(), hostname)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete host %s: %w", hostname, err)
	}

	return nil
}
