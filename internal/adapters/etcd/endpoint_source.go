package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Meesho/BharatMLStack/proxy-pool/internal/egress"
)

// EndpointSource reads egress endpoints stored as JSON values under a key
// prefix and pushes updates into a rotation. It is the dynamic alternative
// to file-based subscription providers.
type EndpointSource struct {
	client *Client
	prefix string
}

func NewEndpointSource(client *Client, prefix string) *EndpointSource {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &EndpointSource{client: client, prefix: prefix}
}

// Load fetches every endpoint currently registered under the prefix.
// Individual malformed values are logged and skipped.
func (s *EndpointSource) Load(ctx context.Context) ([]egress.Endpoint, error) {
	opCtx, cancel := s.client.OpContext(ctx)
	defer cancel()

	resp, err := s.client.Raw().Get(opCtx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("listing endpoints under %s: %w", s.prefix, err)
	}

	out := make([]egress.Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep egress.Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			log.Error().Err(err).Str("key", string(kv.Key)).Msg("invalid endpoint value, skipping")
			continue
		}
		if ep.Name == "" {
			ep.Name = strings.TrimPrefix(string(kv.Key), s.prefix)
		}
		out = append(out, ep)
	}
	return out, nil
}

// Watch follows changes under the prefix and mirrors them into the
// rotation until ctx is cancelled. Intended to run on its own goroutine.
func (s *EndpointSource) Watch(ctx context.Context, rotation *egress.Rotation) {
	ch := s.client.Raw().Watch(ctx, s.prefix, clientv3.WithPrefix())
	log.Info().Str("prefix", s.prefix).Msg("watching egress endpoint registry")

	for resp := range ch {
		if err := resp.Err(); err != nil {
			log.Error().Err(err).Str("prefix", s.prefix).Msg("endpoint watch error")
			continue
		}
		for _, ev := range resp.Events {
			key := string(ev.Kv.Key)
			switch ev.Type {
			case clientv3.EventTypePut:
				var ep egress.Endpoint
				if err := json.Unmarshal(ev.Kv.Value, &ep); err != nil {
					log.Error().Err(err).Str("key", key).Msg("invalid endpoint update, skipping")
					continue
				}
				if ep.Name == "" {
					ep.Name = strings.TrimPrefix(key, s.prefix)
				}
				rotation.Add([]egress.Endpoint{ep})
				log.Info().Str("endpoint", ep.Name).Msg("endpoint registered")
			case clientv3.EventTypeDelete:
				name := strings.TrimPrefix(key, s.prefix)
				rotation.Remove([]string{name})
				log.Info().Str("endpoint", name).Msg("endpoint removed")
			}
		}
	}
}

// Replenisher adapts Load into the rotation's replenish callback.
func (s *EndpointSource) Replenisher() func(*egress.Rotation) error {
	return func(r *egress.Rotation) error {
		eps, err := s.Load(context.Background())
		if err != nil {
			return err
		}
		r.Add(eps)
		return nil
	}
}
