package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// Registry shares service records between processes.
//
// Layout under prefix:
//
//	<prefix>:seq           registration counter
//	<prefix>:names         set of known service names
//	<prefix>:name:<name>   sorted set of record ids scored by registration order
//	<prefix>:record:<id>   hash holding the record, expiring after ttl when set
type Registry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

func NewRegistry(client *redis.Client, prefix string, ttl time.Duration) *Registry {
	return &Registry{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (r *Registry) seqKey() string             { return r.prefix + ":seq" }
func (r *Registry) namesKey() string           { return r.prefix + ":names" }
func (r *Registry) nameKey(name string) string { return r.prefix + ":name:" + name }
func (r *Registry) recordKey(id string) string { return r.prefix + ":record:" + id }

func (r *Registry) Register(ctx context.Context, name, location string, metadata map[string]string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: service name is required", domain.ErrValidation)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("could not marshal metadata: %w", err)
	}

	seq, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return "", transport("register", err)
	}

	id := r.newID()
	key := r.recordKey(id)
	// The record and its indexes land together or not at all.
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"name", name,
			"location", location,
			"metadata", string(meta),
			"registered_at", r.now().UTC().Format(time.RFC3339Nano),
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		pipe.ZAdd(ctx, r.nameKey(name), redis.Z{Score: float64(seq), Member: id})
		pipe.SAdd(ctx, r.namesKey(), name)
		return nil
	})
	if err != nil {
		return "", transport("register", err)
	}
	return id, nil
}

// Unregister removes the record; unknown or expired ids are ignored.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	key := r.recordKey(id)
	name, err := r.client.HGet(ctx, key, "name").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return transport("unregister", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, r.nameKey(name), id)
		return nil
	})
	if err != nil {
		return transport("unregister", err)
	}
	return nil
}

func (r *Registry) Lookup(ctx context.Context, name string) (domain.ServiceRecord, error) {
	records, err := r.Records(ctx, name)
	if err != nil {
		return domain.ServiceRecord{}, err
	}
	if len(records) == 0 {
		return domain.ServiceRecord{}, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, name)
	}
	return records[0], nil
}

// Records returns the live records for name in registration order.
// An empty name lists the records of every known service.
func (r *Registry) Records(ctx context.Context, name string) ([]domain.ServiceRecord, error) {
	if name == "" {
		names, err := r.client.SMembers(ctx, r.namesKey()).Result()
		if err != nil {
			return nil, transport("records", err)
		}
		var all []domain.ServiceRecord
		for _, n := range names {
			records, err := r.Records(ctx, n)
			if err != nil {
				return nil, err
			}
			all = append(all, records...)
		}
		return all, nil
	}

	ids, err := r.client.ZRange(ctx, r.nameKey(name), 0, -1).Result()
	if err != nil {
		return nil, transport("lookup", err)
	}

	records := make([]domain.ServiceRecord, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		fields, err := r.client.HGetAll(ctx, r.recordKey(id)).Result()
		if err != nil {
			return nil, transport("lookup", err)
		}
		if len(fields) == 0 {
			stale = append(stale, id)
			continue
		}
		rec, err := decodeRecord(id, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if len(stale) > 0 {
		// Expired hashes leave their id behind in the index.
		if err := r.client.ZRem(ctx, r.nameKey(name), stale...).Err(); err != nil {
			return nil, transport("lookup", err)
		}
	}
	return records, nil
}

// TTL returns the record lifetime, 0 when records never expire.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Heartbeat extends the record's lifetime by ttl.
func (r *Registry) Heartbeat(ctx context.Context, id string) error {
	if r.ttl <= 0 {
		return nil
	}
	ok, err := r.client.Expire(ctx, r.recordKey(id), r.ttl).Result()
	if err != nil {
		return transport("heartbeat", err)
	}
	if !ok {
		return fmt.Errorf("%w: record %s", domain.ErrServiceNotFound, id)
	}
	return nil
}

func decodeRecord(id string, fields map[string]string) (domain.ServiceRecord, error) {
	rec := domain.ServiceRecord{
		ID:       id,
		Name:     fields["name"],
		Location: fields["location"],
		Metadata: map[string]string{},
	}
	if raw := fields["metadata"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &rec.Metadata); err != nil {
			return domain.ServiceRecord{}, fmt.Errorf("could not decode metadata of %s: %w", id, err)
		}
	}
	if raw := fields["registered_at"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.ServiceRecord{}, fmt.Errorf("could not decode registered_at of %s: %w", id, err)
		}
		rec.RegisteredAt = ts
	}
	return rec, nil
}

func transport(op string, err error) error {
	return fmt.Errorf("%w: registry %s: %w", domain.ErrTransport, op, err)
}
