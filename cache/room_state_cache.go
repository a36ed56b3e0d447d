package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"RoomFM/model"

	"github.com/redis/go-redis/v9"
)

const (
	roomPlaybackKey = "room:%s:playback"    // String: PlaybackState JSON
	roomQueueKey    = "room:%s:queue"       // Sorted Set: QueueItem JSON scored by position
	roomPresenceKey = "room:%s:presence:%s" // String: listener heartbeat key (roomID, listenerID)
	roomPresenceSet = "room:%s:listeners"   // Set: listener ids

	roomTTL     = 24 * time.Hour
	presenceTTL = 60 * time.Second
)

// RoomStateCache is the Redis-backed hot state for rooms: playback state,
// queue, and listener presence. It satisfies the engine's state store; storage
// of record for rooms and catalog stays in MySQL.
type RoomStateCache struct {
	client *redis.Client
}

// NewRoomStateCache creates a room state cache on the given client.
func NewRoomStateCache(client *redis.Client) *RoomStateCache {
	return &RoomStateCache{client: client}
}

// ========== Playback state ==========

// LoadRoomState fetches the persisted playback state, (nil, nil) when the room
// has none yet.
func (c *RoomStateCache) LoadRoomState(ctx context.Context, roomID string) (*model.PlaybackState, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	key := fmt.Sprintf(roomPlaybackKey, roomID)
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var state model.PlaybackState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playback state: %w", err)
	}
	return &state, nil
}

// SaveRoomState replaces the persisted playback state and refreshes the room
// TTL.
func (c *RoomStateCache) SaveRoomState(ctx context.Context, roomID string, state *model.PlaybackState) error {
	if c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal playback state: %w", err)
	}

	key := fmt.Sprintf(roomPlaybackKey, roomID)
	return c.client.Set(ctx, key, data, roomTTL).Err()
}

// ========== Queue ==========

// LoadQueue fetches the queue in position order.
func (c *RoomStateCache) LoadQueue(ctx context.Context, roomID string) ([]model.QueueItem, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	key := fmt.Sprintf(roomQueueKey, roomID)
	result, err := c.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	items := make([]model.QueueItem, 0, len(result))
	for _, data := range result {
		var item model.QueueItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// SaveQueue atomically replaces the whole queue. The engine renumbers on every
// mutation, so a full rewrite keeps positions and members in lockstep.
func (c *RoomStateCache) SaveQueue(ctx context.Context, roomID string, items []model.QueueItem) error {
	if c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	key := fmt.Sprintf(roomQueueKey, roomID)

	members := make([]redis.Z, 0, len(items))
	for i := range items {
		data, err := json.Marshal(&items[i])
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		members = append(members, redis.Z{
			Score:  float64(items[i].Position),
			Member: data,
		})
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
		pipe.Expire(ctx, key, roomTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ========== Listener presence ==========

// TouchPresence records a listener heartbeat. A listener with no heartbeat
// inside presenceTTL counts as gone.
func (c *RoomStateCache) TouchPresence(ctx context.Context, roomID, listenerID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	presenceKey := fmt.Sprintf(roomPresenceKey, roomID, listenerID)
	setKey := fmt.Sprintf(roomPresenceSet, roomID)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, presenceKey, time.Now().UnixMilli(), presenceTTL)
	pipe.SAdd(ctx, setKey, listenerID)
	pipe.Expire(ctx, setKey, roomTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemovePresence drops a listener's heartbeat and set membership.
func (c *RoomStateCache) RemovePresence(ctx context.Context, roomID, listenerID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	presenceKey := fmt.Sprintf(roomPresenceKey, roomID, listenerID)
	setKey := fmt.Sprintf(roomPresenceSet, roomID)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, presenceKey)
	pipe.SRem(ctx, setKey, listenerID)
	_, err := pipe.Exec(ctx)
	return err
}

// ActiveListeners returns the ids with a live heartbeat, pruning expired
// entries from the set as a side effect.
func (c *RoomStateCache) ActiveListeners(ctx context.Context, roomID string) ([]string, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	setKey := fmt.Sprintf(roomPresenceSet, roomID)
	members, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []string{}, nil
	}

	active := make([]string, 0, len(members))
	expired := make([]interface{}, 0)
	for _, listenerID := range members {
		presenceKey := fmt.Sprintf(roomPresenceKey, roomID, listenerID)
		exists, err := c.client.Exists(ctx, presenceKey).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			active = append(active, listenerID)
		} else {
			expired = append(expired, listenerID)
		}
	}

	if len(expired) > 0 {
		c.client.SRem(ctx, setKey, expired...)
	}
	return active, nil
}

// ClearRoom removes every cached key for the room.
func (c *RoomStateCache) ClearRoom(ctx context.Context, roomID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	keys := []string{
		fmt.Sprintf(roomPlaybackKey, roomID),
		fmt.Sprintf(roomQueueKey, roomID),
		fmt.Sprintf(roomPresenceSet, roomID),
	}
	return c.client.Del(ctx, keys...).Err()
}
