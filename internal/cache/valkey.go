package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

// generationTTL bounds how long an idle user's generation counter is kept.
const generationTTL = 24 * time.Hour

// setIfGeneration writes the hash only while the generation key still holds
// ARGV[1]. A missing generation key reads as 0.
var setIfGeneration = valkey.NewLuaScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
  return 0
end
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// Valkey keeps one hash per user ("keyward:<namespace>:snapshot:{<username>}")
// whose fields are action IDs, next to a generation counter
// ("keyward:<namespace>:gen:{<username>}"). The hash tag keeps both keys in
// one cluster slot. The whole hash expires after ttl.
type Valkey struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkey connects to Valkey and verifies the connection.
func NewValkey(addr, namespace string, ttl time.Duration) (*Valkey, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pingCmd := client.B().Ping().Build()
	if err := client.Do(ctx, pingCmd).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	prefix := "keyward:"
	if namespace != "" {
		prefix = "keyward:" + namespace + ":"
	}

	slog.Info("Initialized Valkey snapshot cache", "address", addr, "key_prefix", prefix, "ttl", ttl.String())
	return &Valkey{client: client, prefix: prefix, ttl: ttl}, nil
}

func (v *Valkey) key(username string) string {
	return v.prefix + "snapshot:{" + username + "}"
}

func (v *Valkey) genKey(username string) string {
	return v.prefix + "gen:{" + username + "}"
}

func (v *Valkey) Get(ctx context.Context, username string, actionIDs []string) (map[string]Entry, error) {
	if len(actionIDs) == 0 {
		return nil, nil
	}

	cmd := v.client.B().Hmget().Key(v.key(username)).Field(actionIDs...).Build()
	values, err := v.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("hmget: %w", err)
	}

	hits := make(map[string]Entry, len(values))
	for i, msg := range values {
		raw, err := msg.ToString()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				continue
			}
			return nil, fmt.Errorf("read cached entry: %w", err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			slog.Warn("Dropping malformed cache entry", "username", username, "action_id", actionIDs[i], "error", err)
			continue
		}
		hits[actionIDs[i]] = e
	}
	return hits, nil
}

func (v *Valkey) Generation(ctx context.Context, username string) (int64, error) {
	gen, err := v.client.Do(ctx, v.client.B().Get().Key(v.genKey(username)).Build()).AsInt64()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read generation: %w", err)
	}
	return gen, nil
}

func (v *Valkey) Set(ctx context.Context, username string, gen int64, entries map[string]Entry) error {
	if len(entries) == 0 {
		return nil
	}

	args := make([]string, 0, 2+2*len(entries))
	args = append(args, strconv.FormatInt(gen, 10), strconv.FormatInt(int64(v.ttl/time.Second), 10))
	for actionID, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		args = append(args, actionID, string(data))
	}

	keys := []string{v.key(username), v.genKey(username)}
	if err := setIfGeneration.Exec(ctx, v.client, keys, args).Error(); err != nil {
		return fmt.Errorf("store cache entries: %w", err)
	}
	return nil
}

func (v *Valkey) Invalidate(ctx context.Context, usernames ...string) error {
	if len(usernames) == 0 {
		return nil
	}
	cmds := make(valkey.Commands, 0, 3*len(usernames))
	for _, u := range usernames {
		cmds = append(cmds,
			v.client.B().Del().Key(v.key(u)).Build(),
			v.client.B().Incr().Key(v.genKey(u)).Build(),
			v.client.B().Expire().Key(v.genKey(u)).Seconds(int64(generationTTL/time.Second)).Build(),
		)
	}
	for _, resp := range v.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("invalidate cache: %w", err)
		}
	}
	return nil
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
