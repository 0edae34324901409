package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

var (
	ErrNoInstanceProvided = errors.New("no instances provided")
	ErrFindBestInstance   = errors.New("failed to select best instance")
)

// selectBestFromListScript picks the member of ARGV with the fewest in-flight
// calls and increments its counter.
var selectBestFromListScript = redis.NewScript(`
	local key = KEYS[1]
	local best_member = nil
	local min_score = -1

	for i, member in ipairs(ARGV) do
		local score = redis.call("ZSCORE", key, member)
		if not score then
			redis.call("ZADD", key, 1, member)
			return member
		end
		score = tonumber(score)

		if score <= 0 then
			redis.call("ZADD", key, 1, member)
			return member
		end

		if min_score == -1 or score < min_score then
			min_score = score
			best_member = member
		end
	end

	if best_member then
		redis.call("ZINCRBY", key, 1, best_member)
		return best_member
	end
	return nil
`)

func (r *RedisCache) endpointKey(serviceName string) string {
	return fmt.Sprintf("%sllm_endpoints:%s", r.opts.Prefix, serviceName)
}

// AcquireEndpoint selects the least loaded of instances for serviceName.
func (r *RedisCache) AcquireEndpoint(ctx context.Context, serviceName string, instances []string) (string, error) {
	if len(instances) == 0 {
		return "", ErrNoInstanceProvided
	}
	args := make([]interface{}, len(instances))
	for i, v := range instances {
		args[i] = v
	}

	res, err := selectBestFromListScript.Run(ctx, r.client, []string{r.endpointKey(serviceName)}, args...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	addr, ok := res.(string)
	if !ok {
		return "", ErrFindBestInstance
	}
	return addr, nil
}

func (r *RedisCache) ReleaseEndpoint(ctx context.Context, serviceName, address string) error {
	return r.client.ZIncrBy(ctx, r.endpointKey(serviceName), -1, address).Err()
}
