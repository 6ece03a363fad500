package wish

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool/internal/models"
)

// RedisRoster keeps the approved-driver index in a Redis GEO set so every
// API instance sees the same roster.
type RedisRoster struct {
	client *redis.Client
	key    string
}

func NewRedisRoster(addr, password, key string) *RedisRoster {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisRoster{client: c, key: key}
}

func (r *RedisRoster) Register(ctx context.Context, driverID string, lat, lon float64) error {
	_, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: lon, Latitude: lat, Name: driverID}).Result()
	return err
}

func (r *RedisRoster) Nearby(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.DriverCandidate, error) {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusM, Unit: "m", WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverCandidate, 0, len(res))
	for _, g := range res {
		out = append(out, models.DriverCandidate{DriverID: g.Name, DistanceM: g.Dist})
	}
	return out, nil
}

func (r *RedisRoster) Close() error { return r.client.Close() }
