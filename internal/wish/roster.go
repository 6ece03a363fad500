package wish

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/example/carpool/internal/models"
)

// Roster is the index of approved drivers by home area, queried when a wish
// is created to find drivers worth nudging.
type Roster interface {
	Register(ctx context.Context, driverID string, lat, lon float64) error
	Nearby(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.DriverCandidate, error)
}

// MemoryRoster is a naive scan over registered drivers; fine for local runs
// and tests, replaced by the Redis GEO roster in production.
type MemoryRoster struct {
	mu      sync.RWMutex
	drivers map[string][2]float64 // lat, lon
}

func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{drivers: make(map[string][2]float64)}
}

func (m *MemoryRoster) Register(ctx context.Context, driverID string, lat, lon float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driverID] = [2]float64{lat, lon}
	return nil
}

func (m *MemoryRoster) Nearby(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.DriverCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DriverCandidate, 0, len(m.drivers))
	for id, loc := range m.drivers {
		d := Haversine(lat, lon, loc[0], loc[1])
		if d <= radiusM {
			out = append(out, models.DriverCandidate{DriverID: id, DistanceM: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
