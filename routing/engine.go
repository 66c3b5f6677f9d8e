package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/internal/apperr"
)

// totalBudget is the §5 ceiling on the whole station-selection call,
// independent of the per-provider providerDeadline.
const totalBudget = 8 * time.Second

// routeCacheTTL bounds how long a computed route is reused for the same
// origin/dest/emergency triple before providers are asked again.
const routeCacheTTL = 5 * time.Minute

// urgencyMultiplier implements the priority-score weighting of §4.2.
func urgencyMultiplier(p db.Priority) float64 {
	switch p {
	case db.PriorityCritical:
		return 0.6
	case db.PriorityHigh:
		return 0.75
	case db.PriorityMedium:
		return 0.9
	default:
		return 1.0
	}
}

func qualityBonus(q Quality) float64 {
	switch q {
	case QualityExcellent:
		return -2
	case QualityGood:
		return -1
	case QualityPoor:
		return 2
	default:
		return 0
	}
}

// StationRoute pairs a candidate station with the route computed to it.
type StationRoute struct {
	Station db.Station
	Route   Route
	Score   float64
}

// RoutingEngine selects the best-positioned station to dispatch an incident
// to, trying real providers before falling back to the great-circle
// estimate.
type RoutingEngine struct {
	Store     db.Store
	Providers []Provider
	Cache     *redis.Client // optional; nil disables the response cache
}

func NewRoutingEngine(store db.Store, providers ...Provider) *RoutingEngine {
	return &RoutingEngine{Store: store, Providers: providers}
}

// WithCache attaches the response cache as an optional collaborator set
// post-construction, so callers without Redis configured get nil and pay
// no caching overhead.
func (e *RoutingEngine) WithCache(cache *redis.Client) *RoutingEngine {
	e.Cache = cache
	return e
}

func routeCacheKey(origin, dest Point, emergency bool) string {
	return fmt.Sprintf("routing:route:%.5f,%.5f:%.5f,%.5f:%t", origin.Lat, origin.Lng, dest.Lat, dest.Lng, emergency)
}

// ComputeRoute tries each provider in order; the first to succeed within its
// own deadline wins. If every provider fails, it falls back to the
// great-circle estimate, which never errors. Results are cached for
// routeCacheTTL, keyed by origin/dest/emergency.
func (e *RoutingEngine) ComputeRoute(ctx context.Context, origin, dest Point, emergency bool) Route {
	key := routeCacheKey(origin, dest, emergency)
	if e.Cache != nil {
		if cached, err := e.Cache.Get(ctx, key).Bytes(); err == nil {
			var route Route
			if json.Unmarshal(cached, &route) == nil {
				return route
			}
		}
	}

	route := e.computeRouteUncached(ctx, origin, dest, emergency)

	if e.Cache != nil {
		if encoded, err := json.Marshal(route); err == nil {
			if err := e.Cache.Set(ctx, key, encoded, routeCacheTTL).Err(); err != nil {
				log.Printf("routing: failed to cache route: %v", err)
			}
		}
	}
	return route
}

func (e *RoutingEngine) computeRouteUncached(ctx context.Context, origin, dest Point, emergency bool) Route {
	for _, p := range e.Providers {
		route, err := p.ComputeRoute(ctx, origin, dest, emergency)
		if err == nil {
			return route
		}
	}
	return greatCircleRoute(origin, dest)
}

// SelectOptimalStation computes a route to every active station of the
// given org type and returns the one with the lowest priority score. Ties
// break on station ID, lexicographically, per spec §8.
func (e *RoutingEngine) SelectOptimalStation(ctx context.Context, orgType db.OrgType, incidentLocation Point, urgency db.Priority) (StationRoute, error) {
	ctx, cancel := context.WithTimeout(ctx, totalBudget)
	defer cancel()

	stations, err := e.Store.ListActiveStationsByOrgType(ctx, orgType)
	if err != nil {
		return StationRoute{}, apperr.NewUnavailable("failed to list stations", err)
	}
	if len(stations) == 0 {
		return StationRoute{}, apperr.NewNotFound("no active stations available for this category")
	}

	results := make([]StationRoute, len(stations))
	var wg sync.WaitGroup
	for i, st := range stations {
		wg.Add(1)
		go func(i int, st db.Station) {
			defer wg.Done()
			dest := Point{Lat: st.Lat, Lng: st.Lng}
			route := e.ComputeRoute(ctx, incidentLocation, dest, true)
			emergencyETA := route.DurationMin
			if route.DurationInTrafficMin > 0 {
				emergencyETA = route.DurationInTrafficMin
			}
			emergencyETA *= urgencyMultiplier(urgency)
			score := 0.4*route.DistanceKm + 0.6*emergencyETA + qualityBonus(route.Quality)
			results[i] = StationRoute{Station: st, Route: route, Score: score}
		}(i, st)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].Station.ID < results[j].Station.ID
	})

	return results[0], nil
}
