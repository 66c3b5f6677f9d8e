package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Point is a geographic coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Quality is the derived categorical assessment of a computed route.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Route is the result of ComputeRoute.
type Route struct {
	DistanceKm            float64
	DurationMin           float64
	DurationInTrafficMin  float64 // 0 means "not reported"
	Quality               Quality
	IsEmergencyOptimized  bool
	Provider              string
	Confidence            int
}

// classifyQuality implements the speed/trafficFactor thresholds of §4.2.
func classifyQuality(distanceKm, durationMin, durationInTrafficMin float64) Quality {
	if durationMin <= 0 {
		return QualityPoor
	}
	speed := distanceKm / (durationMin / 60)
	trafficFactor := 1.0
	if durationInTrafficMin > 0 {
		trafficFactor = durationInTrafficMin / durationMin
	}
	switch {
	case speed > 50 && trafficFactor < 1.2:
		return QualityExcellent
	case speed > 35 && trafficFactor < 1.5:
		return QualityGood
	case speed > 20 && trafficFactor < 2.0:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Provider is one entry in the routing provider chain (§4.2). Each provider
// observes its own 5s deadline internally (httpGetJSON applies
// providerDeadline); ComputeRoute on the chain adds no deadline of its own.
type Provider interface {
	Name() string
	ComputeRoute(ctx context.Context, origin, dest Point, emergency bool) (Route, error)
}

const providerDeadline = 5 * time.Second

// httpGetJSON is the shared "build request, check status, decode typed
// response" pattern for calling an external HTTP JSON API.
func httpGetJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, providerDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
