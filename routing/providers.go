package routing

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"
)

// GoogleMapsProvider is provider 1 ("Maps-vendor"): emergency factor 0.7.
type GoogleMapsProvider struct {
	apiKey string
	client *http.Client
}

func NewGoogleMapsProvider(apiKey string) *GoogleMapsProvider {
	// option.WithAPIKey is the google.golang.org/api idiom for holding
	// credentials; distance-matrix calls here go over plain HTTP rather
	// than a generated client, so this just validates the key.
	_ = option.WithAPIKey(apiKey)
	return &GoogleMapsProvider{apiKey: apiKey, client: &http.Client{}}
}

func (p *GoogleMapsProvider) Name() string { return "google_maps" }

type distanceMatrixResponse struct {
	Rows []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value float64 `json:"value"` // meters
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"` // seconds
			} `json:"duration"`
			DurationInTraffic struct {
				Value float64 `json:"value"`
			} `json:"duration_in_traffic"`
		} `json:"elements"`
	} `json:"rows"`
}

func (p *GoogleMapsProvider) ComputeRoute(ctx context.Context, origin, dest Point, emergency bool) (Route, error) {
	if p.apiKey == "" {
		return Route{}, fmt.Errorf("google maps provider not configured")
	}
	url := fmt.Sprintf(
		"https://maps.googleapis.com/maps/api/distancematrix/json?origins=%f,%f&destinations=%f,%f&departure_time=now&key=%s",
		origin.Lat, origin.Lng, dest.Lat, dest.Lng, p.apiKey)

	var resp distanceMatrixResponse
	if err := httpGetJSON(ctx, p.client, url, &resp); err != nil {
		return Route{}, fmt.Errorf("google maps: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 || resp.Rows[0].Elements[0].Status != "OK" {
		return Route{}, fmt.Errorf("google maps: no route found")
	}
	el := resp.Rows[0].Elements[0]
	distanceKm := el.Distance.Value / 1000
	durationMin := el.Duration.Value / 60
	trafficMin := el.DurationInTraffic.Value / 60

	if emergency {
		durationMin *= 0.7
		if trafficMin > 0 {
			trafficMin *= 0.7
		}
	}

	return Route{
		DistanceKm:           distanceKm,
		DurationMin:          durationMin,
		DurationInTrafficMin: trafficMin,
		Quality:              classifyQuality(distanceKm, durationMin, trafficMin),
		IsEmergencyOptimized: emergency,
		Provider:             p.Name(),
		Confidence:           90,
	}, nil
}

// OSRMProvider is provider 2 ("open-routing-vendor"): emergency factor 0.75.
type OSRMProvider struct {
	baseURL string
	client  *http.Client
}

func NewOSRMProvider(baseURL string) *OSRMProvider {
	return &OSRMProvider{baseURL: baseURL, client: &http.Client{}}
}

func (p *OSRMProvider) Name() string { return "osrm" }

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (p *OSRMProvider) ComputeRoute(ctx context.Context, origin, dest Point, emergency bool) (Route, error) {
	if p.baseURL == "" {
		return Route{}, fmt.Errorf("osrm provider not configured")
	}
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		p.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	var resp osrmResponse
	if err := httpGetJSON(ctx, p.client, url, &resp); err != nil {
		return Route{}, fmt.Errorf("osrm: %w", err)
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm: no route found")
	}
	distanceKm := resp.Routes[0].Distance / 1000
	durationMin := resp.Routes[0].Duration / 60
	if emergency {
		durationMin *= 0.75
	}

	return Route{
		DistanceKm:           distanceKm,
		DurationMin:          durationMin,
		Quality:              classifyQuality(distanceKm, durationMin, 0),
		IsEmergencyOptimized: emergency,
		Provider:             p.Name(),
		Confidence:           75,
	}, nil
}

// MapboxProvider is provider 3 ("second-vendor"): emergency factor 0.8.
type MapboxProvider struct {
	apiKey string
	client *http.Client
}

func NewMapboxProvider(apiKey string) *MapboxProvider {
	return &MapboxProvider{apiKey: apiKey, client: &http.Client{}}
}

func (p *MapboxProvider) Name() string { return "mapbox" }

type mapboxResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (p *MapboxProvider) ComputeRoute(ctx context.Context, origin, dest Point, emergency bool) (Route, error) {
	if p.apiKey == "" {
		return Route{}, fmt.Errorf("mapbox provider not configured")
	}
	url := fmt.Sprintf(
		"https://api.mapbox.com/directions/v5/mapbox/driving/%f,%f;%f,%f?access_token=%s",
		origin.Lng, origin.Lat, dest.Lng, dest.Lat, p.apiKey)

	var resp mapboxResponse
	if err := httpGetJSON(ctx, p.client, url, &resp); err != nil {
		return Route{}, fmt.Errorf("mapbox: %w", err)
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return Route{}, fmt.Errorf("mapbox: no route found")
	}
	distanceKm := resp.Routes[0].Distance / 1000
	durationMin := resp.Routes[0].Duration / 60
	if emergency {
		durationMin *= 0.8
	}

	return Route{
		DistanceKm:           distanceKm,
		DurationMin:          durationMin,
		Quality:              classifyQuality(distanceKm, durationMin, 0),
		IsEmergencyOptimized: emergency,
		Provider:             p.Name(),
		Confidence:           70,
	}, nil
}
