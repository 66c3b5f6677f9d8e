package routing

import (
	"context"
	"testing"

	"github.com/rindwa/dispatch/db"
	"github.com/stretchr/testify/assert"
)

// fakeStore implements db.Store by embedding it (nil) and overriding only
// the method SelectOptimalStation actually calls. Any other method call
// would nil-panic, which is fine: these tests never exercise them.
type fakeStore struct {
	db.Store
	stations []db.Station
}

func (f *fakeStore) ListActiveStationsByOrgType(ctx context.Context, t db.OrgType) ([]db.Station, error) {
	return f.stations, nil
}

func TestClassifyQuality(t *testing.T) {
	assert.Equal(t, QualityExcellent, classifyQuality(100, 100, 110))
	assert.Equal(t, QualityGood, classifyQuality(40, 60, 80))
	assert.Equal(t, QualityFair, classifyQuality(20, 50, 90))
	assert.Equal(t, QualityPoor, classifyQuality(5, 30, 90))
}

func TestGreatCircleRoute_NeverErrors(t *testing.T) {
	r := greatCircleRoute(Point{Lat: -1.95, Lng: 30.06}, Point{Lat: -1.94, Lng: 30.08})
	assert.Equal(t, "great_circle_fallback", r.Provider)
	assert.Equal(t, QualityFair, r.Quality)
	assert.Greater(t, r.DistanceKm, 0.0)
}

func TestComputeRoute_FallsBackWhenNoProviders(t *testing.T) {
	e := NewRoutingEngine(nil)
	route := e.ComputeRoute(context.Background(), Point{Lat: 0, Lng: 0}, Point{Lat: 1, Lng: 1}, true)
	assert.Equal(t, "great_circle_fallback", route.Provider)
}

func TestSelectOptimalStation_NoActiveStations(t *testing.T) {
	e := NewRoutingEngine(&fakeStore{stations: nil})
	_, err := e.SelectOptimalStation(context.Background(), db.OrgTypePolice, Point{Lat: 0, Lng: 0}, db.PriorityHigh)
	assert.Error(t, err)
}

func TestSelectOptimalStation_PicksClosestByScore(t *testing.T) {
	near := db.Station{ID: "station-near", Lat: 0.001, Lng: 0.001, IsActive: true}
	far := db.Station{ID: "station-far", Lat: 5, Lng: 5, IsActive: true}
	e := NewRoutingEngine(&fakeStore{stations: []db.Station{far, near}})

	result, err := e.SelectOptimalStation(context.Background(), db.OrgTypePolice, Point{Lat: 0, Lng: 0}, db.PriorityMedium)
	assert.NoError(t, err)
	assert.Equal(t, "station-near", result.Station.ID)
}

func TestSelectOptimalStation_TieBreaksByStationID(t *testing.T) {
	a := db.Station{ID: "a", Lat: 1, Lng: 1, IsActive: true}
	b := db.Station{ID: "b", Lat: 1, Lng: 1, IsActive: true}
	e := NewRoutingEngine(&fakeStore{stations: []db.Station{b, a}})

	result, err := e.SelectOptimalStation(context.Background(), db.OrgTypeHealth, Point{Lat: 0, Lng: 0}, db.PriorityLow)
	assert.NoError(t, err)
	assert.Equal(t, "a", result.Station.ID)
}
