package allocator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance_Symmetric(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{-8.0476, -34.8770},
		{51.5074, -0.1278},
		{-33.8688, 151.2093},
		{89.9, 179.9},
		{-89.9, -179.9},
	}

	for _, a := range points {
		assert.Equal(t, 0.0, Distance(a[0], a[1], a[0], a[1]))
		for _, b := range points {
			assert.Equal(t, Distance(a[0], a[1], b[0], b[1]), Distance(b[0], b[1], a[0], a[1]))
		}
	}
}

func TestDistance_OneDegreeOnEquator(t *testing.T) {
	// 赤道上 1 度经度约为 111.19 km
	assert.InDelta(t, EarthRadiusKm*math.Pi/180, Distance(0, 0, 0, 1), 1e-9)
	assert.InDelta(t, 5*EarthRadiusKm*math.Pi/180, Distance(0, 0, 0, 5), 1e-9)
}

func TestNoShowProbability_AlwaysClamped(t *testing.T) {
	patient := newPatient(1, 0, 0, "cardiologia")
	baseRates := []float64{-10, -0.1, 0, 0.05, 0.3, 1, 5, 1e9, math.Inf(1), math.NaN()}
	transportScores := []float64{-100, -1, 0, 0.5, 1, 2, 100}
	longitudes := []float64{0, 0.1, 1, 30, 179}

	for _, base := range baseRates {
		for _, ts := range transportScores {
			for _, lon := range longitudes {
				facility := newFacility(1, 0, lon, 0, "cardiologia")
				facility.TransportScore = ts

				p, dist := NoShowProbability(base, patient, facility)
				assert.GreaterOrEqual(t, p, 0.0, "base=%v ts=%v lon=%v", base, ts, lon)
				assert.LessOrEqual(t, p, MaxNoShow, "base=%v ts=%v lon=%v", base, ts, lon)
				assert.InDelta(t, Distance(0, 0, 0, lon), dist, 1e-12)
			}
		}
	}
}

func TestNoShowProbability_Formula(t *testing.T) {
	patient := newPatient(1, 0, 0, "ortopedia")
	facility := newFacility(1, 0, 1, 0, "ortopedia")

	p, dist := NoShowProbability(0.25, patient, facility)
	expected := 0.25 * (1 + LambdaDistance*(dist/DistanceRefKm)) * (1 - LambdaTransport*0.5)
	assert.InDelta(t, expected, p, 1e-12)

	// 同一位置，没有路程影响
	facility = newFacility(2, 0, 0, 0, "ortopedia")
	p, dist = NoShowProbability(0.3, patient, facility)
	assert.Equal(t, 0.0, dist)
	assert.InDelta(t, 0.225, p, 1e-12)
}
