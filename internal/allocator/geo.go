package allocator

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

const (
	EarthRadiusKm   = 6371.0
	DistanceRefKm   = 30.0 // 距离归一化参考值
	LambdaDistance  = 0.02 // 距离对爽约概率的影响系数
	LambdaTransport = 0.5  // 公共交通质量对爽约概率的影响系数
	MaxNoShow       = 0.95
)

// Distance 使用 haversine 公式计算两点之间的大圆距离（km）
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	// 固定两点的顺序，浮点乘法不满足结合律，这样可以保证 Distance(a, b) 与 Distance(b, a) 完全相等
	if lat2 < lat1 || (lat2 == lat1 && lon2 < lon1) {
		lat1, lon1, lat2, lon2 = lat2, lon2, lat1, lon1
	}
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusKm
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}

/**
 * 计算患者在某个机构的爽约概率
 * p = baseRate * (1 + LambdaDistance * dist / DistanceRefKm) * (1 - LambdaTransport * transportScore)
 * 结果总是被限制在 [0, MaxNoShow] 之间，第二个返回值为患者到机构的距离
 */
func NoShowProbability(baseRate float64, patient *domain.Patient, facility *domain.Facility) (float64, float64) {
	dist := Distance(patient.Latitude, patient.Longitude, facility.Latitude, facility.Longitude)
	p := baseRate * (1 + LambdaDistance*(dist/DistanceRefKm)) * (1 - LambdaTransport*facility.TransportScore)
	return clamp(p, 0, MaxNoShow), dist
}
