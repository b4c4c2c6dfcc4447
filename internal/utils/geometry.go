package utils

import "math"

const earthRadiusMeters = 6371010.0

// CoordinateBounds is a latitude/longitude bounding box.
type CoordinateBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the great-circle distance in meters between two points.
// Below ~0.2 degrees of separation it uses the equirectangular
// approximation, which is well inside a meter of the exact answer at
// transit scales and much cheaper; nearby-stop queries hit this path
// almost exclusively.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if math.Abs(lat2-lat1) < 0.2 && math.Abs(lon2-lon1) < 0.2 {
		x := radians(lon2-lon1) * math.Cos(radians(lat1+lat2)/2)
		y := radians(lat2 - lat1)
		return earthRadiusMeters * math.Hypot(x, y)
	}

	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// CalculateBounds returns the bounding box extending distance meters in
// every direction from the point. The longitude span widens toward the
// poles; callers filter the corners with Distance when they need a true
// circle.
func CalculateBounds(lat, lon, distance float64) CoordinateBounds {
	latOffset := distance / earthRadiusMeters * 180 / math.Pi
	lonOffset := distance / (earthRadiusMeters * math.Cos(radians(lat))) * 180 / math.Pi

	return CoordinateBounds{
		MinLat: lat - latOffset,
		MaxLat: lat + latOffset,
		MinLon: lon - lonOffset,
		MaxLon: lon + lonOffset,
	}
}
