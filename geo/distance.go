// Package geo computes great-circle distances to the Utrecht reference point.
package geo

import (
	"math"

	"github.com/aluiziolira/go-scrape-restaurants/models"
)

const (
	// UtrechtLat and UtrechtLon locate Utrecht city centre (Dom tower area).
	UtrechtLat = 52.0907
	UtrechtLon = 5.1214

	// EarthRadiusKM is the IUGG mean Earth radius.
	EarthRadiusKM = 6371.0088
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// UtrechtCentre is the fixed reference point for distance_km_from_utrecht.
var UtrechtCentre = Point{Lat: UtrechtLat, Lon: UtrechtLon}

// HaversineKM returns the spherical great-circle distance between a and b.
func HaversineKM(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h a hair above 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKM * math.Asin(math.Sqrt(h))
}

// DistanceFromUtrechtKM returns the distance from lat/lon to UtrechtCentre.
func DistanceFromUtrechtKM(lat, lon float64) float64 {
	return HaversineKM(Point{Lat: lat, Lon: lon}, UtrechtCentre)
}

// AnnotateDistances fills DistanceKMFromUtrecht for every record with both
// coordinates and returns how many records received a distance. Records
// without coordinates are left untouched.
func AnnotateDistances(restaurants []*models.Restaurant) int {
	annotated := 0
	for _, r := range restaurants {
		if r == nil || !r.HasCoordinates() {
			continue
		}
		d := DistanceFromUtrechtKM(*r.Latitude, *r.Longitude)
		r.DistanceKMFromUtrecht = &d
		annotated++
	}
	return annotated
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
