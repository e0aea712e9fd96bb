// Package solar computes the apparent position of the sun at a site. It is
// used by the quality filter to recognise radiation readings taken at night.
package solar

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// Site is an observation location
type Site struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Position is the sun's apparent position for a site and instant
type Position struct {
	ElevationDeg   float64
	AzimuthDeg     float64
	DeclinationDeg float64
	EqOfTimeMin    float64
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func radToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }
func fixAngle(a float64) float64   { return a - 360.0*math.Floor(a/360.0) }

// SunPosition returns the solar elevation and azimuth at t. Elevation
// includes the standard refraction correction at the horizon.
func SunPosition(site Site, t time.Time) Position {
	t = t.UTC()
	jd := julian.TimeToJD(t)
	T := (jd - 2451545.0) / 36525.0

	L0 := fixAngle(280.46646 + T*(36000.76983+T*0.0003032))
	M := fixAngle(357.52911 + T*(35999.05029-T*0.0001537))
	e := 0.016708634 - T*(0.000042037+T*0.0000001267)
	C := math.Sin(degToRad(M))*(1.914602-T*(0.004817+T*0.000014)) +
		math.Sin(degToRad(2*M))*(0.019993-T*0.000101) +
		math.Sin(degToRad(3*M))*0.000289
	Ω := 125.04 - 1934.136*T
	λ := L0 + C - 0.00569 - 0.00478*math.Sin(degToRad(Ω))
	eps0 := 23 + (26+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60)/60
	δRad := math.Asin(math.Sin(degToRad(eps0)) * math.Sin(degToRad(λ)))

	y := math.Tan(degToRad(eps0)/2) * math.Tan(degToRad(eps0)/2)
	eqTimeMin := radToDeg(y*math.Sin(degToRad(2*L0))-
		2*e*math.Sin(degToRad(M))+
		4*e*y*math.Sin(degToRad(M))*math.Cos(degToRad(2*L0))-
		0.5*y*y*math.Sin(degToRad(4*L0))-
		1.25*e*e*math.Sin(degToRad(2*M))) * 4

	utcMin := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60.0
	tst := utcMin + 4*site.Longitude + eqTimeMin
	ha := tst/4 - 180
	haRad := degToRad(ha)

	latRad := degToRad(site.Latitude)
	cosZen := math.Sin(latRad)*math.Sin(δRad) + math.Cos(latRad)*math.Cos(δRad)*math.Cos(haRad)
	cosZen = math.Max(-1, math.Min(1, cosZen))
	zenRad := math.Acos(cosZen)
	elDeg := 90 - radToDeg(zenRad) + 0.5667

	var azDeg float64
	if s := math.Sin(zenRad); s != 0 {
		azNum := math.Sin(δRad) - math.Sin(latRad)*cosZen
		azDen := math.Cos(latRad) * s
		azDeg = radToDeg(math.Acos(math.Max(-1, math.Min(1, azNum/azDen))))
		if ha > 0 {
			azDeg = 360 - azDeg
		}
	}

	return Position{
		ElevationDeg:   elDeg,
		AzimuthDeg:     azDeg,
		DeclinationDeg: radToDeg(δRad),
		EqOfTimeMin:    eqTimeMin,
	}
}

// IsNight reports whether the sun is below the horizon at t
func IsNight(site Site, t time.Time) bool {
	return SunPosition(site, t).ElevationDeg < 0
}
