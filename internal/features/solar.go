package features

import (
	"math"
	"time"
)

// solarPosition computes the apparent solar elevation and azimuth (degrees)
// for an instant and a fixed geolocation, using the low-precision NOAA solar
// position algorithm. It trades the arc-second precision of a full
// ephemeris library (pvlib, in the original Python implementation) for a
// closed-form formula with no external dependency, which is adequate at
// hourly resolution (spec §4.6 step 2).
func solarPosition(t time.Time, latDeg, lonDeg float64) (elevationDeg, azimuthDeg float64) {
	utc := t.UTC()
	jd := julianDay(utc)
	jc := (jd - 2451545.0) / 36525.0

	geomMeanLongSun := math.Mod(280.46646+jc*(36000.76983+jc*0.0003032), 360)
	geomMeanAnomSun := 357.52911 + jc*(35999.05029-0.0001537*jc)
	eccentEarthOrbit := 0.016708634 - jc*(0.000042037+0.0000001267*jc)

	gma := deg2rad(geomMeanAnomSun)
	sunEqOfCtr := math.Sin(gma)*(1.914602-jc*(0.004817+0.000014*jc)) +
		math.Sin(2*gma)*(0.019993-0.000101*jc) +
		math.Sin(3*gma)*0.000289
	sunTrueLong := geomMeanLongSun + sunEqOfCtr

	meanObliqEcliptic := 23 + (26+((21.448-jc*(46.815+jc*(0.00059-jc*0.001813))))/60)/60
	obliqCorr := meanObliqEcliptic + 0.00256*math.Cos(deg2rad(125.04-1934.136*jc))
	sunAppLong := sunTrueLong - 0.00569 - 0.00478*math.Sin(deg2rad(125.04-1934.136*jc))
	sunDeclin := rad2deg(math.Asin(math.Sin(deg2rad(obliqCorr)) * math.Sin(deg2rad(sunAppLong))))

	y := math.Pow(math.Tan(deg2rad(obliqCorr)/2), 2)
	eqOfTime := 4 * rad2deg(
		y*math.Sin(2*deg2rad(geomMeanLongSun))-
			2*eccentEarthOrbit*math.Sin(gma)+
			4*eccentEarthOrbit*y*math.Sin(gma)*math.Cos(2*deg2rad(geomMeanLongSun))-
			0.5*y*y*math.Sin(4*deg2rad(geomMeanLongSun))-
			1.25*eccentEarthOrbit*eccentEarthOrbit*math.Sin(2*gma),
	)

	trueSolarTimeMin := math.Mod(float64(utc.Hour()*60+utc.Minute())+float64(utc.Second())/60+eqOfTime+4*lonDeg, 1440)
	hourAngleDeg := trueSolarTimeMin/4 - 180
	if trueSolarTimeMin < 0 {
		hourAngleDeg = trueSolarTimeMin/4 + 180
	}

	latRad := deg2rad(latDeg)
	declRad := deg2rad(sunDeclin)
	haRad := deg2rad(hourAngleDeg)

	zenithRad := math.Acos(math.Sin(latRad)*math.Sin(declRad) + math.Cos(latRad)*math.Cos(declRad)*math.Cos(haRad))
	zenithDeg := rad2deg(zenithRad)
	elevationDeg = 90 - zenithDeg
	// NOAA atmospheric refraction correction: geometric -> apparent elevation.
	if e, te := elevationDeg, math.Tan(deg2rad(elevationDeg)); e <= 85 {
		var arcsec float64
		switch {
		case e > 5:
			arcsec = 58.1/te - 0.07/math.Pow(te, 3) + 0.000086/math.Pow(te, 5)
		case e > -0.575:
			arcsec = 1735 + e*(-518.2+e*(103.4+e*(-12.79+e*0.711)))
		default:
			arcsec = -20.772 / te
		}
		elevationDeg += arcsec / 3600
	}

	var azRad float64
	denom := math.Cos(latRad) * math.Sin(zenithRad)
	if math.Abs(denom) > 1e-9 {
		cosAz := (math.Sin(latRad)*math.Cos(zenithRad) - math.Sin(declRad)) / denom
		cosAz = math.Max(-1, math.Min(1, cosAz))
		azRad = math.Acos(cosAz)
	}
	azimuthDeg = math.Mod(540-rad2deg(azRad), 360)
	if hourAngleDeg > 0 {
		azimuthDeg = math.Mod(rad2deg(azRad)+180, 360)
	}

	return elevationDeg, azimuthDeg
}

func julianDay(t time.Time) float64 {
	return float64(t.Unix())/86400.0 + 2440587.5
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
