package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/im7mortal/UTM"
	"github.com/paulmach/orb"
)

// CRS is a parsed coordinate reference system identifier.
type CRS struct {
	Geographic bool
	Zone       int
	Northern   bool
}

// ParseCRS accepts "EPSG:4326" (or "WGS84"), "UTM:<zone><N|S>" and the
// WGS84/UTM EPSG codes 326zz / 327zz.
func ParseCRS(s string) (CRS, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case u == "EPSG:4326" || u == "WGS84" || u == "LONLAT":
		return CRS{Geographic: true}, nil
	case strings.HasPrefix(u, "UTM:"):
		z := strings.TrimPrefix(u, "UTM:")
		if len(z) < 2 {
			break
		}
		hemi := z[len(z)-1]
		zone, err := strconv.Atoi(z[:len(z)-1])
		if err != nil || (hemi != 'N' && hemi != 'S') {
			break
		}
		return utmCRS(s, zone, hemi == 'N')
	case strings.HasPrefix(u, "EPSG:326") || strings.HasPrefix(u, "EPSG:327"):
		zone, err := strconv.Atoi(u[len("EPSG:326"):])
		if err != nil {
			break
		}
		return utmCRS(s, zone, strings.HasPrefix(u, "EPSG:326"))
	}
	return CRS{}, errors.NewValidationError("crs", "expected EPSG:4326, UTM:<zone><N|S> or EPSG:326zz/327zz", s)
}

func utmCRS(raw string, zone int, northern bool) (CRS, error) {
	if zone < 1 || zone > 60 {
		return CRS{}, errors.NewValidationError("crs", "UTM zone must be in 1..60", raw)
	}
	return CRS{Zone: zone, Northern: northern}, nil
}

// CentralMeridian returns the central longitude of the UTM zone in degrees.
func (c CRS) CentralMeridian() float64 {
	return float64(c.Zone*6 - 183)
}

func (c CRS) String() string {
	if c.Geographic {
		return "EPSG:4326"
	}
	h := "S"
	if c.Northern {
		h = "N"
	}
	return fmt.Sprintf("UTM:%d%s", c.Zone, h)
}

// Projector converts WGS84 (lon, lat) points into a raster CRS.
type Projector struct {
	target CRS
}

// NewProjector parses crs and returns a projector into it.
func NewProjector(crs string) (*Projector, error) {
	c, err := ParseCRS(crs)
	if err != nil {
		return nil, err
	}
	return &Projector{target: c}, nil
}

// Target returns the destination CRS.
func (p *Projector) Target() CRS { return p.target }

// Project maps pt (lon, lat) into the target CRS.
func (p *Projector) Project(pt orb.Point) (orb.Point, error) {
	lon, lat := pt.Lon(), pt.Lat()
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return orb.Point{}, errors.NewValueError("Project", fmt.Sprintf("invalid coordinate (%g, %g)", lon, lat))
	}
	if p.target.Geographic {
		return pt, nil
	}
	if err := UTM.ValidateLatLone(lat, lon); err != nil {
		return orb.Point{}, errors.Wrapf(err, "project (%g, %g)", lon, lat)
	}
	// always the raster's zone, also for points across the zone edge
	easting, northing := transverseMercator(lat, lon, p.target.CentralMeridian())
	if !p.target.Northern {
		northing += falseNorthingSouth
	}
	return orb.Point{easting, northing}, nil
}

// Unproject maps a point in the target CRS back to (lon, lat).
func (p *Projector) Unproject(pt orb.Point) (orb.Point, error) {
	if p.target.Geographic {
		return pt, nil
	}
	lat, lon, err := UTM.ToLatLon(pt[0], pt[1], p.target.Zone, "", p.target.Northern)
	if err != nil {
		return orb.Point{}, errors.Wrapf(err, "unproject (%g, %g)", pt[0], pt[1])
	}
	return orb.Point{lon, lat}, nil
}

// WGS84 / UTM constants, same series as UTM.ToLatLon so that Project and
// Unproject are inverse to each other.
const (
	utmScale           = 0.9996
	utmFalseEasting    = 500000.0
	falseNorthingSouth = 10000000.0
	wgs84A             = 6378137.0
	wgs84E2            = 0.00669438
)

// transverseMercator projects (lat, lon) in degrees onto the transverse
// Mercator plane around centralLon, with the UTM scale and false easting.
func transverseMercator(lat, lon, centralLon float64) (easting, northing float64) {
	e2, e4, e6 := wgs84E2, wgs84E2*wgs84E2, wgs84E2*wgs84E2*wgs84E2
	ep2 := e2 / (1 - e2)

	phi := lat * math.Pi / 180
	sin, cos := math.Sincos(phi)
	tan := sin / cos
	t2 := tan * tan
	t4 := t2 * t2

	n := wgs84A / math.Sqrt(1-e2*sin*sin)
	c := ep2 * cos * cos
	a := cos * (lon - centralLon) * math.Pi / 180
	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	m := wgs84A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))

	easting = utmScale*n*(a+a3/6*(1-t2+c)+a5/120*(5-18*t2+t4+72*c-58*ep2)) + utmFalseEasting
	northing = utmScale * (m + n*tan*(a2/2+a4/24*(5-t2+9*c+4*c*c)+a6/720*(61-58*t2+t4+600*c-330*ep2)))
	return easting, northing
}
