// Package crs resolves coordinate reference systems from EPSG codes and
// ESRI .prj sidecars and builds coordinate transforms between them.
package crs

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// Well-known EPSG codes.
const (
	EPSGWGS84        = 4326
	EPSGWebMercator  = 3857
	EPSGIrishGrid    = 29902
	EPSGIrishGridTM  = 29903
	EPSGBritishGrid  = 27700
	epsgUTMNorthBase = 32600
	epsgUTMSouthBase = 32700
)

const (
	defWGS84       = "+proj=longlat +datum=WGS84 +no_defs"
	defWebMercator = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"
	defIrishGrid   = "+proj=tmerc +lat_0=53.5 +lon_0=-8 +k=1.000035 +x_0=200000 +y_0=250000 +ellps=mod_airy +towgs84=482.5,-130.6,564.6,-1.042,-0.214,-0.631,8.15 +units=m +no_defs"
	defIrishGridTM = "+proj=tmerc +lat_0=53.5 +lon_0=-8 +k=1.000035 +x_0=200000 +y_0=250000 +ellps=mod_airy +towgs84=482.5,-130.6,564.6,-1.042,-0.214,-0.631,8.15 +units=m +no_defs"
	defBritishGrid = "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 +ellps=airy +towgs84=446.448,-125.157,542.06,0.15,0.247,0.842,-20.489 +units=m +no_defs"
)

// CRS identifies a coordinate reference system. Def holds the PROJ4 or WKT
// definition handed to the projection library.
type CRS struct {
	EPSG int    `json:"epsg,omitempty"`
	Name string `json:"name"`
	Def  string `json:"def"`
}

// Transformer maps a coordinate from one CRS into another. Geographic
// coordinates are longitude/latitude in degrees.
type Transformer func(x, y float64) (float64, float64, error)

// Geographic returns WGS84 longitude/latitude (EPSG:4326).
func Geographic() CRS {
	return CRS{EPSG: EPSGWGS84, Name: "WGS 84", Def: defWGS84}
}

// Mercator returns spherical web Mercator (EPSG:3857).
func Mercator() CRS {
	return CRS{EPSG: EPSGWebMercator, Name: "WGS 84 / Pseudo-Mercator", Def: defWebMercator}
}

// UTM returns the WGS84 UTM CRS for zone in the given hemisphere.
func UTM(zone int, north bool) CRS {
	code := epsgUTMNorthBase + zone
	hemi := "N"
	def := fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone)
	if !north {
		code = epsgUTMSouthBase + zone
		hemi = "S"
		def = fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", zone)
	}
	return CRS{EPSG: code, Name: fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemi), Def: def}
}

// FromEPSG resolves a supported EPSG code.
func FromEPSG(code int) (CRS, error) {
	switch {
	case code == EPSGWGS84:
		return Geographic(), nil
	case code == EPSGWebMercator:
		return Mercator(), nil
	case code == EPSGIrishGrid:
		return CRS{EPSG: code, Name: "TM65 / Irish Grid", Def: defIrishGrid}, nil
	case code == EPSGIrishGridTM:
		return CRS{EPSG: code, Name: "TM75 / Irish Grid", Def: defIrishGridTM}, nil
	case code == EPSGBritishGrid:
		return CRS{EPSG: code, Name: "OSGB 1936 / British National Grid", Def: defBritishGrid}, nil
	case code > epsgUTMNorthBase && code <= epsgUTMNorthBase+60:
		return UTM(code-epsgUTMNorthBase, true), nil
	case code > epsgUTMSouthBase && code <= epsgUTMSouthBase+60:
		return UTM(code-epsgUTMSouthBase, false), nil
	}
	return CRS{}, eris.Errorf("crs: unsupported EPSG code %d", code)
}

// ParseEPSG accepts "32629", "EPSG:32629" or "epsg:32629".
func ParseEPSG(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToUpper(s), "EPSG:")
	code, err := strconv.Atoi(s)
	if err != nil {
		return CRS{}, eris.Wrapf(err, "crs: parse EPSG %q", s)
	}
	return FromEPSG(code)
}

var (
	authorityRe = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\s*\]\s*$`)
	utmNameRe   = regexp.MustCompile(`(?i)UTM[_ ]Zone[_ ](\d{1,2})([NS])`)
	nameRe      = regexp.MustCompile(`^\s*(?:PROJCS|GEOGCS)\["([^"]+)"`)
)

// FromWKT builds a CRS from an ESRI or OGC WKT string. The EPSG code is
// recovered from a trailing AUTHORITY clause or a recognisable name.
func FromWKT(wkt string) CRS {
	wkt = strings.TrimSpace(wkt)
	c := CRS{Def: wkt}
	if m := nameRe.FindStringSubmatch(wkt); m != nil {
		c.Name = m[1]
	}
	if m := authorityRe.FindStringSubmatch(wkt); m != nil {
		c.EPSG, _ = strconv.Atoi(m[1])
	}
	if c.EPSG != 0 {
		if known, err := FromEPSG(c.EPSG); err == nil {
			known.Name = firstNonEmpty(c.Name, known.Name)
			return known
		}
		return c
	}
	switch {
	case utmNameRe.MatchString(wkt) && strings.Contains(strings.ToUpper(wkt), "WGS_1984"):
		m := utmNameRe.FindStringSubmatch(wkt)
		zone, _ := strconv.Atoi(m[1])
		known := UTM(zone, strings.EqualFold(m[2], "N"))
		known.Name = firstNonEmpty(c.Name, known.Name)
		return known
	case strings.HasPrefix(wkt, "GEOGCS") && strings.Contains(strings.ToUpper(wkt), "WGS_1984"):
		known := Geographic()
		known.Name = firstNonEmpty(c.Name, known.Name)
		return known
	case strings.Contains(wkt, "Irish_Grid") || strings.Contains(wkt, "Irish Grid"):
		known, _ := FromEPSG(EPSGIrishGrid)
		known.Name = firstNonEmpty(c.Name, known.Name)
		return known
	case strings.Contains(wkt, "British_National_Grid"):
		known, _ := FromEPSG(EPSGBritishGrid)
		known.Name = firstNonEmpty(c.Name, known.Name)
		return known
	}
	return c
}

// FromPRJ reads an ESRI .prj sidecar. ok is false when the file does not exist.
func FromPRJ(path string) (c CRS, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CRS{}, false, nil
		}
		return CRS{}, false, eris.Wrapf(err, "crs: read %s", path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return CRS{}, false, nil
	}
	return FromWKT(string(data)), true, nil
}

// IsZero reports whether the CRS is unset.
func (c CRS) IsZero() bool {
	return c.EPSG == 0 && c.Def == ""
}

// IsGeographic reports whether coordinates are degrees of longitude/latitude.
func (c CRS) IsGeographic() bool {
	if c.EPSG == EPSGWGS84 {
		return true
	}
	d := strings.TrimSpace(c.Def)
	return strings.Contains(d, "+proj=longlat") || strings.HasPrefix(d, "GEOGCS")
}

// Equal reports whether two CRSs describe the same system.
func (c CRS) Equal(o CRS) bool {
	if c.EPSG != 0 && o.EPSG != 0 {
		return c.EPSG == o.EPSG
	}
	return strings.TrimSpace(c.Def) == strings.TrimSpace(o.Def)
}

// String returns "EPSG:<code>" when known, otherwise the name.
func (c CRS) String() string {
	if c.EPSG != 0 {
		return fmt.Sprintf("EPSG:%d", c.EPSG)
	}
	if c.Name != "" {
		return c.Name
	}
	return "unknown"
}

// WKT returns an ESRI-style WKT string suitable for a .prj sidecar. CRSs
// built from WKT return their original definition.
func (c CRS) WKT() string {
	if strings.HasPrefix(strings.TrimSpace(c.Def), "PROJCS") || strings.HasPrefix(strings.TrimSpace(c.Def), "GEOGCS") {
		return c.Def
	}
	const gcs = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	switch {
	case c.EPSG == EPSGWGS84:
		return gcs
	case c.EPSG > epsgUTMNorthBase && c.EPSG <= epsgUTMSouthBase+60:
		zone := c.EPSG - epsgUTMNorthBase
		hemi := "N"
		falseNorthing := 0.0
		if c.EPSG > epsgUTMSouthBase {
			zone = c.EPSG - epsgUTMSouthBase
			hemi = "S"
			falseNorthing = 10000000.0
		}
		meridian := float64(zone*6 - 183)
		return fmt.Sprintf(`PROJCS["WGS_1984_UTM_Zone_%d%s",%s,PROJECTION["Transverse_Mercator"],`+
			`PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",%.1f],`+
			`PARAMETER["Central_Meridian",%.1f],PARAMETER["Scale_Factor",0.9996],`+
			`PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`, zone, hemi, gcs, falseNorthing, meridian)
	}
	return ""
}

// Transform returns a transformer from src to dst. Equal CRSs yield the
// identity transform without consulting the projection library.
func Transform(src, dst CRS) (Transformer, error) {
	if src.Equal(dst) {
		return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
	}
	if src.Def == "" || dst.Def == "" {
		return nil, eris.Errorf("crs: cannot transform %s -> %s without a definition", src, dst)
	}
	srcSR, err := proj.Parse(src.Def)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: parse %s", src)
	}
	dstSR, err := proj.Parse(dst.Def)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: parse %s", dst)
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: transform %s -> %s", src, dst)
	}
	return func(x, y float64) (float64, float64, error) {
		return t(x, y)
	}, nil
}

// UTMZone returns the UTM zone containing longitude lon.
func UTMZone(lon float64) int {
	zone := int((lon+180)/6) + 1
	if zone > 60 {
		zone = 60
	}
	if zone < 1 {
		zone = 1
	}
	return zone
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
