// Package geo resolves US state tokens and approximate state centroids used
// for coarse location matching and registry geo filters.
package geo

import (
	"strings"
)

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

type state struct {
	name     string
	centroid Point
}

var states = map[string]state{
	"AL": {"alabama", Point{32.806671, -86.791130}},
	"AK": {"alaska", Point{61.370716, -152.404419}},
	"AZ": {"arizona", Point{33.729759, -111.431221}},
	"AR": {"arkansas", Point{34.969704, -92.373123}},
	"CA": {"california", Point{36.116203, -119.681564}},
	"CO": {"colorado", Point{39.059811, -105.311104}},
	"CT": {"connecticut", Point{41.597782, -72.755371}},
	"DE": {"delaware", Point{39.318523, -75.507141}},
	"DC": {"district of columbia", Point{38.897438, -77.026817}},
	"FL": {"florida", Point{27.766279, -81.686783}},
	"GA": {"georgia", Point{33.040619, -83.643074}},
	"HI": {"hawaii", Point{21.094318, -157.498337}},
	"ID": {"idaho", Point{44.240459, -114.478828}},
	"IL": {"illinois", Point{40.349457, -88.986137}},
	"IN": {"indiana", Point{39.849426, -86.258278}},
	"IA": {"iowa", Point{42.011539, -93.210526}},
	"KS": {"kansas", Point{38.526600, -96.726486}},
	"KY": {"kentucky", Point{37.668140, -84.670067}},
	"LA": {"louisiana", Point{31.169546, -91.867805}},
	"ME": {"maine", Point{44.693947, -69.381927}},
	"MD": {"maryland", Point{39.063946, -76.802101}},
	"MA": {"massachusetts", Point{42.230171, -71.530106}},
	"MI": {"michigan", Point{43.326618, -84.536095}},
	"MN": {"minnesota", Point{45.694454, -93.900192}},
	"MS": {"mississippi", Point{32.741646, -89.678696}},
	"MO": {"missouri", Point{38.456085, -92.288368}},
	"MT": {"montana", Point{46.921925, -110.454353}},
	"NE": {"nebraska", Point{41.125370, -98.268082}},
	"NV": {"nevada", Point{38.313515, -117.055374}},
	"NH": {"new hampshire", Point{43.452492, -71.563896}},
	"NJ": {"new jersey", Point{40.298904, -74.521011}},
	"NM": {"new mexico", Point{34.840515, -106.248482}},
	"NY": {"new york", Point{42.165726, -74.948051}},
	"NC": {"north carolina", Point{35.630066, -79.806419}},
	"ND": {"north dakota", Point{47.528912, -99.784012}},
	"OH": {"ohio", Point{40.388783, -82.764915}},
	"OK": {"oklahoma", Point{35.565342, -96.928917}},
	"OR": {"oregon", Point{44.572021, -122.070938}},
	"PA": {"pennsylvania", Point{40.590752, -77.209755}},
	"RI": {"rhode island", Point{41.680893, -71.511780}},
	"SC": {"south carolina", Point{33.856892, -80.945007}},
	"SD": {"south dakota", Point{44.299782, -99.438828}},
	"TN": {"tennessee", Point{35.747845, -86.692345}},
	"TX": {"texas", Point{31.054487, -97.563461}},
	"UT": {"utah", Point{40.150032, -111.862434}},
	"VT": {"vermont", Point{44.045876, -72.710686}},
	"VA": {"virginia", Point{37.769337, -78.169968}},
	"WA": {"washington", Point{47.400902, -121.490494}},
	"WV": {"west virginia", Point{38.491226, -80.954453}},
	"WI": {"wisconsin", Point{44.268543, -89.616508}},
	"WY": {"wyoming", Point{42.755966, -107.302490}},
}

var codesByName = func() map[string]string {
	m := make(map[string]string, len(states))
	for code, s := range states {
		m[s.name] = code
	}
	return m
}()

// StateCode resolves a USPS code or full state name, case-insensitively.
func StateCode(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	upper := strings.ToUpper(token)
	if _, ok := states[upper]; ok {
		return upper, true
	}
	code, ok := codesByName[strings.ToLower(token)]
	return code, ok
}

// StateToken returns the last comma-separated token of a location string,
// resolved to a state code when possible and upper-cased otherwise.
func StateToken(location string) string {
	parts := strings.Split(location, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" {
		return ""
	}
	// "TX 78701" style postcodes trail the state.
	if fields := strings.Fields(last); len(fields) > 1 {
		if code, ok := StateCode(fields[0]); ok {
			return code
		}
	}
	if code, ok := StateCode(last); ok {
		return code
	}
	return strings.ToUpper(last)
}

// ParseCityState parses "City, ST" into its parts. The state must resolve
// to a known code.
func ParseCityState(location string) (city, code string, ok bool) {
	parts := strings.Split(location, ",")
	if len(parts) != 2 {
		return "", "", false
	}
	city = strings.TrimSpace(parts[0])
	code, ok = StateCode(parts[1])
	if city == "" || !ok {
		return "", "", false
	}
	return city, code, true
}

// Centroid returns the approximate geographic center of a state.
func Centroid(code string) (Point, bool) {
	s, ok := states[strings.ToUpper(code)]
	return s.centroid, ok
}
