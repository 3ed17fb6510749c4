// Package domain models Local Storm Report (LSR) data and the query windows
// used to read it back out of the daily snapshot cache.
//
// # Data Source
//
// Reports come from the Iowa Environmental Mesonet (IEM) LSR GeoJSON service
// at https://mesonet.agron.iastate.edu/geojson/lsr.php. A request names a
// UTC window with compact timestamps and an empty office filter:
//
//	lsr.php?sts=202604260000&ets=202604262359&wfos=
//
// The response is a GeoJSON FeatureCollection of Point features, one per
// report. Properties are kept verbatim so every upstream field survives a
// round trip through the snapshot files.
//
// # LSR Property Conventions
//
// Timestamp ("valid"):
//
//	ISO-8601 in UTC, with or without a trailing "Z":
//	"2026-04-26T15:10:00Z" or "2026-04-26T15:10:00".
//	Reports with an absent or unparseable timestamp cannot be placed in a
//	window; range filters always include them.
//
// Type code ("type", older payloads use "rtype"):
//
//	Single-letter NWS code, e.g. "H" hail, "T" tornado, "G" wind gust,
//	"D" thunderstorm wind damage. The human label is in "typetext".
//
// Magnitude ("magnitude"):
//
//	Number or null. Hail in inches, gusts in mph; many report types carry
//	no magnitude at all.
//
// Location:
//
//	"lat"/"lon" properties in decimal degrees, duplicated by the Point
//	geometry as [lon, lat]. "city", "county", "st" (or "state") and the
//	issuing "wfo" describe the place.
//
// # Report Identity
//
// Identity is a SHA-256 hash of valid|lat|lon|type|magnitude. Timestamp,
// coordinates and type code are required; magnitude joins the hash when
// present. Reports missing a required field have no identity and are always
// appended during a merge. See [Feature.Identity].
//
// # Days and Windows
//
// Snapshots are keyed by UTC calendar day ("2006-01-02"). A [QueryRange] is a
// closed [start, end] window at minute granularity; it enumerates every day
// it touches via [QueryRange.Days].
package domain
