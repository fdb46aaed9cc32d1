package schema

import "strings"

// Hits is the curated page-view mapping.
var Hits = NewMapping(SourceHits).
	Field("ym:pv:browser", "Browser", String).
	Field("ym:pv:clientID", "ClientID", UInt64).
	Field("ym:pv:date", "EventDate", Date).
	Field("ym:pv:dateTime", "EventTime", DateTime).
	Field("ym:pv:deviceCategory", "DeviceCategory", String).
	Field("ym:pv:lastTrafficSource", "TraficSource", String).
	Field("ym:pv:operatingSystemRoot", "OSRoot", String).
	Field("ym:pv:URL", "URL", String).
	SortKey("ClientID").
	DateColumn("EventDate").
	Build()

// visitFields is the complete visits field list in request order.
var visitFields = []string{
	"visitID", "watchIDs", "date", "dateTime", "isNewUser", "startURL", "endURL",
	"visitDuration", "bounce", "clientID", "goalsID", "goalsDateTime", "referer",
	"deviceCategory", "operatingSystemRoot", "browser", "lastTrafficSource",
	"UTMCampaign", "UTMContent", "UTMMedium", "UTMSource", "UTMTerm", "TrafficSource",
	"pageViews", "purchaseID", "purchaseDateTime", "purchaseRevenue", "purchaseCurrency",
	"purchaseProductQuantity", "productsPurchaseID", "productsID", "productsName",
	"productsCategory", "regionCity", "impressionsURL", "impressionsDateTime",
	"impressionsProductID", "AdvEngine", "ReferalSource", "SearchEngineRoot", "SearchPhrase",
}

// Column names and types that differ from the capitalized field name / String.
var (
	visitColumns = map[string]string{
		"visitID":             "VisitID",
		"clientID":            "ClientID",
		"date":                "StartDate",
		"dateTime":            "StartTime",
		"lastTrafficSource":   "TraficSource",
		"operatingSystemRoot": "OSRoot",
	}
	visitTypes = map[string]ScalarType{
		"visitID":       UInt64,
		"clientID":      UInt64,
		"date":          Date,
		"dateTime":      DateTime,
		"isNewUser":     UInt8,
		"bounce":        UInt8,
		"visitDuration": UInt32,
		"pageViews":     UInt32,
	}
)

// Visits is the curated session mapping.
var Visits = buildVisits()

func buildVisits() *Mapping {
	b := NewMapping(SourceVisits)
	for _, f := range visitFields {
		col, ok := visitColumns[f]
		if !ok {
			col = strings.ToUpper(f[:1]) + f[1:]
		}
		typ, ok := visitTypes[f]
		if !ok {
			typ = String
		}
		b.Field(FieldSpec("ym:s:"+f), col, typ)
	}
	return b.SortKey("ClientID").DateColumn("StartDate").Build()
}

// Default is the registry of both curated tables.
func Default() *Registry { return NewRegistry(Hits, Visits) }
