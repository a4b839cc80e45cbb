// Package i18n holds the console's user-facing strings in English and Croatian.
package i18n

import (
	"golang.org/x/text/language"
)

// Supported languages. English is the fallback.
var (
	English  = language.English
	Croatian = language.Croatian
)

var supported = []language.Tag{English, Croatian}

var matcher = language.NewMatcher(supported)

var messages = map[language.Tag]map[string]string{
	English: {
		"communication.title":        "AI Communication",
		"communication.start":        "Start",
		"communication.connected":    "Connected",
		"communication.connecting":   "Connecting",
		"communication.disconnected": "Disconnected",
		"communication.instance":     "Instance",
		"communication.progress":     "Progress",
		"communication.latestEvent":  "Latest Event",
		"communication.noEvents":     "No events yet. Click Start.",
		"communication.step":         "Step",
		"communication.state":        "State",
		"communication.message":      "Message",
		"communication.time":         "Time",
		"communication.output":       "Output",
		"communication.eventLog":     "Event Log",
		"communication.warning":      "Warning",
		"communication.error":        "Error",
		"status.PENDING":             "Pending",
		"status.RUNNING":             "Running",
		"status.DONE":                "Done",
		"status.FAILED":              "Failed",
		"unit.title":                 "Unit",
		"unit.flows":                 "Journey history",
		"unit.noFlows":               "No journeys for this unit",
		"unit.status":                "Status",
		"unit.online":                "Online",
		"unit.offline":               "Offline",
		"unit.created":               "Created",
		"unit.updated":               "Last updated",
		"unit.telemetry":             "Telemetry",
		"unit.unauthorized":          "Unauthorized: Access token is invalid or missing.",
		"unit.forbidden":             "Forbidden: You do not have permission to access this resource.",
		"unit.notFound":              "Not found.",
		"unit.serverError":           "Server error: Backend has a problem.",
		"common.loading":             "Loading...",
		"common.noData":              "No data available",
		"common.filter":              "Filter",
		"common.close":               "Close",
	},
	Croatian: {
		"communication.title":        "AI Komunikacija",
		"communication.start":        "Pokreni",
		"communication.connected":    "Povezano",
		"communication.connecting":   "Povezivanje",
		"communication.disconnected": "Odspojeno",
		"communication.instance":     "Instanca",
		"communication.progress":     "Napredak",
		"communication.latestEvent":  "Zadnji Događaj",
		"communication.noEvents":     "Nema događaja. Kliknite Pokreni.",
		"communication.step":         "Korak",
		"communication.state":        "Stanje",
		"communication.message":      "Poruka",
		"communication.time":         "Vrijeme",
		"communication.output":       "Izlaz",
		"communication.eventLog":     "Dnevnik Događaja",
		"communication.warning":      "Upozorenje",
		"communication.error":        "Greška",
		"status.PENDING":             "Na čekanju",
		"status.RUNNING":             "U tijeku",
		"status.DONE":                "Završeno",
		"status.FAILED":              "Neuspjelo",
		"unit.title":                 "Unit",
		"unit.flows":                 "Povijest putovanja",
		"unit.noFlows":               "Nema putovanja za ovaj unit",
		"unit.status":                "Status",
		"unit.online":                "Online",
		"unit.offline":               "Offline",
		"unit.created":               "Kreirano",
		"unit.updated":               "Zadnja promjena",
		"unit.telemetry":             "Telemetrija",
		"unit.unauthorized":          "Neautorizirano: Access token je nevažeći ili nedostaje.",
		"unit.forbidden":             "Zabranjeno: Nemate dozvolu za pristup ovom resursu.",
		"unit.notFound":              "Nije pronađeno.",
		"unit.serverError":           "Server greška: Backend ima problem.",
		"common.loading":             "Učitavanje...",
		"common.noData":              "Nema podataka",
		"common.filter":              "Filtriraj",
		"common.close":               "Zatvori",
	},
}

// Catalog translates message keys for one language. The zero value is English.
type Catalog struct {
	tag language.Tag
}

// New returns the catalog for the best supported match of preferred, which may be
// a BCP 47 tag ("hr", "hr-HR") or an Accept-Language header value.
func New(preferred string) Catalog {
	return Catalog{tag: Match(preferred)}
}

// Match picks the supported language closest to preferred.
func Match(preferred string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(preferred)
	if err != nil || len(tags) == 0 {
		return English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	return supported[idx]
}

// Language returns the catalog's language.
func (c Catalog) Language() language.Tag {
	if c.tag == language.Und {
		return English
	}
	return c.tag
}

// T returns the message for key. Unknown keys fall back to English, then to the key itself.
func (c Catalog) T(key string) string {
	if msg, ok := messages[c.Language()][key]; ok {
		return msg
	}
	if msg, ok := messages[English][key]; ok {
		return msg
	}
	return key
}

// Languages lists the supported languages.
func Languages() []language.Tag {
	out := make([]language.Tag, len(supported))
	copy(out, supported)
	return out
}
