// Package locale picks a supported UI language for a request and renders the
// small set of replay strings (switch notices, month names) in it.
package locale

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	KeyNoticeEntryPage      = "notice.entry_page"
	KeyNoticeClosestCapture = "notice.closest_capture"
	KeyNoticeUnconfirmed    = "notice.unconfirmed"
	KeyNoticeUnavailable    = "notice.unavailable"
	KeySwitching            = "banner.switching"
	KeyEditionLabel         = "selector.edition"
	KeyOpenNewTab           = "link.open_new_tab"
	KeyRawContent           = "link.raw_content"
	KeyMetadata             = "link.metadata"
	KeyReportIssue          = "link.report_issue"
	KeyCapturedOn           = "header.captured_on"
	KeyRecords              = "selector.records"
)

var supported = []language.Tag{language.English, language.French}

var matcher = language.NewMatcher(supported)

var strs = map[language.Tag]map[string]string{
	language.English: {
		KeyNoticeEntryPage:      "This page was not captured in the selected edition. Showing the edition's entry page instead.",
		KeyNoticeClosestCapture: "No exact capture of this page was found in the selected edition. Showing the closest available capture.",
		KeyNoticeUnconfirmed:    "We could not confirm whether this page is available in the selected edition. Showing the closest available capture.",
		KeyNoticeUnavailable:    "This edition cannot be opened from this view because no replay viewer is available.",
		KeySwitching:            "Switching edition…",
		KeyEditionLabel:         "Edition",
		KeyOpenNewTab:           "Open in new tab",
		KeyRawContent:           "Raw content",
		KeyMetadata:             "Metadata (API)",
		KeyReportIssue:          "Report an issue",
		KeyCapturedOn:           "Captured on %s",
		KeyRecords:              "%d records",
	},
	language.French: {
		KeyNoticeEntryPage:      "Cette page n'a pas été capturée dans l'édition choisie. La page d'accueil de l'édition est affichée à la place.",
		KeyNoticeClosestCapture: "Aucune capture exacte de cette page n'a été trouvée dans l'édition choisie. La capture disponible la plus proche est affichée.",
		KeyNoticeUnconfirmed:    "Nous n'avons pas pu confirmer la disponibilité de cette page dans l'édition choisie. La capture disponible la plus proche est affichée.",
		KeyNoticeUnavailable:    "Cette édition ne peut pas être ouverte depuis cette vue, car aucun lecteur d'archives n'est disponible.",
		KeySwitching:            "Changement d'édition…",
		KeyEditionLabel:         "Édition",
		KeyOpenNewTab:           "Ouvrir dans un nouvel onglet",
		KeyRawContent:           "Contenu brut",
		KeyMetadata:             "Métadonnées (API)",
		KeyReportIssue:          "Signaler un problème",
		KeyCapturedOn:           "Capturé le %s",
		KeyRecords:              "%d enregistrements",
	},
}

var months = map[language.Tag][12]string{
	language.English: {"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
	language.French:  {"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"},
}

var cat = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, m := range strs {
		for k, v := range m {
			if err := b.SetString(tag, k, v); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Match returns the supported tag closest to the given BCP 47 strings
// (a ?lang= value, an Accept-Language header, or both). English wins on no match.
func Match(prefs ...string) language.Tag {
	tag, _ := language.MatchStrings(matcher, prefs...)
	base, _ := tag.Base()
	for _, s := range supported {
		if sb, _ := s.Base(); sb == base {
			return s
		}
	}
	return language.English
}

// Localizer renders strings for one language.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a Localizer for the best match of locale.
func New(locale string) *Localizer {
	tag := Match(locale)
	return &Localizer{tag: tag, printer: message.NewPrinter(tag, message.Catalog(cat))}
}

// Tag reports the matched language.
func (l *Localizer) Tag() language.Tag { return l.tag }

// Lang is the short language code used in HTML lang attributes.
func (l *Localizer) Lang() string {
	base, _ := l.tag.Base()
	return base.String()
}

// T looks up key and formats args into it.
func (l *Localizer) T(key string, args ...any) string {
	return l.printer.Sprintf(key, args...)
}

// LongDate formats t as a long calendar date: "February 15, 2025" or
// "15 février 2025".
func (l *Localizer) LongDate(t time.Time) string {
	names := months[l.tag]
	month := names[int(t.Month())-1]
	if l.Lang() == "fr" {
		day := t.Day()
		if day == 1 {
			return strings.Join([]string{"1er", month, itoa(t.Year())}, " ")
		}
		return strings.Join([]string{itoa(day), month, itoa(t.Year())}, " ")
	}
	return month + " " + itoa(t.Day()) + ", " + itoa(t.Year())
}

func itoa(n int) string { return strconv.Itoa(n) }
