// Package page turns a fetched directory listing into raw records. It is
// shared by the HTTP and browser collectors, which differ only in how they
// obtain the HTML.
package page

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/phone"
)

// Defaults applied by Selectors.withDefaults.
const (
	DefaultMaxCards      = 30
	DefaultMaxPagePhones = 25

	// Placeholders recognised by ExpandURL.
	KeywordsPlaceholder = "{keywords}"
	LocationPlaceholder = "{location}"

	fallbackKeywords = "business"
	fallbackLocation = "usa"
)

// Selectors locate listing cards and their fields with CSS selectors.
type Selectors struct {
	Card    string
	Name    string
	Phone   string
	Address string
	// MaxCards bounds how many cards are read per page.
	MaxCards int
	// MaxPagePhones bounds the page-text fallback.
	MaxPagePhones int
}

func (s Selectors) withDefaults() Selectors {
	if s.MaxCards <= 0 {
		s.MaxCards = DefaultMaxCards
	}
	if s.MaxPagePhones <= 0 {
		s.MaxPagePhones = DefaultMaxPagePhones
	}
	return s
}

// ExpandURL substitutes the query-escaped keywords and location into tmpl.
// Blank inputs fall back to broad defaults so directories still return a page.
func ExpandURL(tmpl, keywords, location string) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", fmt.Errorf("url template is required")
	}
	kw := strings.TrimSpace(keywords)
	if kw == "" {
		kw = fallbackKeywords
	}
	loc := strings.TrimSpace(location)
	if loc == "" {
		loc = fallbackLocation
	}
	expanded := strings.NewReplacer(
		KeywordsPlaceholder, url.QueryEscape(kw),
		LocationPlaceholder, url.QueryEscape(loc),
	).Replace(tmpl)
	parsed, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("parse expanded url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	return expanded, nil
}

// Extract parses html and returns one record per card that yields a phone.
// A card without a phone element is searched as text. When no card produces
// a record, every phone in the page text is returned with the page title as
// the name.
func Extract(html io.Reader, sel Selectors) ([]extract.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(html)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	sel = sel.withDefaults()

	records := make([]extract.RawRecord, 0)
	if sel.Card != "" {
		doc.Find(sel.Card).EachWithBreak(func(i int, card *goquery.Selection) bool {
			if i >= sel.MaxCards {
				return false
			}
			if rec, ok := fromCard(card, sel); ok {
				records = append(records, rec)
			}
			return true
		})
	}
	if len(records) > 0 {
		return records, nil
	}
	return fromPageText(doc, sel.MaxPagePhones), nil
}

func fromCard(card *goquery.Selection, sel Selectors) (extract.RawRecord, bool) {
	number := text(card, sel.Phone)
	if number == "" {
		if candidates := phone.ExtractCandidates(card.Text()); len(candidates) > 0 {
			number = candidates[0]
		}
	}
	if number == "" {
		return extract.RawRecord{}, false
	}
	return extract.RawRecord{
		Phone:   number,
		Name:    text(card, sel.Name),
		Address: text(card, sel.Address),
	}, true
}

func fromPageText(doc *goquery.Document, limit int) []extract.RawRecord {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	candidates := phone.ExtractCandidates(doc.Find("body").Text())
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]extract.RawRecord, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, extract.RawRecord{Phone: c, Name: title})
	}
	return out
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}
