// Package site isolates everything that depends on the proceedings site's
// markup and URL layout. Each markup version is a Profile.
package site

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBaseURL is the proceedings site harvested when none is configured.
const DefaultBaseURL = "https://papers.nips.cc"

// Profile names.
const (
	ProfileLegacy = "neurips-legacy"
	Profile2023   = "neurips-2023"
)

// ErrUnknownProfile is returned by Lookup for unregistered markup names.
var ErrUnknownProfile = errors.New("unknown site profile")

// ListingEntry is one anchor found on a listing page.
type ListingEntry struct {
	Title string
	Href  string
}

// ListingParser extracts paper anchors from a listing page.
type ListingParser interface {
	ParseListing(body []byte) ([]ListingEntry, error)
}

// DetailParser extracts author names from a paper detail page. An empty
// slice means the author region was absent or empty.
type DetailParser interface {
	ParseAuthors(body []byte) ([]string, error)
}

// Profile bundles the parsers for one markup version.
type Profile struct {
	Name    string
	Listing ListingParser
	Detail  DetailParser
}

var profiles = map[string]Profile{
	ProfileLegacy: {
		Name:    ProfileLegacy,
		Listing: selectorListing{selector: "body > div.container-fluid > div > ul li a[href]"},
		Detail:  anchorAuthors{selector: ".authors a"},
	},
	Profile2023: {
		Name:    Profile2023,
		Listing: selectorListing{selector: "ul.paper-list li a[href]"},
		Detail:  headedAuthors{heading: "Authors"},
	},
}

// Lookup returns the profile registered under name.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names lists the registered profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type selectorListing struct {
	selector string
}

func (s selectorListing) ParseListing(body []byte) ([]ListingEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	var entries []ListingEntry
	doc.Find(s.selector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		entries = append(entries, ListingEntry{
			Title: collapse(a.Text()),
			Href:  strings.TrimSpace(href),
		})
	})
	return entries, nil
}

// anchorAuthors reads one author per matched element.
type anchorAuthors struct {
	selector string
}

func (s anchorAuthors) ParseAuthors(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse detail html: %w", err)
	}
	var authors []string
	doc.Find(s.selector).Each(func(_ int, a *goquery.Selection) {
		if name := collapse(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})
	return authors, nil
}

// headedAuthors reads a comma-separated list from the paragraph after a heading.
type headedAuthors struct {
	heading string
}

func (s headedAuthors) ParseAuthors(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse detail html: %w", err)
	}
	var authors []string
	doc.Find("h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if !strings.EqualFold(collapse(h.Text()), s.heading) {
			return true
		}
		p := h.NextAllFiltered("p").First()
		text := p.Find("i").First().Text()
		if strings.TrimSpace(text) == "" {
			text = p.Text()
		}
		for _, name := range strings.Split(text, ",") {
			if name = collapse(name); name != "" {
				authors = append(authors, name)
			}
		}
		return false
	})
	return authors, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// URLs derives every URL the harvester visits from the site base.
type URLs struct {
	base *url.URL
}

// NewURLs parses the base URL.
func NewURLs(base string) (URLs, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return URLs{}, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return URLs{}, fmt.Errorf("base url %q must be absolute", base)
	}
	return URLs{base: u}, nil
}

// Listing returns the listing page URL for a year.
func (u URLs) Listing(year int) string {
	return strings.TrimRight(u.base.String(), "/") + "/paper_files/paper/" + strconv.Itoa(year)
}

// Detail resolves a listing href against the base.
func (u URLs) Detail(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return u.base.ResolveReference(ref).String(), nil
}

// PDF rewrites a detail URL into the PDF URL.
func PDF(detailURL string) string {
	r := strings.NewReplacer("hash/", "file/", "Abstract", "Paper", ".html", ".pdf")
	return r.Replace(detailURL)
}
