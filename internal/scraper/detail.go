package scraper

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/pet-listings-scraper/internal/metrics"
	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
)

// Breadcrumb positions on a detail page: Home > Animale > {category} > {subcategory}.
const (
	categoryCrumb    = 2
	subcategoryCrumb = 3
)

// Detail holds the fields only available on a listing's own page.
// The zero value means nothing was extracted.
type Detail struct {
	Breed       *string
	Service     *string
	Species     *string
	Category    *string
	Subcategory *string
	Description *string
	County      *string
	City        *string
}

// Apply copies the detail fields onto r, overwriting its placeholders.
func (d Detail) Apply(r *pet.Record) {
	r.Breed = d.Breed
	r.Service = d.Service
	r.Species = d.Species
	r.Category = d.Category
	r.Subcategory = d.Subcategory
	r.Description = d.Description
	r.County = d.County
	r.City = d.City
}

// attribute maps label keywords to the Detail field they populate.
type attribute struct {
	keywords []string
	field    func(*Detail) **string
}

var attributes = []attribute{
	{keywords: []string{"rase", "rasa"}, field: func(d *Detail) **string { return &d.Breed }},
	{keywords: []string{"servicii", "serviciu"}, field: func(d *Detail) **string { return &d.Service }},
	{keywords: []string{"specie", "tip animal"}, field: func(d *Detail) **string { return &d.Species }},
}

// Detail fetches a listing page and extracts its attributes. Any fetch or
// parse failure yields a zero Detail so the card keeps absent fields.
func (s *Scraper) Detail(ctx context.Context, link string) Detail {
	if err := s.pause.Pause(ctx, s.cfg.DetailDelay); err != nil {
		return Detail{}
	}
	page, err := s.fetcher.Fetch(ctx, link)
	if err != nil {
		s.logger.Warn("detail fetch failed", zap.String("url", link), zap.Error(err))
		metrics.ObservePage(link, "detail", "error")
		return Detail{}
	}
	if !page.OK() {
		s.logger.Warn("detail page unavailable", zap.String("url", link), zap.Int("status", page.StatusCode))
		metrics.ObservePage(link, "detail", strconv.Itoa(page.StatusCode))
		return Detail{}
	}
	metrics.ObservePage(link, "detail", "ok")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		s.logger.Warn("detail page unparsable", zap.String("url", link), zap.Error(err))
		return Detail{}
	}
	return ParseDetail(doc)
}

// ParseDetail extracts every detail field independently; missing markup
// leaves the corresponding field nil.
func ParseDetail(doc *goquery.Document) Detail {
	var d Detail
	parseAttributes(doc, &d)
	parseBreadcrumb(doc, &d)
	d.Description = parseDescription(doc)
	d.County, d.City = parseLocation(doc)
	return d
}

// parseAttributes scans the attribute blocks in order; the first block whose
// label matches a field wins and later duplicates are ignored.
func parseAttributes(doc *goquery.Document, d *Detail) {
	remaining := len(attributes)
	doc.Find("div.attribute-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		label := strings.ToLower(item.Find("div.attribute-label").First().Text())
		if strings.TrimSpace(label) == "" {
			return true
		}
		value := item.Find("div.attribute-value").First()
		if value.Length() == 0 {
			return true
		}
		for _, attr := range attributes {
			slot := attr.field(d)
			if *slot != nil || !containsAny(label, attr.keywords) {
				continue
			}
			if text := pet.String(cleanText(value.Text())); text != nil {
				*slot = text
				remaining--
			}
			break
		}
		return remaining > 0
	})
}

func parseBreadcrumb(doc *goquery.Document, d *Detail) {
	crumbs := doc.Find("ol.breadcrumb li, ul.breadcrumb li")
	if crumbs.Length() == 0 {
		crumbs = doc.Find(`[itemtype$="BreadcrumbList"] [itemprop="itemListElement"]`)
	}
	if crumbs.Length() > categoryCrumb {
		d.Category = pet.String(cleanText(crumbs.Eq(categoryCrumb).Text()))
	}
	if crumbs.Length() > subcategoryCrumb {
		d.Subcategory = pet.String(cleanText(crumbs.Eq(subcategoryCrumb).Text()))
	}
}

// parseDescription drops the invisible decoy spans the site injects before
// collecting the visible text, one text node per line.
func parseDescription(doc *goquery.Document) *string {
	desc := doc.Find(`div.article-description[itemprop="description"]`).First()
	if desc.Length() == 0 {
		return nil
	}
	desc.Find("span[style]").Each(func(_ int, span *goquery.Selection) {
		if style, _ := span.Attr("style"); hiddenStyle(style) {
			span.Remove()
		}
	})
	return pet.String(joinText(desc, "\n"))
}

func parseLocation(doc *goquery.Document) (county, city *string) {
	links := doc.Find(`p[itemprop="name"]`).First().Find(`a[itemprop="url"]`)
	if links.Length() < 2 {
		return nil, nil
	}
	return pet.String(cleanText(links.Eq(0).Text())), pet.String(cleanText(links.Eq(1).Text()))
}

// hiddenStyle reports inline styles that make an element invisible.
func hiddenStyle(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important")))
		switch prop {
		case "opacity":
			if f, err := strconv.ParseFloat(value, 64); err == nil && f == 0 {
				return true
			}
		case "display":
			if value == "none" {
				return true
			}
		case "visibility":
			if value == "hidden" {
				return true
			}
		}
	}
	return false
}

// joinText concatenates the trimmed, non-empty text nodes under sel.
func joinText(sel *goquery.Selection, sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, sep)
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
