package decision

import (
	"slices"
	"strconv"
	"strings"

	"dai-orchestrator/internal/dai"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
)

// ErrNoInlineAds is returned when a VAST document holds no inline ads.
var ErrNoInlineAds = errors.New("vast: no inline ads")

// ParseVAST converts an inline VAST document into ads, ordered by their sequence
// attribute. wrappers are the wrapper documents that were followed to reach the inline
// document, outermost first; they are recorded on every ad nearest-to-inline first.
func ParseVAST(inline string, wrappers ...string) ([]dai.Ad, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(inline); err != nil {
		return nil, errors.Wrap(err, "vast: read inline document")
	}

	chain := make([]dai.Wrapper, 0, len(wrappers))
	for i := len(wrappers) - 1; i >= 0; i-- {
		w, err := parseWrapper(wrappers[i])
		if err != nil {
			return nil, errors.Wrapf(err, "vast: wrapper %d", i)
		}
		chain = append(chain, w)
	}

	type sequenced struct {
		seq int
		ad  dai.Ad
	}
	var ads []sequenced
	for i, adEl := range doc.FindElements("VAST/Ad") {
		inl := adEl.SelectElement("InLine")
		if inl == nil {
			continue
		}
		ad, err := parseInline(adEl, inl)
		if err != nil {
			return nil, err
		}
		if len(chain) > 0 {
			ad.Wrappers = append([]dai.Wrapper(nil), chain...)
		}
		seq, err := strconv.Atoi(adEl.SelectAttrValue("sequence", ""))
		if err != nil {
			seq = i + 1
		}
		ads = append(ads, sequenced{seq: seq, ad: ad})
	}
	if len(ads) == 0 {
		return nil, ErrNoInlineAds
	}

	slices.SortStableFunc(ads, func(a, b sequenced) int { return a.seq - b.seq })
	out := make([]dai.Ad, len(ads))
	for i, s := range ads {
		out[i] = s.ad
	}
	return out, nil
}

func parseInline(adEl, inl *etree.Element) (dai.Ad, error) {
	ad := dai.Ad{
		AdID:        adEl.SelectAttrValue("id", ""),
		Title:       childText(inl, "AdTitle"),
		System:      childText(inl, "AdSystem"),
		Description: childText(inl, "Description"),
		Advertiser:  childText(inl, "Advertiser"),
		DealID:      dealID(inl),
	}

	linear := linearCreative(inl)
	if linear == nil {
		return ad, nil
	}
	ad.CreativeID = linear.SelectAttrValue("id", "")
	ad.CreativeAdID = linear.SelectAttrValue("adId", "")
	if uid := linear.SelectElement("UniversalAdId"); uid != nil {
		ad.UniversalAdIDRegistry = uid.SelectAttrValue("idRegistry", "")
		ad.UniversalAdIDValue = strings.TrimSpace(uid.Text())
	}
	if raw := childText(linear, "Linear/Duration"); raw != "" {
		d, err := parseDuration(raw)
		if err != nil {
			return dai.Ad{}, errors.Wrapf(err, "vast: ad %q", ad.AdID)
		}
		ad.Duration = d
	}

	for _, c := range inl.FindElements("Creatives/Creative/CompanionAds/Companion") {
		ad.Companions = append(ad.Companions, dai.Companion{
			StaticResourceURL: childText(c, "StaticResource"),
			APIFramework:      c.SelectAttrValue("apiFramework", ""),
			Width:             atoi(c.SelectAttrValue("width", "")),
			Height:            atoi(c.SelectAttrValue("height", "")),
		})
	}
	return ad, nil
}

func parseWrapper(raw string) (dai.Wrapper, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return dai.Wrapper{}, err
	}
	adEl := doc.FindElement("VAST/Ad[Wrapper]")
	if adEl == nil {
		return dai.Wrapper{}, errors.New("no wrapper ad")
	}
	w := adEl.SelectElement("Wrapper")
	out := dai.Wrapper{
		AdID:   adEl.SelectAttrValue("id", ""),
		System: childText(w, "AdSystem"),
		DealID: dealID(w),
	}
	if c := w.FindElement("Creatives/Creative"); c != nil {
		out.CreativeID = c.SelectAttrValue("id", "")
	}
	return out, nil
}

// linearCreative returns the first creative carrying a Linear element.
func linearCreative(inl *etree.Element) *etree.Element {
	for _, c := range inl.FindElements("Creatives/Creative") {
		if c.SelectElement("Linear") != nil {
			return c
		}
	}
	return nil
}

func dealID(el *etree.Element) string {
	return childText(el, "Extensions/Extension[@type='deal']")
}

func childText(el *etree.Element, path string) string {
	child := el.FindElement(path)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

// parseDuration parses a VAST HH:MM:SS or HH:MM:SS.mmm duration into seconds.
func parseDuration(raw string) (float64, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return 0, errors.Errorf("malformed duration %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errors.Wrapf(err, "malformed duration %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.Wrapf(err, "malformed duration %q", raw)
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed duration %q", raw)
	}
	return float64(h*3600+m*60) + s, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
