package platform

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Storefront JSON wire shapes. Both strategies normalize into SourceProduct
// through convertStorefrontProduct so the output is identical regardless of
// which one ran.

type storefrontProduct struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	Handle      string              `json:"handle"`
	BodyHTML    string              `json:"body_html"`
	Vendor      string              `json:"vendor"`
	ProductType string              `json:"product_type"`
	Tags        flexibleTags        `json:"tags"`
	Variants    []storefrontVariant `json:"variants"`
	Images      []storefrontImage   `json:"images"`
	Options     []storefrontOption  `json:"options"`
}

type storefrontVariant struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	CompareAtPrice *string `json:"compare_at_price"`
	SKU            string  `json:"sku"`
	Available      bool    `json:"available"`
	Option1        *string `json:"option1"`
	Option2        *string `json:"option2"`
	Option3        *string `json:"option3"`
}

type storefrontImage struct {
	Position int    `json:"position"`
	Src      string `json:"src"`
}

type storefrontOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// flexibleTags accepts both the array form and the comma-separated string
// form storefronts emit for tags.
type flexibleTags []string

func (t *flexibleTags) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*t = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	var tags []string
	for _, tag := range strings.Split(joined, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	*t = tags
	return nil
}

// convertStorefrontProduct normalizes a storefront payload. Returns a
// malformed-payload error when the record cannot become a sellable product
// (unparseable price, no images).
func convertStorefrontProduct(p storefrontProduct, sourceURL string) (*SourceProduct, error) {
	images := make([]storefrontImage, len(p.Images))
	copy(images, p.Images)
	sort.SliceStable(images, func(i, j int) bool { return images[i].Position < images[j].Position })

	imageURLs := make([]string, 0, len(images))
	for _, img := range images {
		if img.Src != "" {
			imageURLs = append(imageURLs, img.Src)
		}
	}
	if len(imageURLs) == 0 {
		return nil, malformedError(fmt.Sprintf("product %q has no images", p.Title), nil)
	}

	variants := make([]SourceVariant, 0, len(p.Variants))
	for _, v := range p.Variants {
		price, err := strconv.ParseFloat(v.Price, 64)
		if err != nil {
			return nil, malformedError(fmt.Sprintf("variant %q has an unparseable price %q", v.Title, v.Price), err)
		}
		variant := SourceVariant{
			ID:        strconv.FormatInt(v.ID, 10),
			Title:     v.Title,
			Price:     price,
			Available: v.Available,
			SKU:       v.SKU,
		}
		for _, opt := range []*string{v.Option1, v.Option2, v.Option3} {
			if opt != nil && *opt != "" {
				variant.OptionValues = append(variant.OptionValues, *opt)
			}
		}
		variants = append(variants, variant)
	}

	options := make([]SourceOption, 0, len(p.Options))
	for _, o := range p.Options {
		options = append(options, SourceOption{Name: o.Name, Values: o.Values})
	}

	product := &SourceProduct{
		ExternalID:      strconv.FormatInt(p.ID, 10),
		Title:           p.Title,
		DescriptionHTML: p.BodyHTML,
		Images:          imageURLs,
		Variants:        variants,
		Options:         options,
		Vendor:          p.Vendor,
		ProductType:     p.ProductType,
		Handle:          p.Handle,
		Tags:            p.Tags,
		SourceURL:       sourceURL,
	}
	if len(variants) > 0 {
		product.Price = variants[0].Price
		if p.Variants[0].CompareAtPrice != nil {
			if compareAt, err := strconv.ParseFloat(*p.Variants[0].CompareAtPrice, 64); err == nil {
				product.CompareAtPrice = &compareAt
			}
		}
	}
	return product, nil
}

// storeBase reduces any storefront URL to its https://host origin
func storeBase(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + strings.TrimSpace(rawURL))
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("unparseable store URL %q", rawURL)
		}
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

// productHandle extracts the handle from a /products/<handle> style path
func productHandle(rawURL string) (base string, handle string, err error) {
	base, err = storeBase(rawURL)
	if err != nil {
		return "", "", err
	}
	u, _ := url.Parse(rawURL)
	if u == nil || u.Path == "" {
		u, _ = url.Parse("https://" + rawURL)
	}
	path := "/"
	if u != nil {
		path = u.EscapedPath()
	}
	for _, marker := range []string{"/products/", "/produto/"} {
		if idx := strings.Index(path, marker); idx >= 0 {
			rest := path[idx+len(marker):]
			if end := strings.IndexAny(rest, "/."); end >= 0 {
				rest = rest[:end]
			}
			if rest != "" {
				return base, rest, nil
			}
		}
	}
	return "", "", fmt.Errorf("no product handle in URL %q", rawURL)
}
