package collector

// DefaultSpecs returns the built-in business directory catalog used when no
// collectors are configured.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			ID:              "yellowpages",
			Kind:            KindColly,
			URLTemplate:     "https://www.yellowpages.com/search?search_terms={keywords}&geo_location_terms={location}",
			CardSelector:    "div.search-results .result, .search-result, .result",
			NameSelector:    "a.business-name, h2, .business-name",
			PhoneSelector:   "a.phone, div.phones, span.phone, .phone",
			AddressSelector: ".street-address, .address, .adr, .locality",
		},
		{
			ID:              "whitepages",
			Kind:            KindColly,
			PromoteHeadless: true,
			URLTemplate:     "https://www.whitepages.com/business/{keywords}/{location}",
			CardSelector:    "div.card, li.search-result, .result, .listing",
			NameSelector:    ".name, .business-name, h2, h3",
			PhoneSelector:   "a[href^='tel:'], .phone, .phone-number, .tel",
			AddressSelector: ".address, .street-address, .location",
		},
		{
			ID:              "manta",
			Kind:            KindColly,
			URLTemplate:     "https://www.manta.com/search?search={keywords}&search_location={location}",
			CardSelector:    ".search-results .info, .card, .result, .directory-listing",
			NameSelector:    "h2, h3, a",
			PhoneSelector:   "a.phone, .phone, .telephone",
			AddressSelector: ".address, .adr, .locality",
		},
		{
			ID:              "411",
			Kind:            KindColly,
			URLTemplate:     "https://www.411.com/business/{keywords}/{location}",
			CardSelector:    ".result, .listing, .card",
			NameSelector:    "h2, h3, a",
			PhoneSelector:   "a[href^='tel:'], .phone, .telephone",
			AddressSelector: ".address, .location, .adr",
		},
		{
			ID:              "local_com",
			Kind:            KindColly,
			URLTemplate:     "https://www.local.com/business/results/?keyword={keywords}&location={location}",
			CardSelector:    ".listing, .result, .card",
			NameSelector:    "h2, h3, a, .title",
			PhoneSelector:   ".phone, .contact-phone, a[href^='tel:']",
			AddressSelector: ".address, .location",
		},
		{
			ID:              "yelp",
			Kind:            KindHeadless,
			URLTemplate:     "https://www.yelp.com/search?find_desc={keywords}&find_loc={location}",
			CardSelector:    "article, .biz-listing",
			NameSelector:    "a.link, h3, h4",
			AddressSelector: "address, .address, .domtags-address",
		},
		{
			ID:              "foursquare",
			Kind:            KindHeadless,
			URLTemplate:     "https://foursquare.com/explore?mode=url&near={location}&q={keywords}",
			CardSelector:    ".venue, .result, .card, .venueName",
			NameSelector:    "h2, h3, a, .venueName",
			AddressSelector: ".venueAddress, .address, .location",
		},
	}
}
