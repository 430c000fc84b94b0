package domain

import "strings"

// Country is filter criteria only; records keep their own country strings.
type Country struct {
	Name     string `json:"name" yaml:"name"`
	Code     string `json:"code" yaml:"code"`
	Selected bool   `json:"selected,omitempty" yaml:"selected,omitempty"`
}

var countries = []Country{
	{Name: "Argentina", Code: "AR"},
	{Name: "Australia", Code: "AU"},
	{Name: "Austria", Code: "AT"},
	{Name: "Bangladesh", Code: "BD"},
	{Name: "Belgium", Code: "BE"},
	{Name: "Brazil", Code: "BR"},
	{Name: "Bulgaria", Code: "BG"},
	{Name: "Canada", Code: "CA"},
	{Name: "Chile", Code: "CL"},
	{Name: "China", Code: "CN"},
	{Name: "Colombia", Code: "CO"},
	{Name: "Czech Republic", Code: "CZ"},
	{Name: "Ecuador", Code: "EC"},
	{Name: "Egypt", Code: "EG"},
	{Name: "Finland", Code: "FI"},
	{Name: "France", Code: "FR"},
	{Name: "Germany", Code: "DE"},
	{Name: "Greece", Code: "GR"},
	{Name: "Hong Kong", Code: "HK"},
	{Name: "Hungary", Code: "HU"},
	{Name: "India", Code: "IN"},
	{Name: "Indonesia", Code: "ID"},
	{Name: "Iran", Code: "IR"},
	{Name: "Italy", Code: "IT"},
	{Name: "Japan", Code: "JP"},
	{Name: "Kazakhstan", Code: "KZ"},
	{Name: "Kenya", Code: "KE"},
	{Name: "Malaysia", Code: "MY"},
	{Name: "Mexico", Code: "MX"},
	{Name: "Netherlands", Code: "NL"},
	{Name: "Nigeria", Code: "NG"},
	{Name: "Pakistan", Code: "PK"},
	{Name: "Peru", Code: "PE"},
	{Name: "Philippines", Code: "PH"},
	{Name: "Poland", Code: "PL"},
	{Name: "Romania", Code: "RO"},
	{Name: "Russia", Code: "RU"},
	{Name: "Singapore", Code: "SG"},
	{Name: "South Africa", Code: "ZA"},
	{Name: "South Korea", Code: "KR"},
	{Name: "Spain", Code: "ES"},
	{Name: "Sweden", Code: "SE"},
	{Name: "Switzerland", Code: "CH"},
	{Name: "Taiwan", Code: "TW"},
	{Name: "Thailand", Code: "TH"},
	{Name: "Turkey", Code: "TR"},
	{Name: "Ukraine", Code: "UA"},
	{Name: "United Kingdom", Code: "GB"},
	{Name: "United States", Code: "US"},
	{Name: "Venezuela", Code: "VE"},
	{Name: "Vietnam", Code: "VN"},
}

// Countries returns a fresh, unselected copy of the reference list.
func Countries() []Country {
	out := make([]Country, len(countries))
	copy(out, countries)
	return out
}

// CountryName resolves an ISO code to its display name. Unknown codes are
// returned unchanged.
func CountryName(code string) string {
	code = strings.TrimSpace(code)
	for _, c := range countries {
		if strings.EqualFold(c.Code, code) {
			return c.Name
		}
	}
	return code
}

// SelectedTerms returns the code and the name of every selected country, so a
// filter built from it matches records that only carry one of the two.
func SelectedTerms(list []Country) []string {
	var terms []string
	for _, c := range list {
		if c.Selected {
			terms = append(terms, c.Code, c.Name)
		}
	}
	return terms
}
