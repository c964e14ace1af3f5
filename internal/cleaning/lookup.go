package cleaning

import "strings"

// Country code aliases the source is known to emit.
var countryFixes = map[string]string{
	"UK":  "GB",
	"USA": "US",
}

var countryNames = map[string]string{
	"CN": "China", "US": "United States", "KR": "South Korea", "JP": "Japan",
	"TW": "Taiwan", "HK": "Hong Kong", "SG": "Singapore", "IN": "India",
	"AU": "Australia", "NZ": "New Zealand", "DE": "Germany", "GB": "United Kingdom",
	"FR": "France", "IT": "Italy", "ES": "Spain", "NL": "Netherlands",
	"BE": "Belgium", "CH": "Switzerland", "SE": "Sweden", "NO": "Norway",
	"DK": "Denmark", "FI": "Finland", "AT": "Austria", "PL": "Poland",
	"CZ": "Czech Republic", "GR": "Greece", "TR": "Turkey", "IL": "Israel",
	"CA": "Canada", "MX": "Mexico", "BR": "Brazil", "AR": "Argentina",
	"ID": "Indonesia", "TH": "Thailand", "MY": "Malaysia", "PH": "Philippines",
	"VN": "Vietnam",
}

var countryRegions = map[string]string{
	"CN": "Asia-Pacific", "KR": "Asia-Pacific", "JP": "Asia-Pacific",
	"TW": "Asia-Pacific", "HK": "Asia-Pacific", "SG": "Asia-Pacific",
	"IN": "Asia-Pacific", "AU": "Asia-Pacific", "NZ": "Asia-Pacific",
	"ID": "Asia-Pacific", "TH": "Asia-Pacific", "MY": "Asia-Pacific",
	"PH": "Asia-Pacific", "VN": "Asia-Pacific",
	"US": "North America", "CA": "North America",
	"MX": "Latin America", "BR": "Latin America", "AR": "Latin America",
	"DE": "Europe", "GB": "Europe", "FR": "Europe", "IT": "Europe",
	"ES": "Europe", "NL": "Europe", "BE": "Europe", "CH": "Europe",
	"SE": "Europe", "NO": "Europe", "DK": "Europe", "FI": "Europe",
	"AT": "Europe", "PL": "Europe", "CZ": "Europe", "GR": "Europe",
	"TR": "Middle East", "IL": "Middle East",
}

// Exchange suffix of the symbol -> exchange name.
var exchangeNames = map[string]string{
	"SZ": "Shenzhen Stock Exchange", "SS": "Shanghai Stock Exchange",
	"KS": "Korea Stock Exchange", "T": "Tokyo Stock Exchange",
	"HK": "Hong Kong Stock Exchange", "L": "London Stock Exchange",
	"PA": "Paris Stock Exchange", "DE": "Frankfurt Stock Exchange",
	"MC": "Madrid Stock Exchange", "MI": "Milan Stock Exchange",
	"AS": "Amsterdam Stock Exchange", "BR": "Brussels Stock Exchange",
	"CO": "Copenhagen Stock Exchange", "HE": "Helsinki Stock Exchange",
	"ST": "Stockholm Stock Exchange", "OL": "Oslo Stock Exchange",
	"SW": "Swiss Exchange", "VI": "Vienna Stock Exchange",
	"PR": "Prague Stock Exchange", "WA": "Warsaw Stock Exchange",
	"AT": "Athens Stock Exchange", "IS": "Istanbul Stock Exchange",
	"TA": "Tel Aviv Stock Exchange", "JK": "Jakarta Stock Exchange",
	"BK": "Bangkok Stock Exchange", "KL": "Kuala Lumpur Stock Exchange",
	"SI": "Singapore Stock Exchange", "AX": "Australian Stock Exchange",
	"NZ": "New Zealand Stock Exchange", "TO": "Toronto Stock Exchange",
	"V": "Vancouver Stock Exchange", "MX": "Mexico Stock Exchange",
	"SA": "Sao Paulo Stock Exchange", "BA": "Buenos Aires Stock Exchange",
}

// Legal-form abbreviations expanded during name normalization. Ordered so
// longer patterns are replaced before their prefixes.
var nameReplacements = []struct{ old, new string }{
	{"Corp.", "Corporation"},
	{"Inc.", "Incorporated"},
	{"Co.", "Company"},
	{"Ltd.", "Limited"},
	{"Plc", "PLC"},
	{"&", "and"},
}

// Tech sector classification by company-name keywords, checked in order.
var sectorKeywords = []struct {
	sector   string
	keywords []string
}{
	{"Software", []string{"software", "systems", "solutions", "application", "platform", "cloud", "saas", "digital", "cyber", "information technology"}},
	{"Hardware", []string{"semiconductor", "electronics", "electric", "components", "devices", "hardware", "manufacturing", "equipment"}},
	{"Telecommunications", []string{"telecom", "communications", "wireless", "mobile", "network", "broadband", "5g", "fiber"}},
	{"Internet Services", []string{"internet", "online", "web", "portal", "e-commerce", "digital media", "social"}},
	{"AI & Data", []string{"artificial intelligence", "machine learning", "data", "analytics", "big data", "intelligence", "algorithm"}},
	{"Gaming & Entertainment", []string{"game", "gaming", "entertainment", "interactive", "media", "animation", "virtual"}},
	{"Fintech", []string{"fintech", "payment", "financial technology", "blockchain", "crypto", "digital payment", "banking technology"}},
	{"Biotech & HealthTech", []string{"biotech", "bioinformatics", "medical technology", "health tech", "healthcare technology", "pharma tech", "life sciences"}},
	{"Industrial Tech", []string{"industrial", "automation", "robotics", "iot", "smart", "control systems", "sensors"}},
	{"CleanTech", []string{"renewable", "solar", "battery", "energy storage", "clean tech", "green technology", "sustainable"}},
}

// KnownCountryCodes returns the codes the quality scorer should accept.
func KnownCountryCodes() []string {
	codes := make([]string, 0, len(countryNames))
	for code := range countryNames {
		codes = append(codes, code)
	}
	return codes
}

func lookupCountry(code string) (name, region string) {
	name, ok := countryNames[code]
	if !ok {
		name = "Other"
	}
	region, ok = countryRegions[code]
	if !ok {
		region = "Other"
	}
	return name, region
}

func classifySector(name string) string {
	lower := strings.ToLower(name)
	for _, s := range sectorKeywords {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				return s.sector
			}
		}
	}
	if strings.Contains(lower, "technology") || strings.Contains(lower, "tech") || strings.Contains(lower, "it ") {
		return "General Technology"
	}
	return "Other Technology"
}
