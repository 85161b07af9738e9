package models

// RiskLabel is a value from the 4-tier x 3-category D&O risk taxonomy.
type RiskLabel string

const (
	RiskHighLegal         RiskLabel = "High-Legal"
	RiskHighFinancial     RiskLabel = "High-Financial"
	RiskHighRegulatory    RiskLabel = "High-Regulatory"
	RiskMediumLegal       RiskLabel = "Medium-Legal"
	RiskMediumOperational RiskLabel = "Medium-Operational"
	RiskLowLegal          RiskLabel = "Low-Legal"
	RiskLowOperational    RiskLabel = "Low-Operational"
	RiskNoLegal           RiskLabel = "No-Legal"
	RiskUnknown           RiskLabel = "Unknown"
)

// AllRiskLabels lists every member of the label set.
var AllRiskLabels = []RiskLabel{
	RiskHighLegal, RiskHighFinancial, RiskHighRegulatory,
	RiskMediumLegal, RiskMediumOperational,
	RiskLowLegal, RiskLowOperational,
	RiskNoLegal, RiskUnknown,
}

// Valid reports whether the label belongs to the label set.
func (l RiskLabel) Valid() bool {
	for _, known := range AllRiskLabels {
		if l == known {
			return true
		}
	}
	return false
}

// RiskColor is the UI contract color for a risk label.
type RiskColor string

const (
	ColorRed    RiskColor = "red"
	ColorOrange RiskColor = "orange"
	ColorGreen  RiskColor = "green"
	ColorGray   RiskColor = "gray"
)

// Color maps a risk label onto its UI color. High tiers are red, medium
// orange, low and no-legal green; anything else (including Unknown) is gray.
func (l RiskLabel) Color() RiskColor {
	switch l {
	case RiskHighLegal, RiskHighFinancial, RiskHighRegulatory:
		return ColorRed
	case RiskMediumLegal, RiskMediumOperational:
		return ColorOrange
	case RiskLowLegal, RiskLowOperational, RiskNoLegal:
		return ColorGreen
	default:
		return ColorGray
	}
}

// colorSeverity orders colors for overall-risk aggregation.
var colorSeverity = map[RiskColor]int{
	ColorGray:   0,
	ColorGreen:  1,
	ColorOrange: 2,
	ColorRed:    3,
}

// WorseColor returns the more severe of two colors.
func WorseColor(a, b RiskColor) RiskColor {
	if colorSeverity[b] > colorSeverity[a] {
		return b
	}
	return a
}

// IsHigh reports whether the label belongs to the high tier.
func (l RiskLabel) IsHigh() bool {
	return l == RiskHighLegal || l == RiskHighFinancial || l == RiskHighRegulatory
}

// IsMedium reports whether the label belongs to the medium tier.
func (l RiskLabel) IsMedium() bool {
	return l == RiskMediumLegal || l == RiskMediumOperational
}

// ClassificationMethod records which classifier path produced a label.
type ClassificationMethod string

const (
	MethodKeywordSection     ClassificationMethod = "keyword_section"
	MethodKeywordNoLegal     ClassificationMethod = "keyword_no_legal"
	MethodKeywordHighLegal   ClassificationMethod = "keyword_high_legal"
	MethodKeywordHighFin     ClassificationMethod = "keyword_high_financial"
	MethodKeywordHighReg     ClassificationMethod = "keyword_high_regulatory"
	MethodKeywordMediumLegal ClassificationMethod = "keyword_medium_legal"
	MethodKeywordMediumOps   ClassificationMethod = "keyword_medium_operational"
	MethodKeywordLowLegal    ClassificationMethod = "keyword_low_legal"
	MethodKeywordLowOps      ClassificationMethod = "keyword_low_operational"
	MethodKeywordShortText   ClassificationMethod = "keyword_short_text"
	MethodCached             ClassificationMethod = "cached"
	MethodHybridLLM          ClassificationMethod = "hybrid_llm"
	MethodHybridDefault      ClassificationMethod = "hybrid_default"
	MethodErrorFallback      ClassificationMethod = "error_fallback"
)

// Classification is the outcome of classifying one document.
type Classification struct {
	Label      RiskLabel            `json:"label"`
	Confidence float64              `json:"confidence"`
	Method     ClassificationMethod `json:"method"`
	Rationale  string               `json:"rationale"`
}
