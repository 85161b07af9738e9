package models

import (
	"time"
)

// Assessment is the scored risk verdict for one (company, user, window).
type Assessment struct {
	AssessmentID string `json:"assessment_id"`
	CompanyVAT   string `json:"company_vat,omitempty"`
	UserID       string `json:"user_id"`

	TurnoverRisk     RiskColor `json:"turnover_risk"`
	ShareholdingRisk RiskColor `json:"shareholding_risk"`
	BankruptcyRisk   RiskColor `json:"bankruptcy_risk"`
	LegalRisk        RiskColor `json:"legal_risk"`
	CorruptionRisk   RiskColor `json:"corruption_risk"`
	OverallRisk      RiskColor `json:"overall_risk"`

	FinancialScore float64 `json:"financial_score"`
	LegalScore     float64 `json:"legal_score"`
	PressScore     float64 `json:"press_score"`
	CompositeScore float64 `json:"composite_score"`

	WindowStart     string         `json:"window_start"`
	WindowEnd       string         `json:"window_end"`
	SourcesSearched []string       `json:"sources_searched"`
	ResultCounts    map[string]int `json:"result_counts"`
	Summary         string         `json:"summary"`
	KeyFindings     []string       `json:"key_findings"`
	Recommendations []string       `json:"recommendations"`
	CreatedAt       time.Time      `json:"created_at"`
}
