package assessment

import (
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/models"
)

// Composite score thresholds for the overall color.
const (
	redThreshold    = 70.0
	orangeThreshold = 40.0

	maxKeyFindings = 5
)

// recommendations per overall level. Fixed templates, not generated text.
var recommendationTemplates = map[models.RiskColor][]string{
	models.ColorRed: {
		"Revisión legal urgente de los procedimientos judiciales y sancionadores detectados.",
		"Evaluar la cobertura D&O vigente frente a los riesgos identificados antes de renovar.",
		"Solicitar información adicional al órgano de administración sobre los eventos de alto riesgo.",
	},
	models.ColorOrange: {
		"Seguimiento trimestral de los eventos de riesgo medio identificados.",
		"Verificar la situación financiera y los cambios regulatorios que afectan a la compañía.",
	},
	models.ColorGreen: {
		"Mantener la monitorización periódica estándar de la compañía.",
	},
}

// Scorer turns a classified search envelope into a risk assessment.
type Scorer struct {
	logger arbor.ILogger
}

// NewScorer creates the assessment scorer.
func NewScorer(logger arbor.ILogger) *Scorer {
	return &Scorer{logger: logger}
}

// Score computes the assessment for one envelope over the searched window.
func (s *Scorer) Score(envelope *models.SearchEnvelope, userID string, window common.DateWindow) *models.Assessment {
	var (
		total       int
		high        int
		medium      int
		highLegal   int
		mediumLegal int
		press       int
	)

	for _, item := range envelope.Results {
		total++
		if item.RiskLabel.IsHigh() {
			high++
		}
		if item.RiskLabel.IsMedium() {
			medium++
		}
		if item.RiskLabel == models.RiskHighLegal {
			highLegal++
		}
		if item.RiskLabel == models.RiskMediumLegal {
			mediumLegal++
		}
		if item.Source.IsPress() {
			press++
		}
	}

	var financial, legal, pressScore float64
	if total > 0 {
		financial = 100 * (0.8*float64(high) + 0.4*float64(medium)) / float64(total)
		legal = 100 * (0.9*float64(highLegal) + 0.5*float64(mediumLegal)) / float64(total)
		pressScore = 100 * (0.6 * float64(press)) / float64(total)
	}
	composite := (financial + legal + pressScore) / 3

	overall := colorForScore(composite)

	assessment := &models.Assessment{
		AssessmentID: common.NewAssessmentID(),
		UserID:       userID,

		TurnoverRisk:     colorForScore(financial),
		ShareholdingRisk: colorForScore(financial * 0.8),
		BankruptcyRisk:   colorForScore(math.Max(financial, legal)),
		LegalRisk:        colorForScore(legal),
		CorruptionRisk:   colorForScore(legal * 0.7),
		OverallRisk:      overall,

		FinancialScore: round1(financial),
		LegalScore:     round1(legal),
		PressScore:     round1(pressScore),
		CompositeScore: round1(composite),

		WindowStart:     window.StartDate(),
		WindowEnd:       window.EndDate(),
		SourcesSearched: sourcesSearched(envelope),
		ResultCounts:    resultCounts(envelope),
		KeyFindings:     keyFindings(envelope),
		Recommendations: recommendationTemplates[overall],
		CreatedAt:       time.Now(),
	}
	assessment.Summary = fmt.Sprintf(
		"%s: %d eventos analizados, %d de riesgo alto y %d de riesgo medio. Puntuación compuesta %.1f (%s).",
		envelope.CompanyName, total, high, medium, assessment.CompositeScore, overall)

	s.logger.Info().
		Str("company", envelope.CompanyName).
		Float64("composite", assessment.CompositeScore).
		Str("overall", string(overall)).
		Msg("Assessment scored")

	return assessment
}

// colorForScore maps a 0..100 score onto the threshold colors.
func colorForScore(score float64) models.RiskColor {
	switch {
	case score >= redThreshold:
		return models.ColorRed
	case score >= orangeThreshold:
		return models.ColorOrange
	default:
		return models.ColorGreen
	}
}

// keyFindings lists the titles of the highest-risk events, reds first.
func keyFindings(envelope *models.SearchEnvelope) []string {
	var findings []string
	for _, item := range envelope.Results {
		if item.RiskLabel.IsHigh() {
			findings = append(findings, item.Title)
		}
		if len(findings) >= maxKeyFindings {
			return findings
		}
	}
	for _, item := range envelope.Results {
		if item.RiskLabel.IsMedium() {
			findings = append(findings, item.Title)
		}
		if len(findings) >= maxKeyFindings {
			break
		}
	}
	return findings
}

func sourcesSearched(envelope *models.SearchEnvelope) []string {
	sources := make([]string, 0, len(envelope.Metadata))
	for source := range envelope.Metadata {
		sources = append(sources, source)
	}
	return sources
}

func resultCounts(envelope *models.SearchEnvelope) map[string]int {
	counts := map[string]int{}
	for _, item := range envelope.Results {
		counts[string(item.Source)]++
	}
	return counts
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
