// Package classifier implements the two-stage hybrid risk classifier: a
// deterministic keyword gate that resolves the vast majority of documents in
// microseconds, and an LLM fallback for the ambiguous residue.
package classifier

import (
	"regexp"
	"strings"

	"github.com/ternarybob/vigia/internal/models"
)

// boeSectionOverrides are BOE section codes that map straight to High-Legal
// regardless of the text content.
var boeSectionOverrides = map[string]bool{
	"JUS":     true,
	"CNMC":    true,
	"AEPD":    true,
	"CNMV":    true,
	"BDE":     true,
	"DGSFP":   true,
	"SEPBLAC": true,
}

// gateRule is one priority tier of the keyword gate. Rules are scanned in
// declaration order and the first match wins.
type gateRule struct {
	label      models.RiskLabel
	confidence float64
	method     models.ClassificationMethod
	patterns   []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		compiled = append(compiled, regexp.MustCompile("(?i)"+expr))
	}
	return compiled
}

// legalIndicatorRe marks text that carries legal content. It gates the
// short-text heuristic and the hybrid escalation predicate.
var legalIndicatorRe = regexp.MustCompile(`(?i)tribunal|juzgado|sentencia|proceso|expediente|sanci[oó]n|multa|infracci[oó]n|normativ|regulaci[oó]n`)

// routinePatternRe marks short corporate boilerplate that is never worth an
// LLM call.
var routinePatternRe = regexp.MustCompile(`(?i)nombramiento|junta general|convocatoria|resultados trimestrales|dividendo|informe anual`)

// ContainsLegalIndicator reports whether the text mentions any legal-content
// indicator term.
func ContainsLegalIndicator(text string) bool {
	return legalIndicatorRe.MatchString(text)
}

// IsRoutinePattern reports whether the text matches routine corporate
// boilerplate.
func IsRoutinePattern(text string) bool {
	return routinePatternRe.MatchString(text)
}

// KeywordGate is the deterministic first classifier stage. It is read-only
// after construction and safe for concurrent use.
type KeywordGate struct {
	rules []gateRule
}

// NewKeywordGate compiles the rule set in priority order.
func NewKeywordGate() *KeywordGate {
	return &KeywordGate{
		rules: []gateRule{
			{
				label:      models.RiskNoLegal,
				confidence: 0.90,
				method:     models.MethodKeywordNoLegal,
				patterns: compileAll(
					`\bf[uú]tbol\b|\bbaloncesto\b|\bliga\b|\bcampeonato\b|\btorneo\b|partido de (ida|vuelta|liga|f[uú]tbol|baloncesto)|mundial de`,
					`\bconcierto\b|\bfestival\b|\bpel[ií]cula\b|serie de televisi[oó]n|\bestreno\b|gira (musical|de conciertos)`,
					`gana el premio|recibe el galard[oó]n|mejor empresa del a[nñ]o|reconocimiento a`,
					`patrocin(a|io)|fichaje|aniversario de la fundaci[oó]n`,
				),
			},
			{
				label:      models.RiskHighLegal,
				confidence: 0.92,
				method:     models.MethodKeywordHighLegal,
				patterns: compileAll(
					`concurso de acreedores|quiebra|insolvencia|suspensi[oó]n de pagos|administraci[oó]n concursal`,
					`delito|penal|fraude|estafa|corrupci[oó]n|soborno|cohecho|malversaci[oó]n|prevaricaci[oó]n`,
					`blanqueo de capitales|lavado de dinero|financiaci[oó]n del terrorismo`,
					`manipulaci[oó]n de mercado|abuso de mercado|informaci[oó]n privilegiada`,
					`imputad[oa]|procesad[oa]|querella criminal|prisi[oó]n|condena`,
					`sanci[oó]n muy grave`,
				),
			},
			{
				label:      models.RiskHighFinancial,
				confidence: 0.90,
				method:     models.MethodKeywordHighFin,
				patterns: compileAll(
					`p[eé]rdidas millonarias|p[eé]rdidas r[eé]cord|agujero financiero`,
					`crisis de liquidez|falta de liquidez|problemas de tesorer[ií]a`,
					`impago de (la )?deuda|default|incumplimiento de pago`,
					`desplome (burs[aá]til|de las acciones)|ca[ií]da libre`,
				),
			},
			{
				label:      models.RiskHighRegulatory,
				confidence: 0.90,
				method:     models.MethodKeywordHighReg,
				patterns: compileAll(
					`(multa|sanci[oó]n) (de la |del |impuesta por )?(cnmv|cnmc|aepd|banco de espa[nñ]a|sepblac|dgsfp)`,
					`expediente sancionador`,
					`inhabilitaci[oó]n (de|para)`,
					`multa millonaria`,
				),
			},
			{
				label:      models.RiskMediumLegal,
				confidence: 0.87,
				method:     models.MethodKeywordMediumLegal,
				patterns: compileAll(
					`advertencia|apercibimiento|requerimiento`,
					`procedimiento administrativo|expediente informativo|diligencias previas`,
					`sanci[oó]n leve|multa leve`,
					`deficiencias de cumplimiento|incumplimiento normativo`,
				),
			},
			{
				label:      models.RiskMediumOperational,
				confidence: 0.85,
				method:     models.MethodKeywordMediumOps,
				patterns: compileAll(
					`despido colectivo|regulaci[oó]n de empleo|expediente de regulaci[oó]n`,
					`incidente medioambiental|vertido|contaminaci[oó]n|derrame`,
				),
			},
			{
				label:      models.RiskLowLegal,
				confidence: 0.82,
				method:     models.MethodKeywordLowLegal,
				patterns: compileAll(
					`anuncio oficial|notificaci[oó]n|edicto`,
					`licencia|autorizaci[oó]n administrativa`,
					`registro mercantil|inscripci[oó]n registral|convocatoria de junta`,
				),
			},
			{
				label:      models.RiskLowOperational,
				confidence: 0.80,
				method:     models.MethodKeywordLowOps,
				patterns: compileAll(
					`nombramiento|cese de|dimisi[oó]n|relevo en`,
					`fusi[oó]n|adquisici[oó]n|compra de|absorci[oó]n`,
					`traslado de sede|cambio de domicilio social`,
				),
			},
		},
	}
}

// shortTextLimit is the length under which keyword-free text is treated as
// No-Legal without escalation.
const shortTextLimit = 100

// Classify scans the rule tiers in priority order. A nil result means the
// document is ambiguous and belongs to the LLM stage. Section overrides win
// over every text pattern.
func (g *KeywordGate) Classify(text, title, section string) *models.Classification {
	if code := strings.ToUpper(strings.TrimSpace(section)); boeSectionOverrides[code] {
		return &models.Classification{
			Label:      models.RiskHighLegal,
			Confidence: 0.95,
			Method:     models.MethodKeywordSection,
			Rationale:  "BOE section " + code,
		}
	}

	haystack := title
	if text != "" {
		haystack = title + " " + text
	}

	for _, rule := range g.rules {
		for _, re := range rule.patterns {
			if match := re.FindString(haystack); match != "" {
				return &models.Classification{
					Label:      rule.label,
					Confidence: rule.confidence,
					Method:     rule.method,
					Rationale:  "matched: " + strings.ToLower(match),
				}
			}
		}
	}

	if len(text) < shortTextLimit && !ContainsLegalIndicator(haystack) {
		return &models.Classification{
			Label:      models.RiskNoLegal,
			Confidence: 0.85,
			Method:     models.MethodKeywordShortText,
			Rationale:  "short text without legal indicators",
		}
	}

	return nil
}
