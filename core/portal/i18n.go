package portal

import (
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/es"
	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
)

// DefaultLanguage is used when neither the request nor the config names a supported one.
const DefaultLanguage = "en"

// Message keys
const (
	msgTitle        = "title"
	msgSummary      = "summary"
	msgUpdated      = "updated"
	msgSkill        = "skill"
	msgLevel        = "level"
	msgConfidence   = "confidence"
	msgEvidence     = "evidence"
	msgAssessed     = "assessed"
	msgInferredFrom = "inferred_from"
	msgNotAssessed  = "not_assessed"
	msgNotes        = "notes"
	msgLinkSubject  = "link_subject"
)

var catalog = map[string]map[string]string{
	"en": {
		msgTitle:        "Progress of {0}",
		msgSummary:      "{0} of {1} skills mastered",
		msgUpdated:      "Updated {0}",
		msgSkill:        "Skill",
		msgLevel:        "Level",
		msgConfidence:   "Confidence",
		msgEvidence:     "Evidence",
		msgAssessed:     "assessed",
		msgInferredFrom: "inferred from {0}",
		msgNotAssessed:  "not assessed yet",
		msgNotes:        "Notes",
		msgLinkSubject:  "Progress of {0}",
		string(BandMastered):   "mastered",
		string(BandDeveloping): "developing",
		string(BandNotYet):     "not yet",
	},
	"es": {
		msgTitle:        "Progreso de {0}",
		msgSummary:      "{0} de {1} habilidades dominadas",
		msgUpdated:      "Actualizado el {0}",
		msgSkill:        "Habilidad",
		msgLevel:        "Nivel",
		msgConfidence:   "Confianza",
		msgEvidence:     "Evidencia",
		msgAssessed:     "evaluada",
		msgInferredFrom: "inferida de {0}",
		msgNotAssessed:  "aún sin evaluar",
		msgNotes:        "Notas",
		msgLinkSubject:  "Progreso de {0}",
		string(BandMastered):   "dominada",
		string(BandDeveloping): "en desarrollo",
		string(BandNotYet):     "todavía no",
	},
	"fr": {
		msgTitle:        "Progrès de {0}",
		msgSummary:      "{0} compétences maîtrisées sur {1}",
		msgUpdated:      "Mis à jour le {0}",
		msgSkill:        "Compétence",
		msgLevel:        "Niveau",
		msgConfidence:   "Confiance",
		msgEvidence:     "Preuve",
		msgAssessed:     "évaluée",
		msgInferredFrom: "déduite de {0}",
		msgNotAssessed:  "pas encore évaluée",
		msgNotes:        "Notes",
		msgLinkSubject:  "Progrès de {0}",
		string(BandMastered):   "maîtrisée",
		string(BandDeveloping): "en cours",
		string(BandNotYet):     "pas encore",
	},
}

// Localizer picks the translator of a language, falling back to a default one.
type Localizer struct {
	uni      *ut.UniversalTranslator
	fallback string
}

// NewLocalizer returns a localizer for en, es and fr. An unsupported fallback is replaced by DefaultLanguage.
func NewLocalizer(fallback string) *Localizer {
	_en := en.New()
	uni := ut.New(_en, _en, es.New(), fr.New())
	for lang, msgs := range catalog {
		trans, _ := uni.GetTranslator(lang)
		for key, text := range msgs {
			_ = trans.Add(key, text, false)
		}
	}
	if _, ok := catalog[fallback]; !ok {
		fallback = DefaultLanguage
	}
	return &Localizer{uni: uni, fallback: fallback}
}

// Language returns the supported language of a tag like "es", "es-MX" or "fr_CA", else the fallback.
func (l *Localizer) Language(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	if _, ok := catalog[tag]; ok {
		return tag
	}
	return l.fallback
}

// Translator returns the translator for tag, else the fallback one.
func (l *Localizer) Translator(tag string) ut.Translator {
	trans, _ := l.uni.GetTranslator(l.Language(tag))
	return trans
}

func tr(trans ut.Translator, key string, params ...string) string {
	s, err := trans.T(key, params...)
	if err != nil {
		return key
	}
	return s
}
