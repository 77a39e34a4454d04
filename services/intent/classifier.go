// Package intent maps a request's text or media type to a coarse intent
// category. Classification never fails: every input yields a Decision.
package intent

import (
	"math"
	"strings"
)

// Intent is a coarse request category
type Intent string

const (
	Chat                 Intent = "chat"
	Code                 Intent = "code"
	Planner              Intent = "planner"
	Integration          Intent = "integration"
	FileAnalysis         Intent = "file_analysis"
	FileAnalysisImage    Intent = "file_analysis_image"
	FileAnalysisAudio    Intent = "file_analysis_audio"
	FileAnalysisVideo    Intent = "file_analysis_video"
	FileAnalysisDocument Intent = "file_analysis_document"
)

// Reason codes attached to a Decision
const (
	ReasonFileIDPresent = "file_id_present"
	ReasonDefaultChat   = "default_chat"
	ReasonKeywordMatch  = "keyword_match"
	ReasonMimeImage     = "mime_image"
	ReasonMimeAudio     = "mime_audio"
	ReasonMimeVideo     = "mime_video"
	ReasonMimeGeneric   = "mime_generic"
)

const (
	defaultConfidence = 0.35
	baseConfidence    = 0.4
	perHitConfidence  = 0.2
	maxConfidence     = 0.95
)

// Decision is the outcome of one classification
type Decision struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type vocabulary struct {
	intent   Intent
	keywords []string
}

// vocabularies are evaluated in order; a later intent needs a strictly
// greater score to win
var vocabularies = []vocabulary{
	{Chat, []string{"hello", "hi", "привет", "здарова", "сәлем"}},
	{Code, []string{"code", "bug", "refactor", "function", "api", "код", "ошибка"}},
	{Planner, []string{"plan", "task", "schedule", "todo", "план", "задача", "распис"}},
	{Integration, []string{"slack", "notion", "google", "integration", "интегра"}},
	{FileAnalysis, []string{"file", "image", "audio", "video", "analyze", "файл", "анализ", "аудио", "видео"}},
}

// Classify scores text against the keyword vocabularies. A non-empty fileID
// always wins.
func Classify(text, fileID string) Decision {
	if fileID != "" {
		return Decision{Intent: FileAnalysis, Confidence: 1.0, Reason: ReasonFileIDPresent}
	}

	lowered := strings.ToLower(text)
	best, bestScore := Chat, 0
	for _, v := range vocabularies {
		if score := countHits(lowered, v.keywords); score > bestScore {
			best, bestScore = v.intent, score
		}
	}

	if bestScore == 0 {
		return Decision{Intent: Chat, Confidence: defaultConfidence, Reason: ReasonDefaultChat}
	}
	return Decision{
		Intent:     best,
		Confidence: math.Min(maxConfidence, baseConfidence+perHitConfidence*float64(bestScore)),
		Reason:     ReasonKeywordMatch,
	}
}

// ClassifyFile picks a file analysis subtype from a MIME type
func ClassifyFile(mime string) Decision {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return Decision{Intent: FileAnalysisImage, Confidence: 0.95, Reason: ReasonMimeImage}
	case strings.HasPrefix(mime, "audio/"):
		return Decision{Intent: FileAnalysisAudio, Confidence: 0.95, Reason: ReasonMimeAudio}
	case strings.HasPrefix(mime, "video/"):
		return Decision{Intent: FileAnalysisVideo, Confidence: 0.95, Reason: ReasonMimeVideo}
	default:
		return Decision{Intent: FileAnalysisDocument, Confidence: 0.8, Reason: ReasonMimeGeneric}
	}
}

// Known reports whether s names an intent this package produces
func Known(s string) bool {
	switch Intent(s) {
	case Chat, Code, Planner, Integration, FileAnalysis,
		FileAnalysisImage, FileAnalysisAudio, FileAnalysisVideo, FileAnalysisDocument:
		return true
	}
	return false
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}
