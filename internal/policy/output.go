package policy

import (
	"regexp"
	"strings"
)

// HealthDisclaimer is appended to every health-intent response. The exact
// sentence is a regulatory requirement and never entrusted to a handler.
const HealthDisclaimer = "Bitte beachte: Ich bin kein Arzt. Bei gesundheitlichen Beschwerden wende dich an medizinisches Fachpersonal."

var (
	aiAdmissionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bI\s*(?:'?m| am)\s+(?:an?\s+)?(?:AI|artificial intelligence|bot|chatbot|language model|LLM|virtual assistant)\b`),
		regexp.MustCompile(`(?i)\bas an? (?:AI|language model|chatbot|bot)\b`),
		regexp.MustCompile(`(?i)\bich bin (?:eine?\s+)?(?:KI|k(?:ü|ue)nstliche intelligenz|bot|chatbot|sprachmodell)\b`),
		regexp.MustCompile(`(?i)\bals (?:KI|sprachmodell|chatbot)\b`),
	}

	emergencyKeywords = []string{
		"herzinfarkt", "heart attack", "schlaganfall", "stroke",
		"bewusstlos", "unconscious", "atemnot", "can't breathe",
		"notarzt", "notfall", "emergency", "kollabiert", "collapsed",
		"starke brustschmerzen", "severe chest pain",
	}
)

// FilterResult describes what the output policy changed before publication.
type FilterResult struct {
	Text               string
	ReplacedAdmission  bool
	AppendedDisclaimer bool
}

// FilterOutbound enforces the output policy on a draft response. healthIntent
// controls whether the fixed disclaimer must be present.
func FilterOutbound(draft string, healthIntent bool, personaReplacement string) FilterResult {
	res := FilterResult{Text: draft}

	for _, re := range aiAdmissionPatterns {
		if re.MatchString(res.Text) {
			res.Text = personaReplacement
			res.ReplacedAdmission = true
			break
		}
	}

	if healthIntent && !strings.Contains(res.Text, HealthDisclaimer) {
		res.Text = strings.TrimRight(res.Text, " \n") + "\n\n" + HealthDisclaimer
		res.AppendedDisclaimer = true
	}

	return res
}

// ContainsAIAdmission reports whether text matches the forbidden phrase set.
func ContainsAIAdmission(text string) bool {
	for _, re := range aiAdmissionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// DetectEmergency reports whether user text matches a health-emergency
// keyword. A match short-circuits normal dispatch.
func DetectEmergency(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range emergencyKeywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}
