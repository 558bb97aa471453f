package intent

import "context"

// Router applies the confidence threshold on top of the classifier
// capability. Low-confidence or failed classifications resolve through the
// deterministic keyword matcher, which bounds how far adversarial text can
// steer routing: it can lower confidence, never pick an unrestricted label.
type Router struct {
	classifier Classifier
	keyword    *KeywordClassifier
	threshold  float64
}

func NewRouter(classifier Classifier, threshold float64) *Router {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	return &Router{
		classifier: classifier,
		keyword:    NewKeywordClassifier(),
		threshold:  threshold,
	}
}

// Classify resolves a message to an intent. It never returns an error: any
// capability failure silently falls back to the keyword matcher.
func (r *Router) Classify(ctx context.Context, text string, recentContext []string) Result {
	res, err := r.classifier.Classify(ctx, text, recentContext)
	if err == nil && res.Confidence >= r.threshold && knownLabel(res.Label) {
		return res
	}

	fallback, _ := r.keyword.Classify(ctx, text, recentContext)
	return fallback
}

func knownLabel(label string) bool {
	for _, l := range FallbackLabels {
		if l == label {
			return true
		}
	}
	return false
}
