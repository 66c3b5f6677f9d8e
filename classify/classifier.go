// Package classify implements the Classifier component of spec §4.1:
// mapping free-text citizen reports to a responder category by weighted
// keyword matching.
package classify

import "strings"

// Category is one of the three responder categories a report can route to.
type Category string

const (
	CategoryHealth        Category = "health"
	CategoryInvestigation Category = "investigation"
	CategoryPolice        Category = "police"
)

// categories is ordered; ties resolve to the lowest index per spec §4.1.
var categories = []struct {
	name     Category
	keywords []string
}{
	{CategoryHealth, []string{
		"injured", "injury", "bleeding", "unconscious", "heart attack", "stroke",
		"pregnant", "labor", "breathing", "choking", "poison", "overdose",
		"ambulance", "medical", "sick", "fever", "wound", "accident victim",
	}},
	{CategoryInvestigation, []string{
		"theft", "stolen", "robbery", "burglary", "fraud", "scam", "missing person",
		"kidnap", "blackmail", "embezzlement", "corruption", "counterfeit",
		"investigation", "evidence", "witness",
	}},
	{CategoryPolice, []string{
		"fight", "assault", "weapon", "gun", "knife", "violence", "disturbance",
		"riot", "protest", "fire", "explosion", "traffic", "accident", "threat",
		"harassment", "drunk", "vandalism", "noise",
	}},
}

// Result is the Classifier's output.
type Result struct {
	Category         Category
	Confidence       int
	MatchedKeywords  []string
}

// minConfidenceThreshold below which the fallback category wins.
const minConfidenceThreshold = 5

// Classify concatenates lowercased title+description and counts keyword
// occurrences per category. Linear in text length × total keyword count.
// Deterministic: equal inputs always yield equal outputs (spec §8).
func Classify(title, description string) Result {
	text := strings.ToLower(title + " " + description)

	bestIdx := -1
	bestConfidence := -1
	var bestMatches []string

	for idx, cat := range categories {
		matches := 0
		var matched []string
		for _, kw := range cat.keywords {
			if strings.Contains(text, kw) {
				matches++
				matched = append(matched, kw)
			}
		}
		confidence := 0
		if len(cat.keywords) > 0 {
			confidence = matches * 100 / len(cat.keywords)
		}
		if confidence > bestConfidence {
			bestConfidence = confidence
			bestIdx = idx
			bestMatches = matched
		}
	}

	if bestIdx == -1 || bestConfidence < minConfidenceThreshold {
		return Result{
			Category:        CategoryPolice,
			Confidence:      50,
			MatchedKeywords: []string{"general incident"},
		}
	}

	return Result{
		Category:        categories[bestIdx].name,
		Confidence:      bestConfidence,
		MatchedKeywords: bestMatches,
	}
}
