package extraction

import "strings"

// personIndicators are the phrases that precede a person mention in task
// text. The "@" indicator matches a directly attached handle (@anna).
var personIndicators = []string{
	"for ",
	"with ",
	"call ",
	"meet ",
	"meeting with ",
	"email ",
	"ask ",
	"remind ",
	"tell ",
}

// nameStopWords are capitalized tokens that end a candidate name. Sentence
// starts and weekday mentions would otherwise pass the capitalization check.
var nameStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"to": true, "at": true, "on": true, "in": true, "about": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"today": true, "tomorrow": true, "tonight": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

// relationshipByIndicator maps an indicator phrase to an inferred
// relationship tag. Indicators without an entry yield no tag.
var relationshipByIndicator = map[string]string{
	"meeting with ": "colleague",
	"email ":        "colleague",
	"call ":         "contact",
}

// goalVocabulary maps a goal theme to the keywords that signal it in task
// titles, notes, or list names.
var goalVocabulary = map[string][]string{
	"fitness":  {"workout", "gym", "run", "running", "exercise", "training", "yoga", "swim"},
	"learning": {"learn", "study", "course", "tutorial", "practice", "read", "book", "lesson"},
	"career":   {"interview", "resume", "cv", "promotion", "networking", "portfolio", "linkedin"},
	"finance":  {"budget", "invest", "savings", "tax", "taxes", "bank", "insurance"},
	"health":   {"doctor", "dentist", "appointment", "medication", "therapy", "meditation", "sleep"},
	"home":     {"clean", "cleaning", "repair", "organize", "declutter", "garden", "laundry"},
}

// scheduleKeywords are the textual indicators of a schedule habit.
var scheduleKeywords = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"every", "daily", "weekly", "weekday", "weekend",
	"morning", "afternoon", "evening", "tonight",
}

// TimeBucket names one of the six fixed time-of-day buckets.
type TimeBucket string

const (
	BucketEarlyMorning TimeBucket = "early_morning"
	BucketMorning      TimeBucket = "morning"
	BucketMidday       TimeBucket = "midday"
	BucketAfternoon    TimeBucket = "afternoon"
	BucketEvening      TimeBucket = "evening"
	BucketNight        TimeBucket = "night"
)

// bucketForHour maps an hour of day onto its bucket.
func bucketForHour(hour int) TimeBucket {
	switch {
	case hour >= 5 && hour < 8:
		return BucketEarlyMorning
	case hour >= 8 && hour < 11:
		return BucketMorning
	case hour >= 11 && hour < 14:
		return BucketMidday
	case hour >= 14 && hour < 17:
		return BucketAfternoon
	case hour >= 17 && hour < 21:
		return BucketEvening
	default:
		return BucketNight
	}
}

// containsKeyword reports whether any keyword occurs in the lower-cased text.
func containsKeyword(lower string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}
