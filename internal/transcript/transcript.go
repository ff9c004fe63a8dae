// Package transcript corrects speech-to-text output against the user's
// vocabulary: product names, people, devices and other proper nouns that
// general-purpose recognisers routinely mishear.
//
// The [Corrector] applies up to two stages:
//
//  1. Phonetic matching ([PhoneticMatcher]): in-process alignment of word
//     windows to vocabulary terms by pronunciation and spelling similarity.
//     No network calls.
//
//  2. LLM-assisted correction: a language model resolves what the phonetic
//     stage left alone. Only edits the model declares are kept.
//
// Each [Correction] records the stage that produced it and its confidence.
package transcript

// Correction stage names.
const (
	MethodPhonetic = "phonetic"
	MethodLLM      = "llm"
)

// Correction captures a single substitution.
type Correction struct {
	// Original is the span as produced by the recogniser.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the stage's confidence in this substitution (0.0-1.0).
	Confidence float64

	// Method is MethodPhonetic or MethodLLM.
	Method string
}

// Result is the output of [Corrector.Apply].
type Result struct {
	// Original is the text as received.
	Original string

	// Corrected is the text with every substitution applied.
	Corrected string

	// Corrections lists the substitutions in the order they were applied.
	Corrections []Correction
}

// PhoneticMatcher resolves a word or short phrase to a vocabulary term by
// pronunciation similarity. Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match returns the vocabulary term most similar to word. When matched
	// is false, corrected equals word and confidence is 0.
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}
