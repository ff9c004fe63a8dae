package llmcorrect

import "strings"

// anchor pairs a token index in the original sequence with the index of the
// same token in the corrected sequence.
type anchor struct {
	orig int
	corr int
}

// tokenLCS returns the longest common subsequence of a and b as anchors in
// increasing order. Transcripts are short, so the O(m*n) table is fine.
func tokenLCS(a, b []string) []anchor {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	k := dp[m][n]
	if k == 0 {
		return nil
	}
	anchors := make([]anchor, k)
	for i, j := m, n; i > 0 && j > 0; {
		switch {
		case a[i-1] == b[j-1]:
			k--
			anchors[k] = anchor{orig: i - 1, corr: j - 1}
			i--
			j--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return anchors
}

// normalizeForLookup lowercases s and strips trailing punctuation so that a
// span like "netties." matches a correction declared as "netties".
func normalizeForLookup(s string) string {
	return strings.ToLower(strings.TrimRight(s, ".,;:!?\"')"))
}

type spanKey struct{ orig, corr string }

func keyFor(orig, corr []string) spanKey {
	return spanKey{
		orig: normalizeForLookup(strings.Join(orig, " ")),
		corr: normalizeForLookup(strings.Join(corr, " ")),
	}
}

// verifyCorrectedText keeps only the edits in corrected that match a
// declared correction. Every other changed span is reverted to the original
// tokens. It returns the verified text and the confirmed corrections.
func verifyCorrectedText(original, corrected string, declared []Correction) (string, []Correction) {
	if original == corrected {
		return original, nil
	}

	orig := strings.Fields(original)
	corr := strings.Fields(corrected)

	lookup := make(map[spanKey]Correction, len(declared))
	for _, c := range declared {
		lookup[keyFor(strings.Fields(c.Original), strings.Fields(c.Corrected))] = c
	}

	var (
		out      []string
		verified []Correction
		oi, ci   int
	)
	// gap resolves the changed span ending just before (oEnd, cEnd).
	gap := func(oEnd, cEnd int) {
		if oi == oEnd && ci == cEnd {
			return
		}
		o, c := orig[oi:oEnd], corr[ci:cEnd]
		if d, ok := lookup[keyFor(o, c)]; ok {
			out = append(out, c...)
			verified = append(verified, d)
			return
		}
		out = append(out, o...)
	}

	for _, a := range tokenLCS(orig, corr) {
		gap(a.orig, a.corr)
		out = append(out, orig[a.orig])
		oi, ci = a.orig+1, a.corr+1
	}
	gap(len(orig), len(corr))

	return strings.Join(out, " "), verified
}
