package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/deusflow/threatwatch/internal/news"
)

type keyword struct {
	name string
	re   *regexp.Regexp
}

func kw(name, pattern string) keyword {
	return keyword{name: name, re: regexp.MustCompile(`(?i)\b` + pattern + `\b`)}
}

// keywords are matched against title_en + summary_en. Stems end in \w* so
// "escalat" also catches "escalation" and "escalating".
var keywords = []keyword{
	kw("attack", `attack(?:s|ed)?`),
	kw("strike", `strikes?`),
	kw("missile", `missiles?`),
	kw("drone", `drones?`),
	kw("bomb", `bomb(?:s|ing|ed)?`),
	kw("shelling", `shell(?:ing|ed)?`),
	kw("raid", `raids?`),
	kw("airstrike", `air\s*strikes?`),
	kw("rocket", `rockets?`),
	kw("intercept", `intercept\w*`),
	kw("shoot down", `sh(?:oo|o)t(?:ing)?\s*down`),
	kw("explosion", `explosions?`),
	kw("offensive", `offensive`),
	kw("retaliat", `retaliat\w*`),
	kw("casualties", `casualt\w*`),
	kw("killed", `killed`),
	kw("wounded", `wounded`),
	kw("dead", `dead`),
	kw("deaths", `deaths?`),
	kw("military operation", `military\s*operations?`),
	kw("invasion", `invasion`),
	kw("escalat", `escalat\w*`),
	kw("ceasefire", `ceasefire`),
	kw("war", `war`),
	kw("conflict", `conflict`),
	kw("clash", `clash(?:es|ed)?`),
	kw("confrontat", `confrontat\w*`),
	kw("skirmish", `skirmish\w*`),
	kw("siege", `siege`),
	kw("blockade", `blockade`),
	kw("nuclear", `nuclear`),
	kw("enrich", `enrich\w*`),
	kw("uranium", `uranium`),
	kw("centrifuge", `centrifuges?`),
	kw("warhead", `warheads?`),
	kw("ballistic", `ballistic`),
	kw("irgc", `IRGC`),
	kw("idf", `IDF`),
	kw("hezbollah", `Hezbollah`),
	kw("houthi", `Houthis?`),
	kw("ansar allah", `Ansar\s*Allah`),
	kw("hamas", `Hamas`),
	kw("pmf", `PMF`),
	kw("islamic jihad", `Islamic\s*Jihad`),
	kw("quds force", `Quds\s*Force`),
	kw("deploym", `deploym\w*`),
	kw("mobiliz", `mobili[sz]\w*`),
	kw("threat", `threat\w*`),
	kw("sanction", `sanction\w*`),
	kw("embargo", `embargo`),
	kw("air defense", `air\s*defen[cs]e`),
	kw("iron dome", `Iron\s*Dome`),
	kw("proxy", `prox(?:y|ies)`),
	kw("militia", `militias?`),
	kw("insurgent", `insurgents?`),
	kw("tunnel", `tunnels?`),
	kw("ied", `IEDs?`),
	kw("suicide", `suicide`),
	kw("assassinat", `assassinat\w*`),
	kw("targeted killing", `target(?:ed)?\s*killing`),
}

var (
	highKeywords   = map[string]bool{"missile": true, "airstrike": true, "killed": true, "casualties": true, "nuclear": true, "invasion": true}
	mediumKeywords = map[string]bool{"attack": true, "strike": true, "drone": true, "rocket": true, "escalat": true, "clash": true}
)

// MatchKeywords counts keyword hits in text and returns the distinct keyword
// names that matched, sorted.
func MatchKeywords(text string) (int, []string) {
	count := 0
	seen := map[string]bool{}
	for _, k := range keywords {
		n := len(k.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		count += n
		seen[k.name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return count, names
}

// Prefilter sets keyword_matches and matched_keywords on every article and
// returns the indexes of those with at least one hit.
func Prefilter(articles []news.Article) []int {
	var matched []int
	for i := range articles {
		a := &articles[i]
		text := strings.Join([]string{a.TitleEN, a.Summary()}, " ")
		a.KeywordMatches, a.MatchedKeywords = MatchKeywords(text)
		if a.KeywordMatches > 0 {
			matched = append(matched, i)
		} else {
			a.MatchedKeywords = nil
		}
	}
	return matched
}

// DefaultClassification is used when the LLM cannot be reached or its reply
// does not parse.
func DefaultClassification(a *news.Article) *news.Classification {
	severity := news.SeverityLow
	for _, k := range a.MatchedKeywords {
		if highKeywords[k] {
			severity = news.SeverityHigh
			break
		}
		if mediumKeywords[k] {
			severity = news.SeverityMedium
		}
	}
	return &news.Classification{
		IsAttack:        true,
		Category:        "other",
		Severity:        severity,
		PartiesInvolved: []string{},
		Location:        "Unknown",
		Brief:           "Classified by keyword matching (LLM unavailable)",
	}
}
