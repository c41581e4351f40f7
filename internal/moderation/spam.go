package moderation

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var (
	// linkPattern finds scheme, www. and bare-domain links. A bare domain
	// needs a trailing path so "v2.0" and "node.js" are not links.
	linkPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|dev|xyz|info|biz|ru|cn|tk)/\S*)`)

	// phonePattern matches numbers such as +1-555-123-4567 or
	// (555) 123-4567 that stand as their own token.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// collabHosts may be linked in chat: sharing repositories is how matched
// developers start working together.
var collabHosts = map[string]struct{}{
	"github.com":    {},
	"gitlab.com":    {},
	"bitbucket.org": {},
	"codeberg.org":  {},
}

const (
	charFloodRun = 5
	wordFloodRun = 3
)

type spamRule struct {
	term  string
	match func(string) bool
}

// spamRules are evaluated in order; the first hit is reported.
var spamRules = []spamRule{
	{term: "link", match: hasForeignLink},
	{term: "phone", match: phonePattern.MatchString},
	{term: "char_flood", match: hasCharFlood},
	{term: "word_flood", match: hasWordFlood},
}

func checkSpam(text string) FilterResult {
	for _, rule := range spamRules {
		if rule.match(text) {
			return FilterResult{Blocked: true, Reason: ReasonSpam, Term: rule.term}
		}
	}
	return FilterResult{}
}

// hasForeignLink reports a link whose host is not a collaboration host.
func hasForeignLink(text string) bool {
	for _, link := range linkPattern.FindAllString(text, -1) {
		if !allowedLink(link) {
			return true
		}
	}
	return false
}

func allowedLink(link string) bool {
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	_, ok := collabHosts[host]
	return ok
}

// hasCharFlood reports charFloodRun identical runes in a row. RE2 has no
// backreferences, hence the scan.
func hasCharFlood(text string) bool {
	run, prev := 0, rune(-1)
	for _, r := range text {
		if r != prev {
			run, prev = 1, r
			continue
		}
		run++
		if run >= charFloodRun {
			return true
		}
	}
	return false
}

// hasWordFlood reports the same word wordFloodRun times in a row, ignoring
// case.
func hasWordFlood(text string) bool {
	run, prev := 0, ""
	for _, w := range strings.FieldsFunc(text, unicode.IsSpace) {
		w = strings.ToLower(w)
		if w != prev {
			run, prev = 1, w
			continue
		}
		run++
		if run >= wordFloodRun {
			return true
		}
	}
	return false
}
