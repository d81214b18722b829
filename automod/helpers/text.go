package helpers

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
	"github.com/spaolacci/murmur3"
)

func DedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// based on: https://stackoverflow.com/a/48769624, with no trailing period allowed
var urlRegex = regexp.MustCompile(`(?:(?:https?|ftp):\/\/)?[\w/\-?=%.]+\.[\w/\-&?=%.]*[\w/\-&?=%]+`)

// Extracts URL-like strings from free-form text, with or without a scheme, in order of appearance.
func ExtractTextURLs(raw string) []string {
	return urlRegex.FindAllString(raw, -1)
}

var inviteRegex = regexp.MustCompile(`(?i)(?:^|[/.])(?:discord\.gg|discord(?:app)?\.com/invite|dsc\.gg)/[\w-]+`)

// Reports whether the URL is a community invite link.
func IsInviteLink(u string) bool {
	return inviteRegex.MatchString(u)
}

// Normalizes a URL-like string and returns its lower-case hostname (without "www."), or empty string if it can't be parsed.
func HostOf(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	clean, err := purell.NormalizeURLString(raw, purell.FlagsUsuallySafeGreedy|purell.FlagRemoveWWW|purell.FlagRemoveFragment)
	if err != nil {
		return ""
	}
	u, err := url.Parse(clean)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Returns the hostname and each of its parent domains, most specific first, stopping before the bare TLD.
//
// For example "a.b.example.com" yields ["a.b.example.com", "b.example.com", "example.com"].
func DomainCandidates(host string) []string {
	host = strings.Trim(host, ".")
	if host == "" {
		return nil
	}
	out := []string{host}
	for {
		idx := strings.Index(host, ".")
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if !strings.Contains(host, ".") {
			break
		}
		out = append(out, host)
	}
	return out
}
