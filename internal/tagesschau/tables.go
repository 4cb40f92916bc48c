package tagesschau

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Region is one of the sixteen German states the news endpoint filters by.
type Region struct {
	ID   int
	Name string
}

// Regions is ordered by ID; Regions[i].ID == i+1.
var Regions = [16]Region{
	{1, "Baden-Württemberg"},
	{2, "Bayern"},
	{3, "Berlin"},
	{4, "Brandenburg"},
	{5, "Bremen"},
	{6, "Hamburg"},
	{7, "Hessen"},
	{8, "Mecklenburg-Vorpommern"},
	{9, "Niedersachsen"},
	{10, "Nordrhein-Westfalen"},
	{11, "Rheinland-Pfalz"},
	{12, "Saarland"},
	{13, "Sachsen"},
	{14, "Sachsen-Anhalt"},
	{15, "Schleswig-Holstein"},
	{16, "Thüringen"},
}

// RegionByID looks up a region, reporting false for ids outside [1,16].
func RegionByID(id int) (Region, bool) {
	if id < 1 || id > len(Regions) {
		return Region{}, false
	}
	return Regions[id-1], true
}

// Topic is a news department slug ("ressort" in the API).
type Topic string

const (
	TopicInland     Topic = "inland"
	TopicAusland    Topic = "ausland"
	TopicWirtschaft Topic = "wirtschaft"
	TopicSport      Topic = "sport"
	TopicVideo      Topic = "video"
)

// Topics lists every accepted slug in navigation order.
var Topics = [5]Topic{TopicInland, TopicAusland, TopicWirtschaft, TopicSport, TopicVideo}

// ParseTopic accepts only the whitelisted slugs.
func ParseTopic(s string) (Topic, bool) {
	for _, t := range Topics {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// DisplayName is the slug with its first letter upper-cased.
func (t Topic) DisplayName() string {
	return Capitalize(string(t))
}

// Capitalize upper-cases the first rune of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	b.WriteRune(unicode.ToUpper(r))
	b.WriteString(s[size:])
	return b.String()
}
