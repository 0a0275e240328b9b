package version

import (
	"regexp"
	"strings"
)

// Kind tells which filename convention a rule recognizes.
type Kind int

const (
	Installer Kind = iota
	Patch
)

func (k Kind) String() string {
	switch k {
	case Installer:
		return "installer"
	case Patch:
		return "patch"
	default:
		return "unknown"
	}
}

// Match is the typed result of a successful rule match.
type Match struct {
	Kind  Kind
	Rule  string
	Title string
	From  Token // zero for installers
	To    Token
}

// Rule is one declarative filename convention. Pattern must define the named groups
// "to" and "toq"; patch rules additionally define "from" and "fromq". A "title" group
// is optional.
type Rule struct {
	Name    string
	Kind    Kind
	Pattern *regexp.Regexp
}

// extensions accepted for installers and patches.
const extensions = `(?:exe|msi|sh|run|bin|pkg|dmg|zip|7z|rar|tar\.gz|tgz)`

// DefaultRules are tried in order; the first matching rule of a kind wins.
var DefaultRules = []Rule{
	{
		// setup_amid_evil_gog_build_2241b_(64bit)_(51706).exe
		Name: "installer-build",
		Kind: Installer,
		Pattern: regexp.MustCompile(`(?i)^(?:setup|install(?:er)?)[_ -](?P<title>.+?)[_ -](?:gog[_ -])?build[_ -]?` +
			`(?P<to>\d+)(?P<toq>[a-z]*)(?:[_ (-].*)?\.` + extensions + `$`),
	},
	{
		// setup_hades_1.38.2.exe, install_game_v2.0b_(64bit).exe
		Name: "installer-dotted",
		Kind: Installer,
		Pattern: regexp.MustCompile(`(?i)^(?:setup|install(?:er)?)[_ -](?P<title>.+)[_ -]v?` +
			`(?P<to>\d+(?:\.\d+)+)(?P<toq>[a-z][a-z0-9]*)?(?:[_ (-].*)?\.` + extensions + `$`),
	},
	{
		// patch_amid_evil_GOG_Build_2055a_(37083)_to_GOG_Build_2172_(47150).exe
		Name: "patch-build",
		Kind: Patch,
		Pattern: regexp.MustCompile(`(?i)^(?:patch|update)[_ -](?P<title>.+?)[_ -](?:gog[_ -])?build[_ -]?` +
			`(?P<from>\d+)(?P<fromq>[a-z]*)(?:[_ -]\(\d+\))?[_ -]to[_ -](?:gog[_ -])?build[_ -]?` +
			`(?P<to>\d+)(?P<toq>[a-z]*)(?:[_ (-].*)?\.` + extensions + `$`),
	},
	{
		// patch_hades_1.0_to_1.1.exe
		Name: "patch-dotted",
		Kind: Patch,
		Pattern: regexp.MustCompile(`(?i)^(?:patch|update)[_ -](?P<title>.+?)[_ -]v?` +
			`(?P<from>\d+(?:\.\d+)*)(?P<fromq>[a-z][a-z0-9]*)?[_ -]to[_ -]v?` +
			`(?P<to>\d+(?:\.\d+)*)(?P<toq>[a-z][a-z0-9]*)?(?:[_ (-].*)?\.` + extensions + `$`),
	},
}

// Parser applies an ordered rule list to filenames.
type Parser struct {
	rules []Rule
}

// NewParser returns a parser over rules. With no rules it uses DefaultRules.
func NewParser(rules ...Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Parser{rules: rules}
}

var defaultParser = NewParser()

// Match tries every installer rule, then every patch rule.
func (p *Parser) Match(filename string) (Match, bool) {
	if m, ok := p.match(filename, Installer); ok {
		return m, true
	}
	return p.match(filename, Patch)
}

// ParseInstaller returns the version embedded in an installer filename.
func (p *Parser) ParseInstaller(filename string) (Token, bool) {
	m, ok := p.match(filename, Installer)
	if !ok {
		return Token{}, false
	}
	return m.To, true
}

// ParsePatch returns the source and target versions embedded in a patch filename.
func (p *Parser) ParsePatch(filename string) (Token, Token, bool) {
	m, ok := p.match(filename, Patch)
	if !ok {
		return Token{}, Token{}, false
	}
	return m.From, m.To, true
}

func (p *Parser) match(filename string, kind Kind) (Match, bool) {
	for _, r := range p.rules {
		if r.Kind != kind {
			continue
		}
		if m, ok := r.apply(filename); ok {
			return m, true
		}
	}
	return Match{}, false
}

func (r Rule) apply(filename string) (Match, bool) {
	sub := r.Pattern.FindStringSubmatch(filename)
	if sub == nil {
		return Match{}, false
	}
	group := func(name string) string {
		if i := r.Pattern.SubexpIndex(name); i >= 0 {
			return sub[i]
		}
		return ""
	}

	to, ok := fromParts(group("to"), group("toq"), "")
	if !ok {
		return Match{}, false
	}
	m := Match{Kind: r.Kind, Rule: r.Name, To: to, Title: cleanTitle(group("title"))}
	if r.Kind == Patch {
		from, ok := fromParts(group("from"), group("fromq"), "")
		if !ok {
			return Match{}, false
		}
		m.From = from
	}
	return m, true
}

func cleanTitle(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseInstaller applies DefaultRules to an installer filename.
func ParseInstaller(filename string) (Token, bool) {
	return defaultParser.ParseInstaller(filename)
}

// ParsePatch applies DefaultRules to a patch filename.
func ParsePatch(filename string) (Token, Token, bool) {
	return defaultParser.ParsePatch(filename)
}

// MatchFilename applies DefaultRules to any filename.
func MatchFilename(filename string) (Match, bool) {
	return defaultParser.Match(filename)
}
