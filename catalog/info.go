package catalog

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

// InfoFileNames are the accepted metadata file names, by priority.
var InfoFileNames = []string{"info.txt", "!info.txt", "game.info", "game.txt"}

// Info is the metadata found in a game's info file. Empty fields were not set.
type Info struct {
	Title       string
	Developer   string
	Publisher   string
	ReleaseDate string
	Description string
	IGDBID      int
}

// ParseInfo reads "key: value" lines. Lines starting with '#' are comments; a key with an
// empty value collects the following lines until the next known key. Inside such a block,
// indented lines and lines whose prefix is not a known key are text, so "Note: ..." stays
// part of a description.
func ParseInfo(r io.Reader) (Info, error) {
	var info Info
	var currentKey string
	var multiline []string

	flush := func() {
		if currentKey != "" && len(multiline) > 0 {
			info.set(currentKey, strings.Join(multiline, "\n"))
		}
		currentKey = ""
		multiline = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inBlock := currentKey != ""
		indented := raw != strings.TrimLeftFunc(raw, unicode.IsSpace)
		if key, value, ok := strings.Cut(line, ":"); ok && !(inBlock && (indented || !knownKey(key))) {
			flush()
			key = strings.ToLower(strings.TrimSpace(key))
			value = strings.TrimSpace(value)
			if value == "" {
				currentKey = key
			} else {
				info.set(key, value)
			}
			continue
		}
		if currentKey != "" {
			multiline = append(multiline, line)
		}
	}
	flush()
	return info, scanner.Err()
}

// infoKeys maps every accepted key alias onto its field.
var infoKeys = map[string]string{
	"title": "title", "name": "title", "game": "title", "game name": "title",
	"developer": "developer", "dev": "developer",
	"publisher": "publisher", "pub": "publisher",
	"release": "release", "release date": "release", "date": "release",
	"description": "description", "desc": "description", "about": "description",
	"igdb": "igdb", "igdb_id": "igdb", "igdb id": "igdb",
}

func knownKey(key string) bool {
	_, ok := infoKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

func (i *Info) set(key, value string) {
	switch infoKeys[key] {
	case "title":
		i.Title = value
	case "developer":
		i.Developer = value
	case "publisher":
		i.Publisher = value
	case "release":
		i.ReleaseDate = value
	case "description":
		i.Description = value
	case "igdb":
		if n, err := strconv.Atoi(value); err == nil {
			i.IGDBID = n
		}
	default:
		log.Debug().Str("key", key).Msg("Unknown info file key")
	}
}

// DefaultTitle derives a display title from a game directory name
// ("the_witcher_3" becomes "The Witcher 3").
func DefaultTitle(dirName string) string {
	words := strings.Fields(strings.ReplaceAll(dirName, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func isInfoFile(name string) (int, bool) {
	for i, n := range InfoFileNames {
		if strings.EqualFold(n, name) {
			return i, true
		}
	}
	return 0, false
}
