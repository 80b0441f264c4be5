package checkpoint

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	defaultSlug   = "checkpoint"
	emergencySlug = "pre_restore"
	maxSlugLen    = 40
	nameTimeFmt   = "20060102_150405"
)

// collisionSuffix matches the "_<n>" NewName appends after the time.
var collisionSuffix = regexp.MustCompile(`_\d{8}_\d{6}_(\d+)$`)

// Slug reduces s to lowercase ASCII letters, digits, and single underscores.
func Slug(s string) string {
	var b strings.Builder

	pendingSep := false

	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}

			b.WriteRune(r)

			pendingSep = false

			continue
		}

		pendingSep = true
	}

	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "_")
	}

	return slug
}

// NewName builds "<slug>_<YYYYMMDD>_<HHMMSS>" from the first non-empty hint,
// appending "_<n>" until taken reports false.
func NewName(at time.Time, taken func(string) bool, hints ...string) string {
	slug := ""

	for _, hint := range hints {
		slug = Slug(hint)
		if slug != "" {
			break
		}
	}

	if slug == "" {
		slug = defaultSlug
	}

	base := slug + "_" + at.UTC().Format(nameTimeFmt)

	name := base
	for n := 2; taken(name); n++ {
		name = base + "_" + strconv.Itoa(n)
	}

	return name
}

// nameSequence returns the collision suffix of a generated name, or 1 when
// the name has none.
func nameSequence(name string) int {
	m := collisionSuffix.FindStringSubmatch(name)
	if m == nil {
		return 1
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1
	}

	return n
}
