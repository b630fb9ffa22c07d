package core

import (
	"crypto/rand"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	slugInvalidRegex = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugDashRegex    = regexp.MustCompile(`[\s-]+`)
	randAlphabet     = []byte("abcdefghijklmnopqrstuvwxyz0123456789")
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd tries to find the project root, the first parent directory holding a go.mod.
// go-test changes the working directory to the test package being run during tests.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd // not in a source tree (e.g. deployed binary)
		}
		currDir = newDir
	}
}

// Round rounds x half away from zero to `places` decimals.
func Round(x float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(x*pow) / pow
}

// Percent returns 100*part/total rounded to `places` decimals, or 0 when total is 0.
func Percent(part, total int, places int) float64 {
	if total <= 0 {
		return 0
	}
	return Round(float64(part)/float64(total)*100, places)
}

// ParseInt parses s, returning def when s is empty or malformed.
func ParseInt(s string, def int) int {
	i, err := strconv.Atoi(CleanString(s))
	if err != nil {
		return def
	}
	return i
}

// ParseFloat parses s (accepting a decimal comma), returning def when s is empty or malformed.
func ParseFloat(s string, def float64) float64 {
	s = strings.Replace(CleanString(s), ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// Slugify lowers s, strips accents and joins words with dashes.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	slug := slugInvalidRegex.ReplaceAllString(strings.ToLower(b.String()), "")
	slug = slugDashRegex.ReplaceAllString(strings.TrimSpace(slug), "-")
	return strings.Trim(slug, "-")
}

// RandomString returns n random lowercase alphanumeric characters.
func RandomString(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("core.RandomString: %v", err)
	}
	for i, b := range buf {
		buf[i] = randAlphabet[int(b)%len(randAlphabet)]
	}
	return string(buf)
}
