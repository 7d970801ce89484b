package archive

import (
	"path"
	"strconv"
	"strings"
)

const (
	MetadataMemberName = "metadata"

	// Directory the reference writer nests universe streams under.
	legacyStreamDir = "recording"

	memberMode = 0o644

	DefaultMaxMemberSize int64 = 1 << 30
)

// universeMemberName returns the archive member name for universe n.
func universeMemberName(n int) string {
	return strconv.Itoa(n)
}

// universeMemberCandidates lists the names universe n may be stored under,
// in lookup order.
func universeMemberCandidates(n int) []string {
	name := universeMemberName(n)
	return []string{name, path.Join(legacyStreamDir, name)}
}

// normalizeName strips "./" and "/" prefixes so members written with
// either root convention resolve the same way.
func normalizeName(name string) string {
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}
