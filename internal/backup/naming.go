package backup

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TimestampLayout is the second-granularity timestamp embedded in artifact names.
const TimestampLayout = "20060102_150405"

var artifactPattern = regexp.MustCompile(
	`^(.*)_v([1-9][0-9]*)_backup_([0-9]{8}_[0-9]{6})(?:-([1-9][0-9]*))?(\.[^.]*)?$`)

// Name is a parsed artifact file name.
type Name struct {
	Base      string
	Ext       string
	Version   int
	Timestamp string
	// Seq is the collision disambiguator, 0 when absent.
	Seq int
}

// String renders the artifact file name.
func (n Name) String() string {
	if n.Seq > 0 {
		return fmt.Sprintf("%s_v%d_backup_%s-%d%s", n.Base, n.Version, n.Timestamp, n.Seq, n.Ext)
	}
	return fmt.Sprintf("%s_v%d_backup_%s%s", n.Base, n.Version, n.Timestamp, n.Ext)
}

// ArtifactName builds <base>_v<version>_backup_<YYYYMMDD_HHMMSS>[-seq]<ext>
// using ts in its own location.
func ArtifactName(base, ext string, version int, ts time.Time, seq int) string {
	return Name{
		Base:      base,
		Ext:       ext,
		Version:   version,
		Timestamp: ts.Format(TimestampLayout),
		Seq:       seq,
	}.String()
}

// ParseName parses an artifact file name. ok is false for names that do
// not follow the backup pattern.
func ParseName(name string) (n Name, ok bool) {
	m := artifactPattern.FindStringSubmatch(name)
	if m == nil {
		return Name{}, false
	}
	v, err := strconv.Atoi(m[2])
	if err != nil {
		return Name{}, false
	}
	n = Name{Base: m[1], Version: v, Timestamp: m[3], Ext: m[5]}
	if m[4] != "" {
		if n.Seq, err = strconv.Atoi(m[4]); err != nil {
			return Name{}, false
		}
	}
	return n, true
}

// IsArtifactName reports whether name follows the backup pattern. Such
// names are never tracked as source files.
func IsArtifactName(name string) bool {
	return artifactPattern.MatchString(name)
}
