package session

import (
	"crypto/rand"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// GhostIDPrefix starts every ghost tag.
const GhostIDPrefix = "GHOST_USER_#"

const ghostSuffixLen = 4

var ghostSpace = big.NewInt(36 * 36 * 36 * 36)

// newGhostID draws a tag of the form GHOST_USER_#XXXX where X is an uppercase
// base-36 character. It never returns previous.
func newGhostID(r io.Reader, previous string) string {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, ghostSpace)
	if err != nil {
		n = new(big.Int).Mod(big.NewInt(time.Now().UnixNano()), ghostSpace)
	}
	id := GhostIDPrefix + formatSuffix(n)
	if id == previous {
		n.Add(n, big.NewInt(1)).Mod(n, ghostSpace)
		id = GhostIDPrefix + formatSuffix(n)
	}
	return id
}

func formatSuffix(n *big.Int) string {
	s := strings.ToUpper(strconv.FormatInt(n.Int64(), 36))
	if len(s) < ghostSuffixLen {
		s = strings.Repeat("0", ghostSuffixLen-len(s)) + s
	}
	return s
}

// IsGhostID reports whether id has the ghost tag format.
func IsGhostID(id string) bool {
	suffix, ok := strings.CutPrefix(id, GhostIDPrefix)
	if !ok || len(suffix) != ghostSuffixLen {
		return false
	}
	for _, c := range suffix {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
