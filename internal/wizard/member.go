package wizard

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Gradients is the member card palette, picked by list position when a
// member is added.
var Gradients = []string{
	"linear-gradient(135deg, #f43f5e, #d946ef)",
	"linear-gradient(135deg, #f59e0b, #ef4444)",
	"linear-gradient(135deg, #10b981, #14b8a6)",
	"linear-gradient(135deg, #a855f7, #d946ef)",
	"linear-gradient(135deg, #00f3ff, #0066ff)",
	"linear-gradient(135deg, #06b6d4, #3b82f6)",
	"linear-gradient(135deg, #8b5cf6, #6366f1)",
	"linear-gradient(135deg, #22c55e, #15803d)",
}

// Member fields addressable through Draft.UpdateTeamMember.
const (
	MemberFieldName            = "name"
	MemberFieldEmail           = "email"
	MemberFieldGitHubUsername  = "github_username"
	MemberFieldDiscordUsername = "discord_username"
	MemberFieldRole            = "role"
)

// Member is a team member on the final step. Gradient is fixed when the
// member is added; initials and avatar are derived on read.
type Member struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	GitHubUsername  string `json:"github_username"`
	DiscordUsername string `json:"discord_username"`
	Role            Role   `json:"role"`
	Gradient        string `json:"gradient"`
}

// Initials is the uppercased first letter of up to two name tokens, or "?".
func (m Member) Initials() string {
	var b strings.Builder
	n := 0
	for _, tok := range strings.Fields(m.Name) {
		r, _ := utf8.DecodeRuneInString(tok)
		b.WriteRune(unicode.ToUpper(r))
		if n++; n == 2 {
			break
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}

// Avatar is the GitHub avatar URL, empty without a handle.
func (m Member) Avatar() string {
	handle := strings.TrimSpace(m.GitHubUsername)
	if handle == "" {
		return ""
	}
	return "https://github.com/" + handle + ".png"
}

// MarshalJSON includes the derived display attributes.
func (m Member) MarshalJSON() ([]byte, error) {
	type plain Member
	return json.Marshal(struct {
		plain
		Initials string `json:"initials"`
		Avatar   string `json:"avatar"`
	}{plain(m), m.Initials(), m.Avatar()})
}

func gradientFor(position int) string {
	return Gradients[position%len(Gradients)]
}
