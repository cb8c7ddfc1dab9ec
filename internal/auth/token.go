// Package auth maps presented tokens to privilege levels. Tokens are
// static shared secrets handed out alongside the wall's URL; there is
// no account system behind them.
package auth

// Level is the privilege tier a token grants.
type Level int

const (
	LevelNone Level = iota
	LevelViewer
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelViewer:
		return "viewer"
	case LevelAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Authority validates tokens against the configured secrets.
type Authority struct {
	userToken  string
	adminToken string
}

func NewAuthority(userToken, adminToken string) *Authority {
	return &Authority{userToken: userToken, adminToken: adminToken}
}

// Authorize returns the privilege level for a token. Unknown or empty
// tokens yield LevelNone; an empty configured secret never matches.
func (a *Authority) Authorize(token string) Level {
	if token == "" {
		return LevelNone
	}
	switch token {
	case a.adminToken:
		return LevelAdmin
	case a.userToken:
		return LevelViewer
	}
	return LevelNone
}
