package ports

import "github.com/layer-3/gamebridge/core"

// Tokenizer converts between session claims and signed tokens
type Tokenizer interface {
	SessionToToken(claims *core.SessionClaims) (string, error)
	TokenToSession(token string) (*core.SessionClaims, error)
}
