package ports

import "github.com/layer-3/dripper/core"

// Tokenizer converts between raw bearer tokens and session credentials
type Tokenizer interface {
	TokenToCredential(token string, address string) (core.SessionCredential, error)
}
