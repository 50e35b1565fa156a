package auth

import "sync"

// TokensRepository maps an app token to its symphony token. It backs inbound
// extension-app token validation; writes only happen during authentication.
type TokensRepository interface {
	Save(appToken string, symphonyToken string)
	Get(appToken string) (string, bool)
}

// InMemoryTokensRepository keeps token pairs for the process lifetime.
type InMemoryTokensRepository struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewInMemoryTokensRepository returns an empty repository.
func NewInMemoryTokensRepository() *InMemoryTokensRepository {
	return &InMemoryTokensRepository{tokens: make(map[string]string)}
}

func (r *InMemoryTokensRepository) Save(appToken string, symphonyToken string) {
	r.mu.Lock()
	r.tokens[appToken] = symphonyToken
	r.mu.Unlock()
}

func (r *InMemoryTokensRepository) Get(appToken string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symphonyToken, ok := r.tokens[appToken]
	return symphonyToken, ok
}
