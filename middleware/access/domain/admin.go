package domain

// RoleAdmin é o único papel aceito pela API administrativa.
const RoleAdmin = "admin"

// AdminClaims é o que a API administrativa precisa saber do token.
type AdminClaims struct {
	Subject string
	Role    string
}

// TokenValidator valida o token bearer da API administrativa.
type TokenValidator interface {
	Validate(token string) (AdminClaims, error)
}
