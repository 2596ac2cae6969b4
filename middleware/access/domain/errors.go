package domain

import "errors"

var (
	ErrInvalidAddress     = errors.New("access: invalid address or range")
	ErrInvalidTier        = errors.New("access: invalid tier for dynamic entry")
	ErrAlreadyAllowlisted = errors.New("access: address already allowlisted")
	ErrImmutableEntry     = errors.New("access: permanent and configured entries cannot be changed at runtime")
	ErrNotAllowlisted     = errors.New("access: address has no dynamic entry")
	ErrPersist            = errors.New("access: could not persist dynamic allowlist")
	ErrWriteBusy          = errors.New("access: allowlist write lock busy")

	// ErrNoSnapshot indica que o armazenamento ainda não tem registro salvo.
	// Não é falha: o boot segue com o conjunto dinâmico vazio.
	ErrNoSnapshot = errors.New("access: no dynamic allowlist snapshot")
)
