// Package application contém os casos de uso do controle de acesso:
// Tracker (máquina de estados de reputação), Allowlist (tiers por origem),
// Policy (tabela de rotas por tier), Service (decisão final) e ViolationHook
// (rebaixamento de convidados reincidentes).
//
// Depende apenas de domain e cidr; não conhece net/http.
package application
