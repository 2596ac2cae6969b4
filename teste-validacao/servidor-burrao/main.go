package main

import (
	"fmt"
	"net/http"
)

// Upstream "burro" para validar a tabela de rotas do gateway na mão:
// cada rota só responde quem chegou e por onde.
func main() {
	rotas := []string{
		"/showTela",
		"/health",
		"/docs",
		"/api/dados",
		"/api/example/modelo",
		"/api/security/chaves",
		"/logs",
	}
	for _, rota := range rotas {
		rota := rota
		http.HandleFunc(rota, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>%s %s recebida com sucesso!</p>", r.Method, rota)
			fmt.Printf("Log: %s (xff=%q) acessou %s\n", r.RemoteAddr, r.Header.Get("X-Forwarded-For"), rota)
		})
	}
	fmt.Println("Servidor rodando em http://localhost:8081")
	err := http.ListenAndServe(":8081", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
