package http

import "net/http"

// Handler 建立完整的 HTTP 處理鏈
//
//	/contas      帳戶
//	/transacoes  交易
//	/saldo       各帳戶今天的餘額
//	/health      存活檢查
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)

	mux.HandleFunc("GET /contas", s.listAccounts)
	mux.HandleFunc("POST /contas", s.createAccount)
	mux.HandleFunc("GET /contas/{id}", s.getAccount)
	mux.HandleFunc("PUT /contas/{id}", s.renameAccount)
	mux.HandleFunc("DELETE /contas/{id}", s.deleteAccount)

	mux.HandleFunc("GET /transacoes", s.listTransactions)
	mux.HandleFunc("POST /transacoes", s.createTransaction)
	mux.HandleFunc("GET /transacoes/{id}", s.getTransaction)
	mux.HandleFunc("PUT /transacoes/{id}", s.updateTransaction)
	mux.HandleFunc("DELETE /transacoes/{id}", s.deleteTransaction)

	mux.HandleFunc("GET /saldo", s.balances)

	return withRequestID(s.withAccessLog(s.withRecover(mux)))
}
