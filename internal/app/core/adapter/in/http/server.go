package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
)

// HeaderIdempotencyKey 重送 POST /transacoes 時帶同一個 UUID，只會建立一筆交易
const HeaderIdempotencyKey = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// Server 將 HTTP 請求轉成 CoreUseCase 呼叫
type Server struct {
	core   *usecase.CoreUseCase
	logger *slog.Logger
	// loc 解讀與輸出日期的時區，與計算「今天」的時區相同
	loc *time.Location
}

// NewServer 建立 HTTP adapter；logger 為 nil 時使用 slog.Default()
func NewServer(core *usecase.CoreUseCase, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{core: core, logger: logger, loc: core.Location()}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.core.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// ─── 帳戶 ───

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.core.ListAccounts(r.Context(), r.URL.Query().Get("nome"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.core.CreateAccount(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(a))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.core.GetAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) renameAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req accountRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.core.RenameAccount(r.Context(), id, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.core.DeleteAccount(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── 交易 ───

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{Description: q.Get("descricao")}
	if raw := q.Get("conta_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			s.writeError(w, r, badRequest("conta_id inválido"))
			return
		}
		filter.AccountID = id
	}
	txs, err := s.core.ListTransactions(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t, s.loc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tran, err := req.toTransaction(s.loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if key := r.Header.Get(HeaderIdempotencyKey); key != "" {
		ref, err := uuid.Parse(key)
		if err != nil {
			s.writeError(w, r, badRequest(HeaderIdempotencyKey+" deve ser um UUID"))
			return
		}
		tran.RefID = ref
	}
	created, err := s.core.CreateTransaction(r.Context(), tran)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(created, s.loc))
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.core.GetTransaction(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t, s.loc))
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := req.toPatch(s.loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.core.UpdateTransaction(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(updated, s.loc))
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.core.DeleteTransaction(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── 餘額 ───

func (s *Server) balances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.core.GetBalances(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			AccountID:   b.AccountID,
			AccountName: b.AccountName,
			Balance:     domain.FormatAmount(b.Amount),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// decode 解析 JSON body；未知欄位直接忽略 (PUT 常會把 GET 回來的整筆資料送回)
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("JSON inválido: " + err.Error())
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("id inválido")
	}
	return id, nil
}
