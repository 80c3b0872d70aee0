package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/creastat/receipts"
	"github.com/creastat/receipts/document"
	"github.com/creastat/receipts/purchase"
	"github.com/creastat/receipts/session"
)

const healthText = "Servidor do Kinbox Pix Parser rodando!"

type parseRequest struct {
	CustomerPlatformID string `json:"customerPlatformId"`
	AttachmentURL      string `json:"attachment_url"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
}

type finalizeRequest struct {
	CustomerPlatformID string `json:"customerPlatformId"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
}

type response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type itemView struct {
	Kind    session.ItemKind `json:"kind"`
	Value   json.Number      `json:"valor"`
	Txid    string           `json:"txid,omitempty"`
	AddedAt time.Time        `json:"added_at"`
}

type sessionView struct {
	CustomerKey string         `json:"customerPlatformId"`
	SessionID   string         `json:"sessionId"`
	Status      session.Status `json:"status"`
	Items       []itemView     `json:"items"`
	Txids       []string       `json:"txids"`
	Total       json.Number    `json:"valorTotal"`
	ReportID    string         `json:"reportId,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	ClosedAt    *time.Time     `json:"closedAt,omitempty"`
}

type parseData struct {
	CustomerKey string                  `json:"customerPlatformId"`
	Outcome     purchase.Outcome        `json:"outcome"`
	Value       *json.Number            `json:"valor"`
	Confidence  float64                 `json:"confidence"`
	Candidates  []json.Number           `json:"candidates"`
	Txid        string                  `json:"txid,omitempty"`
	Document    document.Classification `json:"document"`
	Session     *sessionView            `json:"session,omitempty"`
	Notified    bool                    `json:"notified"`
}

type purchaseView struct {
	SessionID   string      `json:"sessionId"`
	CustomerKey string      `json:"customerPlatformId"`
	Status      string      `json:"status"`
	Currency    string      `json:"currency"`
	Total       json.Number `json:"valorTotal"`
	ItemCount   int         `json:"itemCount"`
	Txids       []string    `json:"txids"`
	ReportID    string      `json:"reportId,omitempty"`
	ReportError string      `json:"reportError,omitempty"`
	ClosedAt    *time.Time  `json:"closedAt,omitempty"`
}

type finalizeData struct {
	Session         sessionView `json:"session"`
	ReportID        string      `json:"reportId,omitempty"`
	AlreadyReported bool        `json:"alreadyReported"`
	ReportSkipped   bool        `json:"reportSkipped"`
	Notified        bool        `json:"notified"`
}

func money(d decimal.Decimal) json.Number {
	return json.Number(receipts.Round2(d).StringFixed(2))
}

func newSessionView(s session.Session) sessionView {
	items := make([]itemView, len(s.Items))
	for i, it := range s.Items {
		items[i] = itemView{Kind: it.Kind, Value: money(it.Value), Txid: it.Txid, AddedAt: it.AddedAt}
	}
	txids := s.Txids
	if txids == nil {
		txids = []string{}
	}
	return sessionView{
		CustomerKey: s.CustomerKey,
		SessionID:   s.ID,
		Status:      s.Status,
		Items:       items,
		Txids:       txids,
		Total:       money(s.Total),
		ReportID:    s.ReportID,
		UpdatedAt:   s.UpdatedAt,
		ClosedAt:    s.ClosedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(healthText))
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.orch.SubmitReceipt(r.Context(), purchase.SubmitRequest{
		CustomerKey:   req.CustomerPlatformID,
		AttachmentURL: req.AttachmentURL,
		Phone:         req.Phone,
		Email:         req.Email,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := parseData{
		CustomerKey: req.CustomerPlatformID,
		Outcome:     res.Outcome,
		Confidence:  res.Confidence,
		Candidates:  make([]json.Number, len(res.Candidates)),
		Txid:        res.Txid,
		Document:    res.Document,
		Notified:    res.Notified,
	}
	if res.Value.Valid {
		v := money(res.Value.Decimal)
		data.Value = &v
	}
	for i, c := range res.Candidates {
		data.Candidates[i] = money(c)
	}
	if res.Session != nil {
		view := newSessionView(*res.Session)
		data.Session = &view
	}

	writeJSON(w, http.StatusOK, response{OK: true, Message: res.Message, Data: data})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.orch.FinalizePurchase(r.Context(), purchase.FinalizeRequest{
		CustomerKey: req.CustomerPlatformID,
		Phone:       req.Phone,
		Email:       req.Email,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := finalizeData{
		Session:         newSessionView(res.Session),
		ReportID:        res.ReportID,
		AlreadyReported: res.AlreadyReported,
		ReportSkipped:   res.ReportSkipped,
		Notified:        res.Notified,
	}
	if res.ReportErr != nil {
		writeJSON(w, http.StatusBadGateway, response{
			OK:      false,
			Message: res.Message,
			Error:   res.ReportErr.Error(),
			Data:    data,
		})
		return
	}
	writeJSON(w, http.StatusOK, response{OK: true, Message: "Compra finalizada", Data: data})
}

func (s *Server) handleTestPixel(w http.ResponseWriter, r *http.Request) {
	id, err := s.orch.ReportTestPurchase(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response{OK: true, Data: map[string]string{"reportId": id}})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ledger.Get(r.Context(), chi.URLParam(r, "customerKey"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{OK: true, Data: newSessionView(sess)})
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	p, err := s.purchases.GetPurchase(r.Context(), chi.URLParam(r, "sessionId"))
	if errors.Is(err, receipts.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, response{Error: "compra não encontrada"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	txids := p.Txids
	if txids == nil {
		txids = []string{}
	}
	writeJSON(w, http.StatusOK, response{OK: true, Data: purchaseView{
		SessionID:   p.SessionID,
		CustomerKey: p.CustomerKey,
		Status:      p.Status,
		Currency:    p.Currency,
		Total:       money(p.Total),
		ItemCount:   p.ItemCount,
		Txids:       txids,
		ReportID:    p.ReportID,
		ReportError: p.ReportError,
		ClosedAt:    p.ClosedAt,
	}})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, response{Error: "corpo da requisição muito grande"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, response{Error: "corpo da requisição inválido"})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, receipts.ErrMissingCustomerKey), errors.Is(err, receipts.ErrMissingAttachment):
		writeJSON(w, http.StatusBadRequest, response{Error: err.Error()})
	case errors.Is(err, receipts.ErrNotFound):
		writeJSON(w, http.StatusNotFound, response{Error: "sessão não encontrada"})
	default:
		s.logger.Error("request failed", "request_id", GetRequestID(r.Context()), "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, response{Error: "erro interno"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
