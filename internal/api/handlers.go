/**
 * @description
 * This file contains the HTTP handlers for the remittance service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application services, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/shopspring/decimal: Exact monetary amounts from form fields.
 * - internal/app, internal/domain: For service logic, models, and error kinds.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/azeezabass2005/soolution-be/internal/app"
	"github.com/azeezabass2005/soolution-be/internal/domain"
)

// maxUploadBytes bounds multipart receipt and QR code uploads.
const maxUploadBytes = 10 << 20

// RemittanceHandlers holds the application services that handlers will use.
type RemittanceHandlers struct {
	service      *app.Service
	verification *app.VerificationService
}

// NewRemittanceHandlers creates a new instance of RemittanceHandlers.
func NewRemittanceHandlers(service *app.Service, verification *app.VerificationService) *RemittanceHandlers {
	return &RemittanceHandlers{service: service, verification: verification}
}

type remittanceResponse struct {
	TransactionID      string `json:"transaction_id"`
	Reference          string `json:"reference"`
	Status             string `json:"status"`
	Amount             string `json:"amount"`
	SourceCurrency     string `json:"source_currency"`
	SettlementCurrency string `json:"settlement_currency"`
	Message            string `json:"message,omitempty"`
}

func buildRemittanceResponse(tx *domain.Transaction, message string) remittanceResponse {
	return remittanceResponse{
		TransactionID:      tx.ID.String(),
		Reference:          tx.Reference,
		Status:             tx.Status,
		Amount:             tx.Amount.String(),
		SourceCurrency:     tx.SourceCurrency,
		SettlementCurrency: tx.SettlementCurrency,
		Message:            message,
	}
}

// CreateRemittanceHandler handles multipart remittance creation requests. The
// form carries the amount and counterparty fields plus the QR code image.
func (h *RemittanceHandlers) CreateRemittanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	amount, err := decimal.NewFromString(r.FormValue("amount"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	qrCode, err := readFormFile(r, "qr_code")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "QR code file is required")
		return
	}

	req := domain.CreateRemittanceRequest{
		Amount:              amount,
		SourceCurrency:      r.FormValue("source_currency"),
		DetailType:          r.FormValue("detail_type"),
		CounterpartyAccount: r.FormValue("counterparty_account"),
		CounterpartyName:    r.FormValue("counterparty_name"),
	}

	tx, err := h.service.CreateRemittance(r.Context(), userID, req, qrCode)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildRemittanceResponse(tx, "Remittance created. Please pay and upload your receipt."))
}

// UploadReceiptHandler records the buyer's payment proof for a transaction.
func (h *RemittanceHandlers) UploadReceiptHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	receipt, err := readFormFile(r, "receipt")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Receipt file is required")
		return
	}

	verified, err := h.service.IsUserVerified(r.Context(), userID)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	tx, err := h.service.RecordUserReceipt(r.Context(), transactionID, receipt, verified)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	message := "Receipt received. Your payment is awaiting confirmation."
	if tx.Status == domain.StatusAwaitingKycVerification {
		message = "Receipt received. Please complete identity verification to proceed."
	}
	h.writeJSON(w, http.StatusOK, buildRemittanceResponse(tx, message))
}

// OperatorReceiptHandler records the operator's settlement proof and completes
// the transaction.
func (h *RemittanceHandlers) OperatorReceiptHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	receipt, err := readFormFile(r, "receipt")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Receipt file is required")
		return
	}

	tx, err := h.service.RecordOperatorReceipt(r.Context(), transactionID, receipt)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildRemittanceResponse(tx, "Settlement recorded. Transaction completed."))
}

// BeginProcessingHandler marks a confirmed transaction as being settled.
func (h *RemittanceHandlers) BeginProcessingHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.BeginProcessing, "Transaction is now processing.")
}

// CancelRemittanceHandler aborts a non-terminal transaction.
func (h *RemittanceHandlers) CancelRemittanceHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.CancelRemittance, "Transaction cancelled.")
}

// FailRemittanceHandler marks a non-terminal transaction as failed.
func (h *RemittanceHandlers) FailRemittanceHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.FailRemittance, "Transaction marked failed.")
}

func (h *RemittanceHandlers) transitionHandler(
	w http.ResponseWriter,
	r *http.Request,
	transition func(ctx context.Context, id uuid.UUID) (*domain.Transaction, error),
	message string,
) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}
	tx, err := transition(r.Context(), transactionID)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildRemittanceResponse(tx, message))
}

// ListRemittancesHandler lists the authenticated user's transactions.
func (h *RemittanceHandlers) ListRemittancesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	transactions, err := h.service.ListUserTransactions(r.Context(), userID)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// GetRemittanceHandler returns a transaction with its detail.
func (h *RemittanceHandlers) GetRemittanceHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}
	tx, detail, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": tx,
		"detail":      detail,
	})
}

// ListBankAccountsHandler lists the operator collection accounts.
func (h *RemittanceHandlers) ListBankAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListBankAccounts(r.Context())
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// CreateBankAccountHandler registers a new operator collection account.
func (h *RemittanceHandlers) CreateBankAccountHandler(w http.ResponseWriter, r *http.Request) {
	var account domain.BankAccount
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.service.CreateBankAccount(r.Context(), &account); err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// SetDefaultBankAccountHandler promotes an account to default for its currency.
func (h *RemittanceHandlers) SetDefaultBankAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}
	if err := h.service.SetDefaultBankAccount(r.Context(), accountID); err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Default account updated"})
}

// SubmitVerificationHandler starts an identity verification job.
func (h *RemittanceHandlers) SubmitVerificationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var req domain.SubmitVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	verification, err := h.verification.Submit(r.Context(), userID, req)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"verification_id": verification.ID.String(),
		"job_id":          verification.JobID,
		"status":          verification.Status,
	})
}

// CancelVerificationHandler closes the user's pending verification.
func (h *RemittanceHandlers) CancelVerificationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if err := h.verification.CancelPending(r.Context(), userID); err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Verification cancelled"})
}

func readFormFile(r *http.Request, field string) (*domain.UploadedFile, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return uploadedFileFrom(file, header)
}

func uploadedFileFrom(file multipart.File, header *multipart.FileHeader) (*domain.UploadedFile, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return &domain.UploadedFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// writeAppError maps application error kinds onto HTTP statuses.
func (h *RemittanceHandlers) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrAlreadyExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrUpstream):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *RemittanceHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *RemittanceHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
