// Package ledgerdelivery manages delivery layer of the ledger.
package ledgerdelivery

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

// Service provides service layer interface needed by ledger delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type Service interface {
	CreateAccount(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error)
	GetAccount(ctx context.Context, number string) (domain.Account, error)
	AccountExists(ctx context.Context, number string) (bool, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	DeactivateAccount(ctx context.Context, number string) error
	Deposit(ctx context.Context, number string, amount decimal.Decimal) (domain.BalanceChange, error)
	Withdraw(ctx context.Context, number string, amount decimal.Decimal) (domain.BalanceChange, error)
	Transfer(ctx context.Context, source, dest string, amount decimal.Decimal) (domain.TransferResult, error)
	ListTransactions(ctx context.Context, arg domain.ListEntriesParams) ([]domain.Entry, error)
}

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns ledger handler.
func NewHandler(s Service) Handler {
	return Handler{service: s}
}

// statusOf maps a ledger error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAccountNumber),
		errors.Is(err, domain.ErrInvalidOwnerName),
		errors.Is(err, domain.ErrSameAccount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateAccount),
		errors.Is(err, domain.ErrNonZeroBalance):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errorspkg.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func writeError(gctx *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		err = errorspkg.ErrInternal
	}

	gctx.JSON(status, web.Error(err))
}

func writeBindError(gctx *gin.Context, err error) {
	var (
		ve     validator.ValidationErrors
		errMsg = err.Error()
	)

	if errors.As(err, &ve) {
		field := ve[0]
		errMsg = field.Field() + web.GetErrorMsg(field)
	}

	zerolog.Ctx(gctx.Request.Context()).Info().Err(err).Send()
	gctx.JSON(http.StatusBadRequest, web.Response{Error: errMsg})
}

// parseAmount converts a validated amount field.
func parseAmount(gctx *gin.Context, s string) (decimal.Decimal, bool) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, true
	}

	d, err := moneypkg.Parse(s)
	if err != nil {
		writeBindError(gctx, err)
		return decimal.Zero, false
	}

	return d, true
}

type accountURI struct {
	Number string `uri:"number" binding:"required"`
}

type accountData struct {
	Account domain.Account `json:"account"`
}

type accountsData struct {
	Accounts []domain.Account `json:"accounts"`
}

type existsData struct {
	AccountNumber string `json:"account_number"`
	Exists        bool   `json:"exists"`
}

type balanceChangeData struct {
	Result domain.BalanceChange `json:"result"`
}

type transferData struct {
	Result domain.TransferResult `json:"result"`
}

type entriesData struct {
	Entries []domain.Entry `json:"entries"`
}

type createAccountRequest struct {
	AccountNumber  string `json:"account_number" binding:"required,max=32"`
	OwnerName      string `json:"owner_name" binding:"required,max=128"`
	InitialBalance string `json:"initial_balance" binding:"balance"`
}

// CreateAccount handles http request to open an account.
func (h *Handler) CreateAccount(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req createAccountRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		writeBindError(gctx, err)
		return
	}

	initial, ok := parseAmount(gctx, req.InitialBalance)
	if !ok {
		return
	}

	account, err := h.service.CreateAccount(ctx, domain.CreateAccountParams{
		AccountNumber:  req.AccountNumber,
		OwnerName:      req.OwnerName,
		InitialBalance: initial,
	})
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusCreated, web.Response{Data: accountData{account}})
}

// GetAccount handles http request to get an account with its balance.
func (h *Handler) GetAccount(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req accountURI
	if err := gctx.ShouldBindUri(&req); err != nil {
		writeBindError(gctx, err)
		return
	}

	account, err := h.service.GetAccount(ctx, req.Number)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: accountData{account}})
}

// AccountExists handles http request to check whether an account is active.
func (h *Handler) AccountExists(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req accountURI
	if err := gctx.ShouldBindUri(&req); err != nil {
		writeBindError(gctx, err)
		return
	}

	ok, err := h.service.AccountExists(ctx, req.Number)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: existsData{AccountNumber: req.Number, Exists: ok}})
}

// ListAccounts handles http request to list active accounts.
func (h *Handler) ListAccounts(gctx *gin.Context) {
	accounts, err := h.service.ListAccounts(gctx.Request.Context())
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: accountsData{accounts}})
}

// DeactivateAccount handles http request to deactivate an account.
func (h *Handler) DeactivateAccount(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req accountURI
	if err := gctx.ShouldBindUri(&req); err != nil {
		writeBindError(gctx, err)
		return
	}

	if err := h.service.DeactivateAccount(ctx, req.Number); err != nil {
		writeError(gctx, err)
		return
	}

	gctx.Status(http.StatusNoContent)
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required,amount"`
}

type movement func(ctx context.Context, number string, amount decimal.Decimal) (domain.BalanceChange, error)

func (h *Handler) move(gctx *gin.Context, fn movement) {
	ctx := gctx.Request.Context()

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		writeBindError(gctx, err)
		return
	}

	var req amountRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		writeBindError(gctx, err)
		return
	}

	amount, ok := parseAmount(gctx, req.Amount)
	if !ok {
		return
	}

	res, err := fn(ctx, uri.Number, amount)

	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		gctx.JSON(statusOf(err), web.ErrorWithData(err, balanceChangeData{res}))
	case err != nil:
		writeError(gctx, err)
	default:
		gctx.JSON(http.StatusOK, web.Response{Data: balanceChangeData{res}})
	}
}

// Deposit handles http request to credit an account.
func (h *Handler) Deposit(gctx *gin.Context) {
	h.move(gctx, h.service.Deposit)
}

// Withdraw handles http request to debit an account.
func (h *Handler) Withdraw(gctx *gin.Context) {
	h.move(gctx, h.service.Withdraw)
}

type transferRequest struct {
	SourceAccount string `json:"source_account" binding:"required"`
	DestAccount   string `json:"dest_account" binding:"required"`
	Amount        string `json:"amount" binding:"required,amount"`
}

// Transfer handles http request to move funds between two accounts.
func (h *Handler) Transfer(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req transferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		writeBindError(gctx, err)
		return
	}

	amount, ok := parseAmount(gctx, req.Amount)
	if !ok {
		return
	}

	res, err := h.service.Transfer(ctx, req.SourceAccount, req.DestAccount, amount)

	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		gctx.JSON(statusOf(err), web.ErrorWithData(err, transferData{res}))
	case err != nil:
		writeError(gctx, err)
	default:
		gctx.JSON(http.StatusOK, web.Response{Data: transferData{res}})
	}
}

type listEntriesRequest struct {
	Account string `form:"account"`
	Limit   int32  `form:"limit" binding:"min=0"`
}

// ListEntries handles http request to read the transaction log.
func (h *Handler) ListEntries(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req listEntriesRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		writeBindError(gctx, err)
		return
	}

	arg := domain.ListEntriesParams{Limit: req.Limit}
	if req.Account != "" {
		arg.Account = domain.Ref(req.Account)
	}

	entries, err := h.service.ListTransactions(ctx, arg)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: entriesData{entries}})
}

// Register mounts the ledger routes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/accounts", h.CreateAccount)
	r.GET("/accounts", h.ListAccounts)
	r.GET("/accounts/:number", h.GetAccount)
	r.GET("/accounts/:number/exists", h.AccountExists)
	r.DELETE("/accounts/:number", h.DeactivateAccount)
	r.POST("/accounts/:number/deposits", h.Deposit)
	r.POST("/accounts/:number/withdrawals", h.Withdraw)
	r.POST("/transfers", h.Transfer)
	r.GET("/entries", h.ListEntries)
}
