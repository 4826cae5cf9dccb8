package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/http/fiber/middleware"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/ledger"
)

// WalletService is the ledger surface plus the balance audit
type WalletService interface {
	ports.LedgerService
	Reconcile(ctx context.Context, userID string) (*ledger.Reconciliation, error)
}

type WalletHandler struct {
	service WalletService
	log     *zap.Logger
}

func NewWalletHandler(service WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{
		service: service,
		log:     log,
	}
}

type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
	// Reference is the payment provider's charge id
	Reference string `json:"reference"`
}

type TransferRequest struct {
	ToUserID string          `json:"to_user_id"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note"`
}

func (h *WalletHandler) Get(c *fiber.Ctx) error {
	wallet, err := h.service.Wallet(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(wallet)
}

func (h *WalletHandler) TopUp(c *fiber.Ctx) error {
	var req TopUpRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tx, err := h.service.Credit(c.UserContext(), domain.LedgerEntry{
		UserID:      middleware.UserID(c),
		Amount:      req.Amount,
		Reason:      domain.ReasonTopUp,
		ReferenceID: req.Reference,
		Description: "wallet top-up",
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(tx)
}

func (h *WalletHandler) Transfer(c *fiber.Ctx) error {
	var req TransferRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	userID := middleware.UserID(c)
	if err := h.service.Transfer(c.UserContext(), userID, req.ToUserID, req.Amount, req.Note); err != nil {
		return err
	}

	balance, err := h.service.Balance(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"to_user_id": req.ToUserID, "amount": req.Amount, "balance": balance})
}

func (h *WalletHandler) Transactions(c *fiber.Ctx) error {
	limit, offset := paging(c)
	txs, err := h.service.Transactions(c.UserContext(), middleware.UserID(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"transactions": txs, "limit": limit, "offset": offset})
}

// Audit recomputes a wallet from its ledger. Admins may audit ?user_id=.
func (h *WalletHandler) Audit(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if other := c.Query("user_id"); other != "" && middleware.IsAdmin(c) {
		userID = other
	}
	rec, err := h.service.Reconcile(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(rec)
}
