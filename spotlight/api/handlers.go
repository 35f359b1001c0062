package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/spotlightworks/spotlight/spotlight/config"
	"github.com/spotlightworks/spotlight/spotlight/database/models"
	"github.com/spotlightworks/spotlight/spotlight/database/repositories"
	"github.com/spotlightworks/spotlight/spotlight/economy/auction"
	"github.com/spotlightworks/spotlight/spotlight/economy/boost"
	"github.com/spotlightworks/spotlight/spotlight/economy/ledger"
)

// Pinger reports storage reachability. Satisfied by *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers exposes the economy over HTTP. Admin-only endpoints check the
// X-Admin-Account header against the configured admin account.
type Handlers struct {
	ledger  *ledger.Ledger
	engine  *auction.Engine
	boosts  *boost.Manager
	storage Pinger
	version string
}

func NewHandlers(l *ledger.Ledger, e *auction.Engine, b *boost.Manager, storage Pinger, version string) *Handlers {
	return &Handlers{ledger: l, engine: e, boosts: b, storage: storage, version: version}
}

// sendDomainError maps economy errors onto HTTP status codes. Storage
// failures become 503 so clients know to retry; everything the caller did
// wrong is a 4xx with a stable code.
func sendDomainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return SendError(c, fiber.StatusPaymentRequired, "INSUFFICIENT_FUNDS", err.Error(), nil)
	case errors.Is(err, ledger.ErrLimitExceeded):
		return SendError(c, fiber.StatusUnprocessableEntity, "DAILY_LIMIT_EXCEEDED", err.Error(), nil)
	case errors.Is(err, auction.ErrPositionNotOpen):
		return SendConflict(c, "POSITION_NOT_OPEN", err.Error())
	case errors.Is(err, auction.ErrPositionStillOpen):
		return SendConflict(c, "POSITION_STILL_OPEN", err.Error())
	case errors.Is(err, boost.ErrUnknownTier):
		return SendBadRequest(c, err.Error(), nil)
	case auction.IsBidTooLow(err):
		return SendError(c, fiber.StatusUnprocessableEntity, "BID_TOO_LOW", err.Error(), nil)
	case ledger.IsValidationError(err):
		return SendBadRequest(c, err.Error(), nil)
	case repositories.IsNotFound(err):
		return SendNotFound(c, err.Error())
	case repositories.IsConflict(err):
		return SendConflict(c, "CONFLICT", err.Error())
	case repositories.IsRepositoryError(err):
		return SendServiceUnavailable(c, "storage temporarily unavailable")
	default:
		return SendInternalServerError(c, err.Error())
	}
}

func (h *Handlers) requireAdmin(c *fiber.Ctx) bool {
	return h.ledger.IsAdmin(c.Get("X-Admin-Account"))
}

func pageParams(c *fiber.Ctx) (int, int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(config.DefaultPageSize)))
	if limit < 1 {
		limit = config.DefaultPageSize
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}
	return page, limit
}

// Health reports service status, including storage reachability.
func (h *Handlers) Health(c *fiber.Ctx) error {
	if h.storage != nil {
		if err := h.storage.Ping(c.Context()); err != nil {
			return SendServiceUnavailable(c, "storage unreachable")
		}
	}
	return SendSuccess(c, fiber.Map{
		"status":  "healthy",
		"version": h.version,
	}, "")
}

// GetBalance returns an account's current balance.
func (h *Handlers) GetBalance(c *fiber.Ctx) error {
	accountID := c.Params("id")
	balance, err := h.ledger.GetBalance(c.Context(), accountID)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, fiber.Map{
		"account_id": accountID,
		"balance":    balance,
	}, "")
}

// GetTransactions returns an account's transaction log, newest first.
func (h *Handlers) GetTransactions(c *fiber.Ctx) error {
	accountID := c.Params("id")
	page, limit := pageParams(c)

	txns, total, err := h.ledger.Transactions(c.Context(), accountID, page, limit)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendPaginated(c, txns, NewPaginationInfo(page, limit, total), "")
}

type earnRequest struct {
	Amount      int64  `json:"amount"`
	Activity    string `json:"activity"`
	Description string `json:"description"`
}

// Earn credits activity coins, subject to the daily earning cap.
func (h *Handlers) Earn(c *fiber.Ctx) error {
	var req earnRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "invalid request body", nil)
	}

	balance, err := h.ledger.AwardCoins(c.Context(), c.Params("id"), req.Amount, req.Activity, req.Description)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, fiber.Map{"balance": balance}, "coins awarded")
}

type spendRequest struct {
	Amount      int64  `json:"amount"`
	Purpose     string `json:"purpose"`
	Description string `json:"description"`
}

// Spend debits coins from an account.
func (h *Handlers) Spend(c *fiber.Ctx) error {
	var req spendRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "invalid request body", nil)
	}

	balance, err := h.ledger.SpendCoins(c.Context(), c.Params("id"), req.Amount, req.Purpose, req.Description)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, fiber.Map{"balance": balance}, "coins spent")
}

type purchaseRequest struct {
	FiatAmount float64 `json:"fiat_amount"`
}

// Purchase converts a fiat payment into coins at the fixed exchange rate.
func (h *Handlers) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "invalid request body", nil)
	}

	balance, err := h.ledger.PurchaseCoins(c.Context(), c.Params("id"), req.FiatAmount)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, fiber.Map{"balance": balance}, "coins purchased")
}

type grantRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// AdminGrant credits coins outside the earning cap. Admin only.
func (h *Handlers) AdminGrant(c *fiber.Ctx) error {
	if !h.requireAdmin(c) {
		return SendForbidden(c, "admin account required")
	}

	var req grantRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "invalid request body", nil)
	}

	balance, err := h.ledger.AdminGrant(c.Context(), c.Params("id"), req.Amount, req.Description)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, fiber.Map{"balance": balance}, "coins granted")
}

// Reconcile recomputes an account's balances from its transaction log.
// Admin only.
func (h *Handlers) Reconcile(c *fiber.Ctx) error {
	if !h.requireAdmin(c) {
		return SendForbidden(c, "admin account required")
	}

	account, err := h.ledger.Reconcile(c.Context(), c.Params("id"))
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, account, "account reconciled")
}

// History returns the global transaction log, newest first. Admin only.
func (h *Handlers) History(c *fiber.Ctx) error {
	if !h.requireAdmin(c) {
		return SendForbidden(c, "admin account required")
	}

	page, limit := pageParams(c)
	txns, total, err := h.ledger.History(c.Context(), page, limit)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendPaginated(c, txns, NewPaginationInfo(page, limit, total), "")
}

// CurrentAuction returns this week's auction, creating it when absent.
func (h *Handlers) CurrentAuction(c *fiber.Ctx) error {
	a, err := h.engine.GetOrCreateCurrentAuction(c.Context())
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, a, "")
}

// GetAuction returns an auction with its positions.
func (h *Handlers) GetAuction(c *fiber.Ctx) error {
	auctionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return SendBadRequest(c, "invalid auction id", nil)
	}

	a, err := h.engine.GetAuction(c.Context(), auctionID)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, a, "")
}

type bidRequest struct {
	BidderID  string `json:"bidder_id"`
	SubjectID string `json:"subject_id"`
	Amount    int64  `json:"amount"`
}

// PlaceBid submits a bid on a position. The amount is debited immediately
// and held in escrow until the position closes.
func (h *Handlers) PlaceBid(c *fiber.Ctx) error {
	auctionID, index, err := positionParams(c)
	if err != nil {
		return SendBadRequest(c, err.Error(), nil)
	}

	var req bidRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "invalid request body", nil)
	}
	if req.BidderID == "" || req.SubjectID == "" {
		return SendBadRequest(c, "bidder_id and subject_id are required", nil)
	}

	bid, err := h.engine.PlaceBid(c.Context(), auctionID, index, req.BidderID, req.SubjectID, req.Amount)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendCreated(c, bid, "bid placed")
}

// PositionBids returns the bid history of one position, highest first.
func (h *Handlers) PositionBids(c *fiber.Ctx) error {
	auctionID, index, err := positionParams(c)
	if err != nil {
		return SendBadRequest(c, err.Error(), nil)
	}

	bids, err := h.engine.PositionBids(c.Context(), auctionID, index)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, bids, "")
}

// FinalizePosition settles an elapsed position. Admin only; the scheduler
// normally does this, the endpoint exists for manual recovery.
func (h *Handlers) FinalizePosition(c *fiber.Ctx) error {
	if !h.requireAdmin(c) {
		return SendForbidden(c, "admin account required")
	}

	auctionID, index, err := positionParams(c)
	if err != nil {
		return SendBadRequest(c, err.Error(), nil)
	}

	winner, err := h.engine.FinalizePosition(c.Context(), auctionID, index)
	if err != nil {
		return sendDomainError(c, err)
	}
	if winner == nil {
		return SendSuccess(c, nil, "position closed with no bids")
	}
	return SendSuccess(c, winner, "position closed")
}

func positionParams(c *fiber.Ctx) (int64, int, error) {
	auctionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, 0, errors.New("invalid auction id")
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 1 || index > config.PositionsPerAuction {
		return 0, 0, errors.New("invalid position index")
	}
	return auctionID, index, nil
}

// BoostTiers returns the fixed boost catalog.
func (h *Handlers) BoostTiers(c *fiber.Ctx) error {
	return SendSuccess(c, boost.Tiers(), "")
}

// GetBoost returns a subject's active boost, if any.
func (h *Handlers) GetBoost(c *fiber.Ctx) error {
	b, err := h.boosts.GetActiveBoost(c.Context(), c.Params("subjectId"))
	if err != nil {
		return sendDomainError(c, err)
	}
	if b == nil {
		return SendNotFound(c, "no active boost")
	}
	return SendSuccess(c, b, "")
}

type applyBoostRequest struct {
	Tier string `json:"tier"`
}

// ApplyBoost purchases a boost for a subject, replacing any active one.
func (h *Handlers) ApplyBoost(c *fiber.Ctx) error {
	var req applyBoostRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "invalid request body", nil)
	}

	b, err := h.boosts.ApplyBoost(c.Context(), c.Params("subjectId"), models.BoostTier(req.Tier))
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendCreated(c, b, "boost applied")
}

type rankRequest struct {
	Subjects []boost.Ranked `json:"subjects"`
}

// RankSubjects orders the given subjects with active boosts applied.
func (h *Handlers) RankSubjects(c *fiber.Ctx) error {
	var req rankRequest
	if err := c.BodyParser(&req); err != nil {
		return SendBadRequest(c, "invalid request body", nil)
	}

	ranked, err := h.boosts.RankSubjects(c.Context(), req.Subjects)
	if err != nil {
		return sendDomainError(c, err)
	}
	return SendSuccess(c, ranked, "")
}
