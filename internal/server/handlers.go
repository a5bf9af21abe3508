package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stats":  s.dispatcher.GetStats(),
	})
}

type subscribeRequest struct {
	UserID                 string          `json:"userId"`
	FundID                 string          `json:"fundId"`
	AllocatedAmount        decimal.Decimal `json:"allocatedAmount"`
	PurchaseSizePercentage decimal.Decimal `json:"purchaseSizePercentage"`
	AutoApprove            bool            `json:"autoApprove"`
}

// handleSubscribe 创建/更新跟单配置并立即同步监控集
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.FundID == "" {
		writeError(w, http.StatusBadRequest, "userId and fundId are required")
		return
	}
	if req.AllocatedAmount.LessThanOrEqual(decimal.Zero) {
		writeError(w, http.StatusBadRequest, "allocatedAmount must be positive")
		return
	}
	if req.PurchaseSizePercentage.LessThanOrEqual(decimal.Zero) ||
		req.PurchaseSizePercentage.GreaterThan(decimal.NewFromInt(100)) {
		writeError(w, http.StatusBadRequest, "purchaseSizePercentage must be in (0, 100]")
		return
	}

	if _, err := s.fundRepo.GetByID(req.FundID); err != nil {
		writeError(w, http.StatusNotFound, "fund not found")
		return
	}

	inv, err := s.investmentRepo.GetByUserAndFund(req.UserID, req.FundID)
	if err != nil {
		inv = &model.Investment{
			ID:     fmt.Sprintf("%s_%s", req.UserID, req.FundID),
			UserID: req.UserID,
			FundID: req.FundID,
		}
	}
	inv.AllocatedAmount = req.AllocatedAmount
	inv.PurchaseSizePercentage = req.PurchaseSizePercentage
	inv.AutoApprove = req.AutoApprove
	inv.IsActive = true

	if err := s.investmentRepo.Upsert(inv); err != nil {
		logger.Error("保存跟单配置失败", logger.FieldErr(err))
		writeError(w, http.StatusInternalServerError, "failed to save investment")
		return
	}

	if err := s.subs.OnSubscribe(r.Context(), req.FundID); err != nil {
		logger.Error("同步钱包监控失败",
			logger.String("fund_id", req.FundID),
			logger.FieldErr(err))
	}

	logger.Info("✅ 用户订阅基金",
		logger.String("user_id", req.UserID),
		logger.String("fund_id", req.FundID))
	writeJSON(w, http.StatusOK, map[string]interface{}{"investment": inv})
}

type unsubscribeRequest struct {
	UserID string `json:"userId"`
	FundID string `json:"fundId"`
}

// handleUnsubscribe 停用跟单配置。基金无剩余生效跟单时移出轮询集，
// 注册表侧的清理交给周期任务。
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.FundID == "" {
		writeError(w, http.StatusBadRequest, "userId and fundId are required")
		return
	}

	if err := s.investmentRepo.Deactivate(req.UserID, req.FundID); err != nil {
		logger.Error("停用跟单配置失败", logger.FieldErr(err))
		writeError(w, http.StatusInternalServerError, "failed to deactivate investment")
		return
	}

	if err := s.subs.OnUnsubscribe(r.Context(), req.FundID); err != nil {
		logger.Error("更新钱包监控失败",
			logger.String("fund_id", req.FundID),
			logger.FieldErr(err))
	}

	logger.Info("用户取消订阅基金",
		logger.String("user_id", req.UserID),
		logger.String("fund_id", req.FundID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

type updateInvestmentRequest struct {
	UserID                 string           `json:"userId"`
	FundID                 string           `json:"fundId"`
	AllocatedAmount        *decimal.Decimal `json:"allocatedAmount,omitempty"`
	PurchaseSizePercentage *decimal.Decimal `json:"purchaseSizePercentage,omitempty"`
	AutoApprove            *bool            `json:"autoApprove,omitempty"`
	IsActive               *bool            `json:"isActive,omitempty"`
}

// handleUpdateInvestment 部分更新跟单配置，isActive切换带订阅副作用
func (s *Server) handleUpdateInvestment(w http.ResponseWriter, r *http.Request) {
	var req updateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.FundID == "" {
		writeError(w, http.StatusBadRequest, "userId and fundId are required")
		return
	}

	inv, err := s.investmentRepo.GetByUserAndFund(req.UserID, req.FundID)
	if err != nil {
		writeError(w, http.StatusNotFound, "investment not found")
		return
	}

	wasActive := inv.IsActive
	if req.AllocatedAmount != nil {
		if req.AllocatedAmount.LessThanOrEqual(decimal.Zero) {
			writeError(w, http.StatusBadRequest, "allocatedAmount must be positive")
			return
		}
		inv.AllocatedAmount = *req.AllocatedAmount
	}
	if req.PurchaseSizePercentage != nil {
		if req.PurchaseSizePercentage.LessThanOrEqual(decimal.Zero) ||
			req.PurchaseSizePercentage.GreaterThan(decimal.NewFromInt(100)) {
			writeError(w, http.StatusBadRequest, "purchaseSizePercentage must be in (0, 100]")
			return
		}
		inv.PurchaseSizePercentage = *req.PurchaseSizePercentage
	}
	if req.AutoApprove != nil {
		inv.AutoApprove = *req.AutoApprove
	}
	if req.IsActive != nil {
		inv.IsActive = *req.IsActive
	}

	if err := s.investmentRepo.Upsert(inv); err != nil {
		logger.Error("更新跟单配置失败", logger.FieldErr(err))
		writeError(w, http.StatusInternalServerError, "failed to update investment")
		return
	}

	if inv.IsActive != wasActive {
		var subErr error
		if inv.IsActive {
			subErr = s.subs.OnSubscribe(r.Context(), req.FundID)
		} else {
			subErr = s.subs.OnUnsubscribe(r.Context(), req.FundID)
		}
		if subErr != nil {
			logger.Error("更新钱包监控失败",
				logger.String("fund_id", req.FundID),
				logger.FieldErr(subErr))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"investment": inv})
}

func (s *Server) handleListFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := s.fundRepo.GetAll()
	if err != nil {
		logger.Error("查询基金列表失败", logger.FieldErr(err))
		writeError(w, http.StatusInternalServerError, "failed to list funds")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"funds": funds})
}

func (s *Server) handleGetFund(w http.ResponseWriter, r *http.Request) {
	fundID := chi.URLParam(r, "fundID")

	fund, err := s.fundRepo.GetByID(fundID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			writeError(w, http.StatusNotFound, "fund not found")
			return
		}
		logger.Error("查询基金失败", logger.FieldErr(err))
		writeError(w, http.StatusInternalServerError, "failed to get fund")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fund": fund})
}

// handleCleanupWebhooks 手动触发注册表清理
func (s *Server) handleCleanupWebhooks(w http.ResponseWriter, r *http.Request) {
	if err := s.subs.CleanupRegistry(r.Context()); err != nil {
		logger.Error("清理webhook注册表失败", logger.FieldErr(err))
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("写HTTP响应失败", logger.FieldErr(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
