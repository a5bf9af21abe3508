package matcher

import (
	"github.com/pkg/errors"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/internal/repo"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

// Match 命中的基金及其全部跟单配置（含未生效的，由执行侧过滤）
type Match struct {
	Fund        *model.Fund
	Investments []*model.Investment
}

// FundMatcher 按源钱包地址匹配基金，共享钱包会命中多个基金
type FundMatcher struct {
	fundRepo       repo.FundRepo
	investmentRepo repo.InvestmentRepo
}

func New(fundRepo repo.FundRepo, investmentRepo repo.InvestmentRepo) *FundMatcher {
	return &FundMatcher{
		fundRepo:       fundRepo,
		investmentRepo: investmentRepo,
	}
}

// Match 返回包含该钱包的全部基金与跟单配置
func (m *FundMatcher) Match(sourceWallet string) ([]*Match, error) {
	funds, err := m.fundRepo.GetByWallet(sourceWallet)
	if err != nil {
		return nil, errors.Wrap(err, "match funds by wallet")
	}
	if len(funds) == 0 {
		return nil, nil
	}

	matches := make([]*Match, 0, len(funds))
	for _, fund := range funds {
		investments, err := m.investmentRepo.GetByFund(fund.ID)
		if err != nil {
			logger.Error("查询基金跟单配置失败",
				logger.String("fund_id", fund.ID),
				logger.FieldErr(err))
			continue
		}
		matches = append(matches, &Match{
			Fund:        fund,
			Investments: investments,
		})
	}
	return matches, nil
}
