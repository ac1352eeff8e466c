package http

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const packageName = "http"

const (
	gasStationMainnetEndpoint = "https://gasstation.polygon.technology/v2"
	gasStationTestnetEndpoint = "https://gasstation.polygon.technology/amoy"
)

type client struct {
	httpClient *http.Client
	chainID    *big.Int
	endpoint   string
}

// NewGasStationClient serves Polygon mainnet and Amoy. For any other chain every request fails,
// so callers fall back instead of reading another network's fees.
func NewGasStationClient(httpClient *http.Client, chainID *big.Int) repository.GasStationRepository {
	return &client{
		httpClient: httpClient,
		chainID:    chainID,
		endpoint:   getGasStationEndpoint(chainID),
	}
}

type GasPriceRecommendations struct {
	SafeLow     *GasPriceRecommendation `json:"safeLow"`
	Standard    *GasPriceRecommendation `json:"standard"`
	Fast        *GasPriceRecommendation `json:"fast"`
	BaseFee     decimal.Decimal         `json:"estimatedBaseFee"`
	BlockTime   int64                   `json:"blockTime"`
	BlockNumber int64                   `json:"blockNumber"`
}

type GasPriceRecommendation struct {
	MaxPriorityFee decimal.Decimal `json:"maxPriorityFee"`
	MaxFee         decimal.Decimal `json:"maxFee"`
}

func (c *client) GetGasPriceRecommendations(ctx context.Context) (*model.GasPriceRecommendations, error) {
	funcName := util.FuncName()

	if c.endpoint == "" {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("no gas station for chain id %v", c.chainID))
	}

	res, err := c.doRequest(ctx, c.endpoint)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("error making request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("status code not 200: %d", res.StatusCode))
	}

	var tmp GasPriceRecommendations
	if err := json.NewDecoder(res.Body).Decode(&tmp); err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("error decoding response body: %w", err))
	}

	if tmp.SafeLow == nil || tmp.Standard == nil || tmp.Fast == nil {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("error decoding response body: gas price recommendations are not set"))
	}

	for _, r := range []*GasPriceRecommendation{tmp.SafeLow, tmp.Standard, tmp.Fast} {
		if r.MaxFee.IsNegative() || r.MaxPriorityFee.IsNegative() || r.MaxFee.LessThan(r.MaxPriorityFee) {
			return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("invalid recommendation: maxFee %s, maxPriorityFee %s", r.MaxFee, r.MaxPriorityFee))
		}
	}

	return &model.GasPriceRecommendations{
		SafeLow:          toModel(tmp.SafeLow),
		Standard:         toModel(tmp.Standard),
		Fast:             toModel(tmp.Fast),
		EstimatedBaseFee: tmp.BaseFee,
		BlockTime:        tmp.BlockTime,
		BlockNumber:      tmp.BlockNumber,
	}, nil
}

func toModel(r *GasPriceRecommendation) *model.GasPriceRecommendation {
	return &model.GasPriceRecommendation{
		MaxPriorityFee: r.MaxPriorityFee,
		MaxFee:         r.MaxFee,
	}
}

func (c *client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("error creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("error do request: %w", err))
	}

	return resp, nil
}

// getGasStationEndpoint returns "" for chains without a gas station.
func getGasStationEndpoint(chainID *big.Int) string {
	if !model.HasGasStation(chainID) {
		return ""
	}
	if chainID.Int64() == model.BlockchainDecimalMainnet {
		return gasStationMainnetEndpoint
	}
	return gasStationTestnetEndpoint
}
