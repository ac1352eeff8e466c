package http

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/testing/protocmp"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
)

type mockTransport struct {
	Req      *http.Request
	Response *http.Response
	Err      error
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.Req = req
	return m.Response, m.Err
}

func TestHTTP_GetGasPriceRecommendations(t *testing.T) {
	tests := []struct {
		name           string
		mockRes        *http.Response
		wantErrMessage string
		want           *model.GasPriceRecommendations
	}{
		{
			name: "success",
			mockRes: &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"safeLow":{"maxPriorityFee":30,"maxFee":30.000000016},"standard":{"maxPriorityFee":31,"maxFee":31.000000016},"fast":{"maxPriorityFee":32,"maxFee":32.000000016},"estimatedBaseFee":1.6e-8,"blockTime":2,"blockNumber":47841869}`)),
			},
			want: &model.GasPriceRecommendations{
				SafeLow: &model.GasPriceRecommendation{
					MaxPriorityFee: decimal.RequireFromString("30"),
					MaxFee:         decimal.RequireFromString("30.000000016"),
				},
				Standard: &model.GasPriceRecommendation{
					MaxPriorityFee: decimal.RequireFromString("31"),
					MaxFee:         decimal.RequireFromString("31.000000016"),
				},
				Fast: &model.GasPriceRecommendation{
					MaxPriorityFee: decimal.RequireFromString("32"),
					MaxFee:         decimal.RequireFromString("32.000000016"),
				},
				EstimatedBaseFee: decimal.RequireFromString("0.000000016"),
				BlockTime:        2,
				BlockNumber:      47841869,
			},
		},
		{
			name: "error - status code not 200",
			mockRes: &http.Response{
				StatusCode: http.StatusNotFound,
				Body:       io.NopCloser(strings.NewReader(`{"error":"not found"}`)),
			},
			wantErrMessage: "http.GetGasPriceRecommendations: status code not 200: 404",
		},
		{
			name: "error - invalid json",
			mockRes: &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`invalid json`)),
			},
			wantErrMessage: "http.GetGasPriceRecommendations: error decoding response body: invalid character 'i' looking for beginning of value",
		},
		{
			name: "error - missing tier",
			mockRes: &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"standard":{"maxPriorityFee":31,"maxFee":31}}`)),
			},
			wantErrMessage: "http.GetGasPriceRecommendations: error decoding response body: gas price recommendations are not set",
		},
		{
			name: "error - tip above cap",
			mockRes: &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"safeLow":{"maxPriorityFee":30,"maxFee":29},"standard":{"maxPriorityFee":31,"maxFee":31},"fast":{"maxPriorityFee":32,"maxFee":32}}`)),
			},
			wantErrMessage: "http.GetGasPriceRecommendations: invalid recommendation: maxFee 29, maxPriorityFee 30",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := &mockTransport{
				Response: tt.mockRes,
			}
			httpClient := &http.Client{
				Transport: transport,
			}

			c := NewGasStationClient(httpClient, big.NewInt(model.BlockchainDecimalMainnet))
			res, err := c.GetGasPriceRecommendations(context.Background())
			if tt.wantErrMessage != "" {
				assert.Error(t, err)
				assert.EqualError(t, err, tt.wantErrMessage)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, gasStationMainnetEndpoint, transport.Req.URL.String())
			if diff := cmp.Diff(tt.want, res, protocmp.Transform()); diff != "" {
				t.Errorf("GetGasPriceRecommendations() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetGasStationEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		chainID *big.Int
		want    string
	}{
		{name: "ethereum", chainID: big.NewInt(model.BlockchainDecimalEthereum), want: ""},
		{name: "bsc", chainID: big.NewInt(model.BlockchainDecimalBSC), want: ""},
		{name: "polygon", chainID: big.NewInt(model.BlockchainDecimalMainnet), want: gasStationMainnetEndpoint},
		{name: "amoy", chainID: big.NewInt(model.BlockchainDecimalAmoy), want: gasStationTestnetEndpoint},
		{name: "nil", chainID: nil, want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, getGasStationEndpoint(tt.chainID))
		})
	}
}

func TestHTTP_GetGasPriceRecommendations_UnsupportedChain(t *testing.T) {
	t.Parallel()

	for _, chainID := range []int64{model.BlockchainDecimalEthereum, model.BlockchainDecimalBSC} {
		transport := &mockTransport{}
		c := NewGasStationClient(&http.Client{Transport: transport}, big.NewInt(chainID))

		res, err := c.GetGasPriceRecommendations(context.Background())
		assert.Nil(t, res)
		assert.EqualError(t, err, fmt.Sprintf("http.GetGasPriceRecommendations: no gas station for chain id %d", chainID))
		assert.Nil(t, transport.Req, "no request may leave for chain %d", chainID)
	}
}
