package evm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/txpool"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
)

// JSON-RPC error code used by most providers for request rate limiting.
const rpcCodeLimitExceeded = -32005

type messageRule struct {
	err   error
	class model.ErrorClass
}

// Order matters: "replacement transaction underpriced" also contains "transaction underpriced".
var messageRules = []messageRule{
	{err: txpool.ErrAlreadyKnown, class: model.ErrorClassAlreadyKnown},
	{err: core.ErrNonceTooLow, class: model.ErrorClassNonceTooLow},
	{err: core.ErrNonceTooHigh, class: model.ErrorClassNonceTooHigh},
	{err: txpool.ErrReplaceUnderpriced, class: model.ErrorClassReplacementUnderpriced},
	{err: txpool.ErrUnderpriced, class: model.ErrorClassFeeTooLow},
	{err: core.ErrFeeCapTooLow, class: model.ErrorClassFeeTooLow},
	{err: core.ErrInsufficientFunds, class: model.ErrorClassInsufficientFunds},
	{err: core.ErrInsufficientFundsForTransfer, class: model.ErrorClassInsufficientFunds},
}

// Messages from non-geth nodes that mean the same thing as the rules above.
var messageTokens = []struct {
	token string
	class model.ErrorClass
}{
	{token: "already imported", class: model.ErrorClassAlreadyKnown},
	{token: "nonce too low", class: model.ErrorClassNonceTooLow},
	{token: "nonce has already been used", class: model.ErrorClassNonceTooLow},
	{token: "replacement transaction underpriced", class: model.ErrorClassReplacementUnderpriced},
	{token: "replacement fee too low", class: model.ErrorClassReplacementUnderpriced},
	{token: "transaction underpriced", class: model.ErrorClassFeeTooLow},
	{token: "less than block base fee", class: model.ErrorClassFeeTooLow},
	{token: "insufficient funds", class: model.ErrorClassInsufficientFunds},
	{token: "invalid address", class: model.ErrorClassInvalidRecipient},
	{token: "too many requests", class: model.ErrorClassRateLimited},
	{token: "rate limit", class: model.ErrorClassRateLimited},
	{token: "connection refused", class: model.ErrorClassConnectionFailure},
	{token: "connection reset", class: model.ErrorClassConnectionFailure},
	{token: "broken pipe", class: model.ErrorClassConnectionFailure},
	{token: "no such host", class: model.ErrorClassConnectionFailure},
	{token: "network is unreachable", class: model.ErrorClassConnectionFailure},
	{token: "timeout", class: model.ErrorClassNetworkTimeout},
}

// classify tags err with an error class. It is the only place where node responses are inspected.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *model.SubmissionError
	if errors.As(err, &se) {
		return err
	}
	return model.NewSubmissionError(classOf(op, err), op, err)
}

func classOf(op string, err error) model.ErrorClass {
	class := transportClass(err)
	if class == model.ErrorClassNone {
		class = nodeClass(err)
	}
	if op == opEstimateGas && !class.Transient() && class != model.ErrorClassCanceled {
		return model.ErrorClassGasEstimation
	}
	return class
}

func transportClass(err error) model.ErrorClass {
	switch {
	case errors.Is(err, context.Canceled):
		return model.ErrorClassCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return model.ErrorClassNetworkTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ErrorClassNetworkTimeout
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return model.ErrorClassRateLimited
		case httpErr.StatusCode == http.StatusRequestTimeout || httpErr.StatusCode == http.StatusGatewayTimeout:
			return model.ErrorClassNetworkTimeout
		case httpErr.StatusCode >= http.StatusInternalServerError:
			return model.ErrorClassConnectionFailure
		}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &opErr),
		errors.As(err, &dnsErr):
		return model.ErrorClassConnectionFailure
	}
	return model.ErrorClassNone
}

func nodeClass(err error) model.ErrorClass {
	for _, rule := range messageRules {
		if errors.Is(err, rule.err) {
			return rule.class
		}
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		if strings.Contains(msg, rule.err.Error()) {
			return rule.class
		}
	}
	for _, t := range messageTokens {
		if strings.Contains(msg, t.token) {
			return t.class
		}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcCodeLimitExceeded {
		return model.ErrorClassRateLimited
	}
	return model.ErrorClassRejected
}
