package domain

import "github.com/shopspring/decimal"

type ResultKind string

const (
	ResultApproved   ResultKind = "approved"
	ResultConflicted ResultKind = "conflicted"
	ResultExpired    ResultKind = "expired"
	ResultDuplicate  ResultKind = "duplicate"
	ResultFailed     ResultKind = "failed"
	ResultNotFound   ResultKind = "not_found"
	ResultPending    ResultKind = "pending"
	ResultError      ResultKind = "error"
)

// VerifyResult is the outcome of a verification attempt. Callers switch on Kind.
type VerifyResult struct {
	Kind      ResultKind      `json:"kind"`
	RequestID string          `json:"requestId"`
	Status    DepositStatus   `json:"status,omitempty"`
	TxHash    string          `json:"txHash,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Plan      Plan            `json:"plan,omitempty"`
	Detected  decimal.Decimal `json:"detected"`
	Expected  decimal.Decimal `json:"expected"`
	Reason    string          `json:"reason,omitempty"`
}

// Terminal reports whether polling can stop after this result.
func (r VerifyResult) Terminal() bool {
	return r.Kind != ResultPending && r.Kind != ResultError
}

// StatusResult describes a request that is no longer pending.
func StatusResult(req *DepositRequest) VerifyResult {
	res := VerifyResult{RequestID: req.ID, Status: req.Status, Plan: req.PlanType, Expected: req.AmountUSDT}
	if req.TxHash != nil {
		res.TxHash = *req.TxHash
	}
	if req.DetectedAmount != nil {
		res.Detected = *req.DetectedAmount
	}
	switch req.Status {
	case DepositApproved:
		res.Kind = ResultApproved
		res.Amount = res.Detected
	case DepositConflicted:
		res.Kind = ResultConflicted
	case DepositExpired:
		res.Kind = ResultExpired
	case DepositDuplicate:
		res.Kind = ResultDuplicate
	case DepositFailed:
		res.Kind = ResultFailed
	default:
		res.Kind = ResultPending
	}
	return res
}
