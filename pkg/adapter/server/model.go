package server

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/code-payments/tokadapt-server/pkg/adapter"
	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/token"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
)

const (
	successJsonKey          = "success"
	errorJsonKey            = "error"
	errorKindJsonKey        = "error_kind"
	instructionIndexJsonKey = "instruction_index"
	customErrorCodeJsonKey  = "custom_error_code"
)

const (
	encodingBase64 = "base64"
	encodingBase58 = "base58"
)

var (
	errSubmissionsDisabled = status.Error(codes.Unavailable, "transaction submission is disabled")
	errRateLimited         = status.Error(codes.ResourceExhausted, "fee payer is rate limited")
)

type GenericApiResponseBody map[string]any

func NewGenericApiSuccessResponseBody() GenericApiResponseBody {
	return map[string]any{
		successJsonKey: true,
	}
}

func NewGenericApiFailureResponseBody(err error) GenericApiResponseBody {
	body := map[string]any{
		successJsonKey: false,
		errorJsonKey:   err.Error(),
	}

	var programErr *adapter.ProgramError
	var instructionErr *solana.InstructionError
	var txnErr *solana.TransactionError
	switch {
	case errors.As(err, &programErr):
		body[errorKindJsonKey] = string(programErr.Kind)
		if programErr.Code != 0 {
			body[customErrorCodeJsonKey] = int(programErr.Code)
		}
	case errors.As(err, &instructionErr):
		body[errorKindJsonKey] = string(instructionErr.ErrorKey())
		if custom := instructionErr.CustomError(); custom != nil {
			body[customErrorCodeJsonKey] = int(*custom)
		}
	case errors.As(err, &txnErr):
		body[errorKindJsonKey] = string(txnErr.ErrorKey())
	}

	if errors.As(err, &instructionErr) {
		body[instructionIndexJsonKey] = instructionErr.Index
		body[errorJsonKey] = instructionErr.Err.Error()
	}

	return body
}

func (b *GenericApiResponseBody) ToString() string {
	marshalled, _ := json.Marshal(b)
	return string(marshalled)
}

// toStatusError classifies an error returned by the executor or processor as
// a gRPC status, which is in turn mapped onto an HTTP status code.
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var programErr *adapter.ProgramError
	if errors.As(err, &programErr) {
		switch programErr.Kind {
		case adapter.KindUnauthorized:
			return wrapStatus(codes.PermissionDenied, err)
		case adapter.KindInsufficientFunds:
			return wrapStatus(codes.FailedPrecondition, err)
		default:
			return wrapStatus(codes.InvalidArgument, err)
		}
	}

	var txnErr *solana.TransactionError
	if errors.As(err, &txnErr) {
		switch txnErr.ErrorKey() {
		case solana.TransactionErrorSignatureFailure, solana.TransactionErrorMissingSignatureForFee:
			return wrapStatus(codes.Unauthenticated, err)
		case solana.TransactionErrorDuplicateSignature:
			return wrapStatus(codes.AlreadyExists, err)
		case solana.TransactionErrorInstructionError:
			instructionErr := txnErr.InstructionError()
			switch instructionErr.ErrorKey() {
			case solana.InstructionErrorMissingRequiredSignature:
				return wrapStatus(codes.Unauthenticated, err)
			case solana.InstructionErrorInsufficientFunds:
				return wrapStatus(codes.FailedPrecondition, err)
			default:
				return wrapStatus(codes.InvalidArgument, err)
			}
		default:
			return wrapStatus(codes.InvalidArgument, err)
		}
	}

	if errors.Is(err, bank.ErrAccountNotFound) {
		return wrapStatus(codes.NotFound, err)
	}

	return status.Error(codes.Internal, err.Error())
}

// statusError keeps the original error reachable through errors.As while
// carrying a gRPC code.
type statusError struct {
	code  codes.Code
	cause error
}

func wrapStatus(code codes.Code, err error) error {
	return &statusError{code: code, cause: err}
}

func (e *statusError) Error() string {
	return e.cause.Error()
}

func (e *statusError) Unwrap() error {
	return e.cause
}

func (e *statusError) GRPCStatus() *status.Status {
	return status.New(e.code, e.cause.Error())
}

// HandleGrpcErrorInWebContext maps a gRPC status onto an HTTP status code and
// the error that is safe to return to the caller.
func HandleGrpcErrorInWebContext(err error) (int, error) {
	if err == nil {
		return http.StatusOK, nil
	}

	statusErr, ok := status.FromError(err)
	if !ok {
		return http.StatusInternalServerError, errors.New("internal server error")
	}

	switch statusErr.Code() {
	case codes.OK:
		return http.StatusOK, nil
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest, err
	case codes.NotFound:
		return http.StatusNotFound, err
	case codes.AlreadyExists:
		return http.StatusConflict, err
	case codes.Unauthenticated:
		return http.StatusUnauthorized, err
	case codes.PermissionDenied:
		return http.StatusForbidden, err
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests, err
	case codes.Unavailable:
		return http.StatusServiceUnavailable, err
	case codes.Canceled, codes.DeadlineExceeded:
		return http.StatusRequestTimeout, errors.New("request timed out")
	default:
		return http.StatusInternalServerError, errors.New("internal server error")
	}
}

type transactionRequestBody struct {
	// Transaction is the signed wire transaction.
	Transaction string `json:"transaction"`
	// Encoding is either base64 (default) or base58.
	Encoding string `json:"encoding"`
}

func (b *transactionRequestBody) decode() (*solana.Transaction, error) {
	if len(b.Transaction) == 0 {
		return nil, errors.New("transaction is required")
	}

	var raw []byte
	var err error
	switch strings.ToLower(b.Encoding) {
	case "", encodingBase64:
		raw, err = base64.StdEncoding.DecodeString(b.Transaction)
	case encodingBase58:
		raw, err = base58.Decode(b.Transaction)
	default:
		return nil, errors.Errorf("unsupported encoding %q", b.Encoding)
	}
	if err != nil {
		return nil, errors.Wrap(err, "invalid transaction encoding")
	}

	var txn solana.Transaction
	if err := txn.Unmarshal(raw); err != nil {
		return nil, errors.Wrap(err, "invalid transaction")
	}
	if err := txn.Sanitize(); err != nil {
		return nil, errors.Wrap(err, "invalid transaction")
	}
	return &txn, nil
}

type stateView struct {
	Address                    string `json:"address"`
	AdminAuthority             string `json:"admin_authority"`
	InputMint                  string `json:"input_mint"`
	OutputStorage              string `json:"output_storage"`
	OutputStorageAuthority     string `json:"output_storage_authority"`
	OutputStorageAuthorityBump uint8  `json:"output_storage_authority_bump"`
	OutputMint                 string `json:"output_mint"`
	ReserveBalance             uint64 `json:"reserve_balance"`
}

func newStateView(address, authority ed25519.PublicKey, record *tokadapt.StateAccount, storage *token.Account) *stateView {
	return &stateView{
		Address:                    base58.Encode(address),
		AdminAuthority:             base58.Encode(record.AdminAuthority),
		InputMint:                  base58.Encode(record.InputMint),
		OutputStorage:              base58.Encode(record.OutputStorage),
		OutputStorageAuthority:     base58.Encode(authority),
		OutputStorageAuthorityBump: record.OutputStorageAuthorityBump,
		OutputMint:                 base58.Encode(storage.Mint),
		ReserveBalance:             storage.Amount,
	}
}

type accountView struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     string `json:"data"`
	Version  uint64 `json:"version"`

	// Set for initialized token accounts.
	Token *tokenAccountView `json:"token,omitempty"`
}

type tokenAccountView struct {
	Mint            string `json:"mint"`
	Owner           string `json:"owner"`
	Amount          uint64 `json:"amount"`
	Delegate        string `json:"delegate,omitempty"`
	DelegatedAmount uint64 `json:"delegated_amount,omitempty"`
	CloseAuthority  string `json:"close_authority,omitempty"`
}

func newAccountView(account *bank.Account) *accountView {
	view := &accountView{
		Address:  base58.Encode(account.Address),
		Owner:    base58.Encode(account.Owner),
		Lamports: account.Lamports,
		Data:     base64.StdEncoding.EncodeToString(account.Data),
		Version:  account.Version,
	}

	var tokenAccount token.Account
	if account.IsOwnedBy(token.ProgramKey) && tokenAccount.Unmarshal(account.Data) && tokenAccount.State != token.AccountStateUninitialized {
		view.Token = &tokenAccountView{
			Mint:            base58.Encode(tokenAccount.Mint),
			Owner:           base58.Encode(tokenAccount.Owner),
			Amount:          tokenAccount.Amount,
			DelegatedAmount: tokenAccount.DelegatedAmount,
		}
		if len(tokenAccount.Delegate) > 0 {
			view.Token.Delegate = base58.Encode(tokenAccount.Delegate)
		}
		if len(tokenAccount.CloseAuthority) > 0 {
			view.Token.CloseAuthority = base58.Encode(tokenAccount.CloseAuthority)
		}
	}

	return view
}

func parsePublicKey(name, value string) (ed25519.PublicKey, error) {
	if len(value) == 0 {
		return nil, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	decoded, err := base58.Decode(value)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		return nil, status.Errorf(codes.InvalidArgument, "%s is not a valid public key", name)
	}
	return decoded, nil
}
