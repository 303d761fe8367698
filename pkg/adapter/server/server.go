package server

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/code-payments/tokadapt-server/pkg/adapter"
	"github.com/code-payments/tokadapt-server/pkg/bank"
	"github.com/code-payments/tokadapt-server/pkg/executor"
	"github.com/code-payments/tokadapt-server/pkg/rate"
	"github.com/code-payments/tokadapt-server/pkg/solana"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
	"github.com/code-payments/tokadapt-server/pkg/tokenledger"
)

const (
	v1PathPrefix                = "/v1"
	v1SubmitTransactionPath     = v1PathPrefix + "/submitTransaction"
	v1SimulateTransactionPath   = v1PathPrefix + "/simulateTransaction"
	v1GetStatePath              = v1PathPrefix + "/getState"
	v1GetAccountPath            = v1PathPrefix + "/getAccount"
	v1GetRentExemptionPath      = v1PathPrefix + "/getRentExemption"
	v1GetProgramIdentityPath    = v1PathPrefix + "/getProgramIdentity"
	requestIdHeaderName         = "x-request-id"
	contentTypeHeaderName       = "content-type"
	jsonContentTypeHeaderValue  = "application/json"
	maxRequestBodySize          = 1 << 16
	maxRentExemptionAccountSize = 10 * 1024 * 1024
)

// Server exposes the adapter and its execution environment over a JSON API.
type Server struct {
	log  *logrus.Entry
	conf *conf

	store     bank.Store
	ledger    *tokenledger.Ledger
	processor *adapter.Processor
	executor  *executor.Executor
	limiter   rate.Limiter
}

func NewServer(
	store bank.Store,
	ledger *tokenledger.Ledger,
	processor *adapter.Processor,
	executor *executor.Executor,
	configProvider ConfigProvider,
) *Server {
	conf := configProvider()

	var limiter rate.Limiter = rate.Unlimited{}
	if limit := conf.submitRateLimit.Get(context.Background()); limit > 0 {
		limiter = rate.NewPerKey(limit)
	}

	return &Server{
		log:       logrus.StandardLogger().WithField("type", "adapter/server"),
		conf:      conf,
		store:     store,
		ledger:    ledger,
		processor: processor,
		executor:  executor,
		limiter:   limiter,
	}
}

func (s *Server) submitTransactionHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log, requestId := s.newRequestLog(path)

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodPost {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http post expected"))
			}

			if s.conf.disableSubmissions.Get(ctx) {
				return s.handleError(log, errSubmissionsDisabled)
			}

			txn, err := s.decodeTransaction(w, r)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithField("fee_payer", base58.Encode(txn.Message.FeePayer()))

			if err := s.checkRateLimit(txn); err != nil {
				return s.handleError(log, err)
			}

			sig, err := s.executor.Submit(ctx, txn)
			if err != nil {
				return s.handleError(log, err)
			}

			log.WithField("signature", sig.String()).Debug("transaction committed")

			respBody := NewGenericApiSuccessResponseBody()
			respBody["signature"] = sig.String()
			return http.StatusOK, respBody
		}()

		writeResponse(w, requestId, statusCode, body)
	}
}

func (s *Server) simulateTransactionHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log, requestId := s.newRequestLog(path)

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodPost {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http post expected"))
			}

			txn, err := s.decodeTransaction(w, r)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithField("fee_payer", base58.Encode(txn.Message.FeePayer()))

			if err := s.checkRateLimit(txn); err != nil {
				return s.handleError(log, err)
			}

			if err := s.executor.Simulate(ctx, txn); err != nil {
				return s.handleError(log, err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["signature"] = txn.Signatures[0].String()
			return http.StatusOK, respBody
		}()

		writeResponse(w, requestId, statusCode, body)
	}
}

func (s *Server) getStateHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log, requestId := s.newRequestLog(path)

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodGet {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http get expected"))
			}

			address, err := parsePublicKey("state", r.URL.Query().Get("state"))
			if err != nil {
				return s.handleError(log, err)
			}
			log = log.WithField("state", base58.Encode(address))

			view, err := s.getState(ctx, address)
			if err != nil {
				return s.handleError(log, err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["state"] = view
			return http.StatusOK, respBody
		}()

		writeResponse(w, requestId, statusCode, body)
	}
}

func (s *Server) getAccountHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log, requestId := s.newRequestLog(path)

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodGet {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http get expected"))
			}

			address, err := parsePublicKey("address", r.URL.Query().Get("address"))
			if err != nil {
				return s.handleError(log, err)
			}

			account, err := s.store.Get(ctx, address)
			if err != nil {
				return s.handleError(log, err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["account"] = newAccountView(account)
			return http.StatusOK, respBody
		}()

		writeResponse(w, requestId, statusCode, body)
	}
}

func (s *Server) getRentExemptionHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		_, requestId := s.newRequestLog(path)

		statusCode, body := func() (int, GenericApiResponseBody) {
			if r.Method != http.MethodGet {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http get expected"))
			}

			size, err := strconv.ParseUint(r.URL.Query().Get("size"), 10, 64)
			if err != nil || size > maxRentExemptionAccountSize {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("size query parameter is invalid"))
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["lamports"] = bank.RentExemptMinimum(size)
			return http.StatusOK, respBody
		}()

		writeResponse(w, requestId, statusCode, body)
	}
}

func (s *Server) getProgramIdentityHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		_, requestId := s.newRequestLog(path)

		respBody := NewGenericApiSuccessResponseBody()
		respBody["program_id"] = base58.Encode(tokadapt.ProgramID())
		respBody["state_account_size"] = tokadapt.StateAccountAllocationSize
		writeResponse(w, requestId, http.StatusOK, respBody)
	}
}

func (s *Server) getState(ctx context.Context, address ed25519.PublicKey) (*stateView, error) {
	record, err := s.processor.GetState(ctx, address)
	var programErr *adapter.ProgramError
	if errors.As(err, &programErr) && programErr.Code == tokadapt.ErrorAccountNotInitialized {
		return nil, status.Error(codes.NotFound, "state not found")
	} else if err != nil {
		return nil, err
	}

	authority, err := tokadapt.DeriveOutputStorageAuthorityAddress(address, record.OutputStorageAuthorityBump)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving output storage authority")
	}

	storage, err := s.ledger.GetAccount(ctx, record.OutputStorage)
	if err != nil {
		return nil, errors.Wrap(err, "error getting output storage")
	}

	return newStateView(address, authority, record, storage), nil
}

func (s *Server) decodeTransaction(w http.ResponseWriter, r *http.Request) (*solana.Transaction, error) {
	var reqBody transactionRequestBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := decoder.Decode(&reqBody); err != nil {
		return nil, errors.Wrap(err, "invalid request body")
	}
	return reqBody.decode()
}

func (s *Server) checkRateLimit(txn *solana.Transaction) error {
	allowed, err := s.limiter.Allow(base58.Encode(txn.Message.FeePayer()))
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if !allowed {
		return errRateLimited
	}
	return nil
}

func (s *Server) handleError(log *logrus.Entry, err error) (int, GenericApiResponseBody) {
	err = toStatusError(err)
	statusCode, safeErr := HandleGrpcErrorInWebContext(err)
	if statusCode >= http.StatusInternalServerError {
		log.WithError(err).Warn("failure handling request")
	} else {
		log.WithError(err).Debug("request rejected")
	}
	return statusCode, NewGenericApiFailureResponseBody(safeErr)
}

func (s *Server) newRequestLog(path string) (*logrus.Entry, string) {
	requestId := uuid.New().String()
	return s.log.WithFields(logrus.Fields{
		"path":       path,
		"request_id": requestId,
	}), requestId
}

func writeResponse(w http.ResponseWriter, requestId string, statusCode int, body GenericApiResponseBody) {
	w.Header().Set(contentTypeHeaderName, jsonContentTypeHeaderValue)
	w.Header().Set(requestIdHeaderName, requestId)
	w.WriteHeader(statusCode)
	w.Write([]byte(body.ToString()))
}

func (s *Server) GetHandlers() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		v1SubmitTransactionPath:   s.submitTransactionHandler(v1SubmitTransactionPath),
		v1SimulateTransactionPath: s.simulateTransactionHandler(v1SimulateTransactionPath),
		v1GetStatePath:            s.getStateHandler(v1GetStatePath),
		v1GetAccountPath:          s.getAccountHandler(v1GetAccountPath),
		v1GetRentExemptionPath:    s.getRentExemptionHandler(v1GetRentExemptionPath),
		v1GetProgramIdentityPath:  s.getProgramIdentityHandler(v1GetProgramIdentityPath),
	}
}
