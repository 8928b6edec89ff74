package rpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

const (
	encodingBase58 = "base58"
	encodingBase64 = "base64"

	maxSignatureStatuses = 256
)

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

type contextResult struct {
	Context rpcContext  `json:"context"`
	Value   interface{} `json:"value"`
}

type uiAccount struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
	Space      int      `json:"space"`
}

type keyedAccount struct {
	Pubkey  string     `json:"pubkey"`
	Account *uiAccount `json:"account"`
}

type returnData struct {
	ProgramID string   `json:"programId"`
	Data      []string `json:"data"`
}

type simulationValue struct {
	Err           interface{} `json:"err"`
	Logs          []string    `json:"logs"`
	Accounts      interface{} `json:"accounts"`
	UnitsConsumed uint64      `json:"unitsConsumed"`
	ReturnData    *returnData `json:"returnData"`
}

type signatureStatus struct {
	Slot               uint64                 `json:"slot"`
	Confirmations      *int                   `json:"confirmations"`
	Err                interface{}            `json:"err"`
	Status             map[string]interface{} `json:"status"`
	ConfirmationStatus string                 `json:"confirmationStatus"`
}

func (s *Server) currentContext() rpcContext {
	return rpcContext{Slot: s.bank.Slot()}
}

func (s *Server) getAccountInfo(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	key, rpcErr := publicKeyParam(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var config struct {
		Encoding string `json:"encoding"`
	}
	if rpcErr := optionalParam(params, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	state, err := s.bank.GetAccount(ctx, key)
	if err == svm.ErrAccountNotFound {
		return contextResult{Context: s.currentContext()}, nil
	} else if err != nil {
		return nil, internalError(err)
	}

	account, rpcErr := toUIAccount(state, config.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return contextResult{Context: s.currentContext(), Value: account}, nil
}

func (s *Server) getBalance(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	key, rpcErr := publicKeyParam(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var lamports uint64
	state, err := s.bank.GetAccount(ctx, key)
	switch err {
	case nil:
		lamports = state.Lamports
	case svm.ErrAccountNotFound:
	default:
		return nil, internalError(err)
	}

	return contextResult{Context: s.currentContext(), Value: lamports}, nil
}

func (s *Server) getLatestBlockhash(_ context.Context, _ []json.RawMessage) (interface{}, *Error) {
	hash, lastValid := s.bank.LatestBlockhash()

	return contextResult{
		Context: s.currentContext(),
		Value: struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		}{
			Blockhash:            base58.Encode(hash[:]),
			LastValidBlockHeight: lastValid,
		},
	}, nil
}

func (s *Server) getMinimumBalanceForRentExemption(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	var size uint64
	if rpcErr := requiredParam(params, 0, &size); rpcErr != nil {
		return nil, rpcErr
	}
	if size > svm.MaxPermittedDataLength {
		return nil, newError(CodeInvalidParams, "Invalid params: data size too large")
	}

	return s.bank.Rent().MinimumBalance(int(size)), nil
}

func (s *Server) getSlot(_ context.Context, _ []json.RawMessage) (interface{}, *Error) {
	return s.bank.Slot(), nil
}

func (s *Server) sendTransaction(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	var config struct {
		SkipPreflight bool   `json:"skipPreflight"`
		Encoding      string `json:"encoding"`
	}
	if rpcErr := optionalParam(params, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	txn, rpcErr := transactionParam(params, 0, config.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if !config.SkipPreflight {
		simulated, err := s.bank.SimulateTransaction(ctx, txn, true)
		if err != nil {
			return nil, internalError(err)
		}
		if simulated.Err != nil {
			return nil, preflightFailure(simulated)
		}
	}

	result, err := s.bank.ProcessTransaction(ctx, txn)
	if err != nil {
		return nil, internalError(err)
	}

	// Transactions that never landed have no signature to poll for
	if !result.Landed {
		return nil, preflightFailure(result)
	}

	return result.Signature.ToBase58(), nil
}

func (s *Server) simulateTransaction(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	var config struct {
		SigVerify              bool   `json:"sigVerify"`
		ReplaceRecentBlockhash bool   `json:"replaceRecentBlockhash"`
		Encoding               string `json:"encoding"`
	}
	if rpcErr := optionalParam(params, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}
	if config.SigVerify && config.ReplaceRecentBlockhash {
		return nil, newError(CodeInvalidParams, "sigVerify may not be used with replaceRecentBlockhash")
	}

	txn, rpcErr := transactionParam(params, 0, config.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if config.ReplaceRecentBlockhash {
		hash, _ := s.bank.LatestBlockhash()
		txn.SetBlockhash(hash)
	}

	result, err := s.bank.SimulateTransaction(ctx, txn, config.SigVerify)
	if err != nil {
		return nil, internalError(err)
	}

	return contextResult{Context: s.currentContext(), Value: toSimulationValue(result)}, nil
}

func (s *Server) getSignatureStatuses(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	var encoded []string
	if rpcErr := requiredParam(params, 0, &encoded); rpcErr != nil {
		return nil, rpcErr
	}
	if len(encoded) > maxSignatureStatuses {
		return nil, newError(CodeInvalidParams, fmt.Sprintf("Too many inputs provided; max %d", maxSignatureStatuses))
	}

	statuses := make([]*signatureStatus, len(encoded))
	for i, value := range encoded {
		sig, rpcErr := decodeSignature(value)
		if rpcErr != nil {
			return nil, rpcErr
		}

		status, err := s.bank.GetSignatureStatus(ctx, sig)
		if err == svm.ErrSignatureNotFound {
			continue
		} else if err != nil {
			return nil, internalError(err)
		}

		statuses[i] = &signatureStatus{
			Slot:               status.Slot,
			Confirmations:      status.Confirmations,
			ConfirmationStatus: status.ConfirmationStatus,
			Status:             map[string]interface{}{"Ok": nil},
		}
		if status.ErrorResult != nil {
			statuses[i].Err = status.ErrorResult.Raw()
			statuses[i].Status = map[string]interface{}{"Err": status.ErrorResult.Raw()}
		}
	}

	return contextResult{Context: s.currentContext(), Value: statuses}, nil
}

func (s *Server) getProgramAccounts(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	program, rpcErr := publicKeyParam(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var config struct {
		Encoding    string `json:"encoding"`
		WithContext bool   `json:"withContext"`
		Filters     []struct {
			Memcmp *struct {
				Offset   int    `json:"offset"`
				Bytes    string `json:"bytes"`
				Encoding string `json:"encoding"`
			} `json:"memcmp"`
			DataSize *int `json:"dataSize"`
		} `json:"filters"`
	}
	if rpcErr := optionalParam(params, 1, &config); rpcErr != nil {
		return nil, rpcErr
	}

	var filters []func(data []byte) bool
	var prefix []byte
	for _, filter := range config.Filters {
		switch {
		case filter.Memcmp != nil:
			offset := filter.Memcmp.Offset
			value, rpcErr := decodeBytes(filter.Memcmp.Bytes, filter.Memcmp.Encoding)
			if rpcErr != nil {
				return nil, rpcErr
			}
			if offset < 0 {
				return nil, newError(CodeInvalidParams, "Invalid params: negative memcmp offset")
			}
			if offset == 0 && prefix == nil {
				prefix = value
			}

			filters = append(filters, func(data []byte) bool {
				return len(data) >= offset+len(value) && bytes.Equal(data[offset:offset+len(value)], value)
			})
		case filter.DataSize != nil:
			size := *filter.DataSize
			filters = append(filters, func(data []byte) bool {
				return len(data) == size
			})
		default:
			return nil, newError(CodeInvalidParams, "Invalid params: unsupported filter")
		}
	}

	accounts, err := s.bank.GetProgramAccounts(ctx, program, prefix)
	if err != nil {
		return nil, internalError(err)
	}

	keys := make([]string, 0, len(accounts))
	for key := range accounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	matched := make([]*keyedAccount, 0, len(keys))
	for _, key := range keys {
		state := accounts[key]

		ok := true
		for _, filter := range filters {
			if !filter(state.Data) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		account, rpcErr := toUIAccount(state, config.Encoding)
		if rpcErr != nil {
			return nil, rpcErr
		}
		matched = append(matched, &keyedAccount{Pubkey: key, Account: account})
	}

	if config.WithContext {
		return contextResult{Context: s.currentContext(), Value: matched}, nil
	}
	return matched, nil
}

func (s *Server) requestAirdrop(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	key, rpcErr := publicKeyParam(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var lamports uint64
	if rpcErr := requiredParam(params, 1, &lamports); rpcErr != nil {
		return nil, rpcErr
	}
	if lamports == 0 {
		return nil, newError(CodeInvalidParams, "Invalid params: lamports must be positive")
	}

	result, err := s.bank.Airdrop(ctx, key, lamports)
	if err != nil {
		return nil, internalError(err)
	}
	if result.Err != nil {
		return nil, &Error{
			Code:    CodeInternalError,
			Message: fmt.Sprintf("airdrop request failed: %v", result.Err),
		}
	}

	return result.Signature.ToBase58(), nil
}

func requiredParam(params []json.RawMessage, i int, out interface{}) *Error {
	if i >= len(params) {
		return newError(CodeInvalidParams, fmt.Sprintf("Invalid params: missing parameter %d", i))
	}
	if err := json.Unmarshal(params[i], out); err != nil {
		return newError(CodeInvalidParams, fmt.Sprintf("Invalid params: %v", err))
	}
	return nil
}

// optionalParam leaves out untouched when the parameter is missing or null.
// Config objects that are plain commitment strings are also accepted.
func optionalParam(params []json.RawMessage, i int, out interface{}) *Error {
	if i >= len(params) {
		return nil
	}

	raw := bytes.TrimSpace(params[i])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || raw[0] == '"' {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(CodeInvalidParams, fmt.Sprintf("Invalid params: %v", err))
	}
	return nil
}

func publicKeyParam(params []json.RawMessage, i int) (ed25519.PublicKey, *Error) {
	var encoded string
	if rpcErr := requiredParam(params, i, &encoded); rpcErr != nil {
		return nil, rpcErr
	}

	key, err := base58.Decode(encoded)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, newError(CodeInvalidParams, "Invalid param: Invalid")
	}
	return key, nil
}

func transactionParam(params []json.RawMessage, i int, encoding string) (*solana.Transaction, *Error) {
	var encoded string
	if rpcErr := requiredParam(params, i, &encoded); rpcErr != nil {
		return nil, rpcErr
	}

	raw, rpcErr := decodeBytes(encoded, encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var txn solana.Transaction
	if err := txn.Unmarshal(raw); err != nil {
		return nil, newError(CodeInvalidParams, fmt.Sprintf("failed to deserialize transaction: %v", err))
	}
	return &txn, nil
}

func decodeSignature(encoded string) (solana.Signature, *Error) {
	var sig solana.Signature

	raw, err := base58.Decode(encoded)
	if err != nil || len(raw) != len(sig) {
		return sig, newError(CodeInvalidParams, "Invalid param: Invalid signature")
	}
	copy(sig[:], raw)
	return sig, nil
}

func decodeBytes(encoded, encoding string) ([]byte, *Error) {
	var raw []byte
	var err error

	switch encoding {
	case "", encodingBase58:
		raw, err = base58.Decode(encoded)
	case encodingBase64:
		raw, err = base64.StdEncoding.DecodeString(encoded)
	default:
		return nil, newError(CodeInvalidParams, fmt.Sprintf("Invalid params: unsupported encoding %s", encoding))
	}

	if err != nil {
		return nil, newError(CodeInvalidParams, fmt.Sprintf("Invalid params: invalid %s", encoding))
	}
	return raw, nil
}

func toUIAccount(state *svm.Account, encoding string) (*uiAccount, *Error) {
	account := &uiAccount{
		Lamports:   state.Lamports,
		Owner:      base58.Encode(state.Owner),
		Executable: state.Executable,
		Space:      len(state.Data),
	}

	switch encoding {
	case "", encodingBase58:
		account.Data = []string{base58.Encode(state.Data), encodingBase58}
	case encodingBase64:
		account.Data = []string{base64.StdEncoding.EncodeToString(state.Data), encodingBase64}
	default:
		return nil, newError(CodeInvalidParams, fmt.Sprintf("Invalid params: unsupported encoding %s", encoding))
	}
	return account, nil
}

func toSimulationValue(result *svm.TxResult) *simulationValue {
	value := &simulationValue{
		Logs: result.Logs,
	}
	if value.Logs == nil {
		value.Logs = []string{}
	}
	if result.Err != nil {
		value.Err = result.Err.Raw()
	}
	if result.ReturnData != nil {
		value.ReturnData = &returnData{
			ProgramID: base58.Encode(result.ReturnData.ProgramID),
			Data:      []string{base64.StdEncoding.EncodeToString(result.ReturnData.Data), encodingBase64},
		}
	}
	return value
}

func preflightFailure(result *svm.TxResult) *Error {
	return &Error{
		Code:    CodePreflightFailure,
		Message: fmt.Sprintf("Transaction simulation failed: %v", result.Err),
		Data:    toSimulationValue(result),
	}
}

func internalError(err error) *Error {
	return &Error{
		Code:    CodeInternalError,
		Message: fmt.Sprintf("Internal error: %v", err),
	}
}
