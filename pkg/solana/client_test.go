package solana

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ybbus/jsonrpc"
)

func TestSignatureStatus_Commitment(t *testing.T) {
	zero, one := 0, 1

	for _, tc := range []struct {
		name          string
		confirmations *int
		status        string
		confirmed     bool
		finalized     bool
	}{
		{name: "unknown", confirmations: &zero},
		{name: "unrecognized", confirmations: &zero, status: "pending"},
		{name: "processed", confirmations: &zero, status: confirmationStatusProcessed},
		{name: "legacy confirmations", confirmations: &one, confirmed: true},
		{name: "confirmed", confirmations: &zero, status: confirmationStatusConfirmed, confirmed: true},
		{name: "finalized", status: confirmationStatusFinalized, confirmed: true, finalized: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := SignatureStatus{
				Slot:               10,
				Confirmations:      tc.confirmations,
				ConfirmationStatus: tc.status,
			}
			assert.Equal(t, tc.confirmed, s.Confirmed())
			assert.Equal(t, tc.finalized, s.Finalized())
		})
	}
}

type fakeNode struct {
	t        *testing.T
	requests []string
	handle   func(method string, params []json.RawMessage) (interface{}, *jsonrpc.RPCError)
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int               `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))
	n.requests = append(n.requests, req.Method)

	result, rpcErr := n.handle(req.Method, req.Params)
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	require.NoError(n.t, json.NewEncoder(w).Encode(resp))
}

func startFakeNode(t *testing.T, handle func(method string, params []json.RawMessage) (interface{}, *jsonrpc.RPCError)) (*fakeNode, Client) {
	node := &fakeNode{t: t, handle: handle}
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)
	return node, New(server.URL)
}

func TestClient_RetriesUnhealthyNode(t *testing.T) {
	var calls int
	node, client := startFakeNode(t, func(string, []json.RawMessage) (interface{}, *jsonrpc.RPCError) {
		calls++
		if calls == 1 {
			return nil, &jsonrpc.RPCError{Code: rpcNodeUnhealthyCode, Message: "Node is behind"}
		}
		return 42, nil
	})

	slot, err := client.GetSlot(CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, 42, slot)
	assert.Equal(t, []string{"getSlot", "getSlot"}, node.requests)
}

func TestClient_DoesNotRetryInvalidParams(t *testing.T) {
	node, client := startFakeNode(t, func(string, []json.RawMessage) (interface{}, *jsonrpc.RPCError) {
		return nil, &jsonrpc.RPCError{Code: -32602, Message: "Invalid params"}
	})

	_, err := client.GetMinimumBalanceForRentExemption(1 << 40)
	require.Error(t, err)

	rpcErr, ok := err.(*jsonrpc.RPCError)
	require.True(t, ok)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Len(t, node.requests, 1)
}

func TestClient_GetAccountInfo(t *testing.T) {
	owner := make([]byte, 32)
	owner[0] = 7

	_, client := startFakeNode(t, func(_ string, params []json.RawMessage) (interface{}, *jsonrpc.RPCError) {
		var address string
		require.NoError(t, json.Unmarshal(params[0], &address))

		value := interface{}(nil)
		if address == base58.Encode(owner) {
			value = map[string]interface{}{
				"lamports":   1_000,
				"owner":      base58.Encode(owner),
				"data":       []string{base64.StdEncoding.EncodeToString([]byte("vault")), "base64"},
				"executable": false,
			}
		}
		return map[string]interface{}{"context": map[string]interface{}{"slot": 9}, "value": value}, nil
	})

	info, err := client.GetAccountInfo(owner, CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, info.Lamports)
	assert.Equal(t, []byte("vault"), info.Data)
	assert.EqualValues(t, owner, info.Owner)

	_, err = client.GetAccountInfo(make([]byte, 32), CommitmentConfirmed)
	assert.Equal(t, ErrNoAccountInfo, err)
}

func TestClient_GetSignatureStatuses(t *testing.T) {
	_, client := startFakeNode(t, func(string, []json.RawMessage) (interface{}, *jsonrpc.RPCError) {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 12},
			"value": []interface{}{
				nil,
				map[string]interface{}{
					"slot":               11,
					"confirmations":      nil,
					"confirmationStatus": confirmationStatusFinalized,
					"err":                map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 6001}}},
				},
			},
		}, nil
	})

	statuses, err := client.GetSignatureStatuses([]Signature{{1}, {2}})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Nil(t, statuses[0])

	require.NotNil(t, statuses[1])
	assert.EqualValues(t, 11, statuses[1].Slot)
	assert.True(t, statuses[1].Finalized())

	code, ok := CustomErrorCode(statuses[1].ErrorResult)
	require.True(t, ok)
	assert.Equal(t, 6001, code)
}
