package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcRequest/rpcResponse mirror the JSON-RPC 2.0 envelope go-ethereum's
// rpc.Client sends, enough to decode eth_call batches and reply per request.
type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callObj struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// fakeNode answers eth_call (against known selectors), eth_chainId, and
// eth_getTransactionCount, enough to exercise every chainclient method
// that does not require a live node.
type fakeNode struct {
	reserves map[common.Address][2]*big.Int
	tokens   map[common.Address][2]common.Address // token0, token1
	pairs    []common.Address                      // allPairs(i)
	chainID  uint64
	nonce    uint64
}

func newFakeServer(t *testing.T, node *fakeNode) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))

		var batch []rpcRequest
		if err := json.Unmarshal(raw, &batch); err != nil {
			var single rpcRequest
			require.NoError(t, json.Unmarshal(raw, &single))
			resp := node.handle(t, single)
			require.NoError(t, json.NewEncoder(w).Encode(resp))
			return
		}

		responses := make([]rpcResponse, len(batch))
		for i, req := range batch {
			responses[i] = node.handle(t, req)
		}
		require.NoError(t, json.NewEncoder(w).Encode(responses))
	}))
}

func (n *fakeNode) handle(t *testing.T, req rpcRequest) rpcResponse {
	t.Helper()
	switch req.Method {
	case "eth_call":
		return n.handleCall(t, req)
	case "eth_chainId":
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: fmt.Sprintf("0x%x", n.chainID)}
	case "eth_getTransactionCount":
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: fmt.Sprintf("0x%x", n.nonce)}
	default:
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func (n *fakeNode) handleCall(t *testing.T, req rpcRequest) rpcResponse {
	t.Helper()
	require.GreaterOrEqual(t, len(req.Params), 1)
	var call callObj
	require.NoError(t, json.Unmarshal(req.Params[0], &call))

	to := common.HexToAddress(call.To)
	data := common.FromHex(call.Data)
	require.GreaterOrEqual(t, len(data), 4)
	selector := [4]byte{data[0], data[1], data[2], data[3]}

	switch selector {
	case methodID(poolABI, "getReserves"):
		rs, ok := n.reserves[to]
		if !ok {
			return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: "no reserves"}}
		}
		packed, err := poolABI.Methods["getReserves"].Outputs.Pack(rs[0], rs[1], uint32(0))
		require.NoError(t, err)
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: "0x" + common.Bytes2Hex(packed)}
	case methodID(poolABI, "token0"):
		tk, ok := n.tokens[to]
		require.True(t, ok)
		packed, err := poolABI.Methods["token0"].Outputs.Pack(tk[0])
		require.NoError(t, err)
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: "0x" + common.Bytes2Hex(packed)}
	case methodID(poolABI, "token1"):
		tk, ok := n.tokens[to]
		require.True(t, ok)
		packed, err := poolABI.Methods["token1"].Outputs.Pack(tk[1])
		require.NoError(t, err)
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: "0x" + common.Bytes2Hex(packed)}
	case methodID(factoryABI, "allPairsLength"):
		packed, err := factoryABI.Methods["allPairsLength"].Outputs.Pack(big.NewInt(int64(len(n.pairs))))
		require.NoError(t, err)
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: "0x" + common.Bytes2Hex(packed)}
	case methodID(factoryABI, "allPairs"):
		args, err := factoryABI.Methods["allPairs"].Inputs.Unpack(data[4:])
		require.NoError(t, err)
		idx := args[0].(*big.Int).Uint64()
		require.Less(t, idx, uint64(len(n.pairs)))
		packed, err := factoryABI.Methods["allPairs"].Outputs.Pack(n.pairs[idx])
		require.NoError(t, err)
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: "0x" + common.Bytes2Hex(packed)}
	default:
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: "unknown selector"}}
	}
}

func methodID(a abi.ABI, name string) [4]byte {
	var id [4]byte
	copy(id[:], a.Methods[name].ID)
	return id
}

func dialFake(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	srv := newFakeServer(t, node)
	t.Cleanup(srv.Close)
	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestBatchGetReservesDecodesEachPool(t *testing.T) {
	poolA := common.HexToAddress("0x1")
	poolB := common.HexToAddress("0x2")
	node := &fakeNode{reserves: map[common.Address][2]*big.Int{
		poolA: {big.NewInt(1_000_000), big.NewInt(2_000_000)},
		poolB: {big.NewInt(500), big.NewInt(700)},
	}}
	c := dialFake(t, node)

	out, err := c.BatchGetReserves(context.Background(), []common.Address{poolA, poolB})
	require.NoError(t, err)
	require.Contains(t, out, poolA)
	require.Contains(t, out, poolB)
	assert.Equal(t, uint64(1_000_000), out[poolA][0].Uint64())
	assert.Equal(t, uint64(2_000_000), out[poolA][1].Uint64())
	assert.Equal(t, uint64(500), out[poolB][0].Uint64())
}

func TestAllPairsLengthReturnsCount(t *testing.T) {
	factory := common.HexToAddress("0xf1")
	node := &fakeNode{pairs: []common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2")}}
	c := dialFake(t, node)

	n, err := c.AllPairsLength(context.Background(), factory)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestPairAddressRangeReturnsRequestedSlice(t *testing.T) {
	factory := common.HexToAddress("0xf1")
	pairs := []common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3")}
	node := &fakeNode{pairs: pairs}
	c := dialFake(t, node)

	out, err := c.PairAddressRange(context.Background(), factory, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, pairs[1:3], out)
}

func TestPairAddressRangeEmptyWhenEndNotAfterStart(t *testing.T) {
	c := dialFake(t, &fakeNode{})
	out, err := c.PairAddressRange(context.Background(), common.Address{}, 5, 5)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestPoolTokensReturnsOrderedPair(t *testing.T) {
	pool := common.HexToAddress("0x1")
	token0 := common.HexToAddress("0xaaaa")
	token1 := common.HexToAddress("0xbbbb")
	node := &fakeNode{tokens: map[common.Address][2]common.Address{pool: {token0, token1}}}
	c := dialFake(t, node)

	t0, t1, err := c.PoolTokens(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, token0, t0)
	assert.Equal(t, token1, t1)
}

func TestChainIDReturnsConfiguredValue(t *testing.T) {
	node := &fakeNode{chainID: 137}
	c := dialFake(t, node)

	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(137), id.Uint64())
}

func TestPendingNonceAtReturnsConfiguredValue(t *testing.T) {
	node := &fakeNode{nonce: 42}
	c := dialFake(t, node)

	n, err := c.PendingNonceAt(context.Background(), common.HexToAddress("0xabc"))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

func TestTransactionSenderRecoversSignerFromTx(t *testing.T) {
	key, err := crypto.HexToECDSA("ec2a91483481e39d3c1674e8ee6e0a33f48bea91eadf7547261ffd4b2d563ed")
	require.NoError(t, err)

	to := common.HexToAddress("0xdead")
	chainID := big.NewInt(1)
	tx := types.NewTx(&types.LegacyTx{To: &to, GasPrice: big.NewInt(1), Gas: 21000})
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)

	var c Client
	sender, err := c.TransactionSender(context.Background(), signed)
	require.NoError(t, err)

	expected, err := types.Sender(signer, signed)
	require.NoError(t, err)
	assert.Equal(t, expected, sender)
}

func TestHexDataPrefixesWith0x(t *testing.T) {
	assert.Equal(t, "0x010203", hexData([]byte{1, 2, 3}))
}

func TestCallMsgSetsToAndData(t *testing.T) {
	to := common.HexToAddress("0x1")
	msg := callMsg(to, []byte{1, 2})
	assert.Equal(t, to, msg["to"])
	assert.Equal(t, "0x0102", msg["data"])
}
