package solana

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// realRPCClient adapts the actual solana-go RPC client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string) RPCClient {
	return &realRPCClient{
		client: rpc.New(rpcURL),
	}
}

func (r *realRPCClient) GetBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetBalanceResult, error) {
	return r.client.GetBalance(ctx, account, commitment)
}

func (r *realRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	return r.client.GetLatestBlockhash(ctx, commitment)
}

func (r *realRPCClient) GetBlockHeight(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (uint64, error) {
	return r.client.GetBlockHeight(ctx, commitment)
}

func (r *realRPCClient) SendRawTransaction(
	ctx context.Context,
	rawTx []byte,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	return r.client.SendRawTransactionWithOpts(ctx, rawTx, opts)
}

func (r *realRPCClient) GetSignatureStatuses(
	ctx context.Context,
	signatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	// searchTransactionHistory=false: we only ever ask about signatures we just sent
	return r.client.GetSignatureStatuses(ctx, false, signatures...)
}
