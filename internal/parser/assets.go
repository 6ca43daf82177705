package parser

import (
	"context"
	"log/slog"

	"solana-copy-trader/internal/solana"
)

// Major asset mints excluded from copy-trading by the default policy.
const (
	MSOL    = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
	JitoSOL = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
)

// AssetInfo is the metadata the eligibility predicate evaluates.
type AssetInfo struct {
	Mint   string
	Symbol string  // empty when unknown
	Supply float64 // UI supply, 0 when unknown
}

// AssetPolicy decides whether a swap's output asset qualifies for copying.
// It is deliberately pluggable: the default heuristic is approximate and can
// misclassify, so callers may swap in their own predicate.
type AssetPolicy interface {
	IsEligibleAsset(ctx context.Context, mint string) bool
}

// MetadataResolver looks up asset metadata for policy evaluation.
type MetadataResolver interface {
	Resolve(ctx context.Context, mint string) (AssetInfo, error)
}

// HeuristicAssetPolicy filters assets by a deny list of majors, a symbol
// length ceiling, and a supply ceiling. A resolver failure is treated as
// eligible: the filter is advisory, not a safety boundary.
type HeuristicAssetPolicy struct {
	resolver     MetadataResolver
	denied       map[string]struct{}
	maxSymbolLen int
	maxSupply    float64
	logger       *slog.Logger
}

// HeuristicPolicyConfig tunes the default asset policy.
type HeuristicPolicyConfig struct {
	// DeniedMints replaces the default major-asset deny list when non-nil.
	DeniedMints []string
	// MaxSymbolLen rejects assets with longer symbols. Default 10.
	MaxSymbolLen int
	// MaxSupply rejects assets with a larger UI supply. Default 10e12.
	MaxSupply float64
}

// NewHeuristicAssetPolicy creates the default eligibility policy.
func NewHeuristicAssetPolicy(resolver MetadataResolver, cfg HeuristicPolicyConfig, logger *slog.Logger) *HeuristicAssetPolicy {
	if logger == nil {
		logger = slog.Default()
	}

	denied := cfg.DeniedMints
	if denied == nil {
		denied = []string{WSOL, USDC, USDT, MSOL, JitoSOL}
	}
	deniedSet := make(map[string]struct{}, len(denied))
	for _, m := range denied {
		deniedSet[m] = struct{}{}
	}

	maxSymbolLen := cfg.MaxSymbolLen
	if maxSymbolLen == 0 {
		maxSymbolLen = 10
	}
	maxSupply := cfg.MaxSupply
	if maxSupply == 0 {
		maxSupply = 10e12
	}

	return &HeuristicAssetPolicy{
		resolver:     resolver,
		denied:       deniedSet,
		maxSymbolLen: maxSymbolLen,
		maxSupply:    maxSupply,
		logger:       logger.With(slog.String("component", "asset-policy")),
	}
}

// Compile-time interface check.
var _ AssetPolicy = (*HeuristicAssetPolicy)(nil)

// IsEligibleAsset applies the heuristic checks in order: deny list, symbol
// length, supply ceiling.
func (p *HeuristicAssetPolicy) IsEligibleAsset(ctx context.Context, mint string) bool {
	if _, ok := p.denied[mint]; ok {
		return false
	}

	if p.resolver == nil {
		return true
	}
	info, err := p.resolver.Resolve(ctx, mint)
	if err != nil {
		p.logger.Debug("metadata lookup failed, asset passes",
			slog.String("mint", mint),
			slog.String("error", err.Error()))
		return true
	}

	if info.Symbol != "" && len(info.Symbol) > p.maxSymbolLen {
		return false
	}
	if info.Supply > p.maxSupply {
		return false
	}
	return true
}

// RPCMetadataResolver resolves asset supply over the Solana RPC. Symbols are
// not available on-chain without a metadata program lookup, so Symbol stays
// empty and the symbol-length check is skipped for RPC-resolved assets.
type RPCMetadataResolver struct {
	rpc solana.RPCClient
}

// NewRPCMetadataResolver creates a resolver backed by the RPC client.
func NewRPCMetadataResolver(rpc solana.RPCClient) *RPCMetadataResolver {
	return &RPCMetadataResolver{rpc: rpc}
}

// Compile-time interface check.
var _ MetadataResolver = (*RPCMetadataResolver)(nil)

// Resolve fetches the token supply for the mint.
func (r *RPCMetadataResolver) Resolve(ctx context.Context, mint string) (AssetInfo, error) {
	supply, err := r.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return AssetInfo{}, err
	}

	info := AssetInfo{Mint: mint}
	if supply != nil {
		info.Supply = supply.UIAmount
	}
	return info, nil
}
