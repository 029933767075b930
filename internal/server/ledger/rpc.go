package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/besteffort"
	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// Submission is the JSON-RPC parameter sent to the ledger gateway.
type Submission struct {
	Contract          string `json:"contract"`
	From              string `json:"from"`
	UserIDHash        string `json:"userIdHash"`
	DeletionTimestamp string `json:"deletionTimestamp"`
	ComposeHash       string `json:"composeHash"`
	Attestation       string `json:"attestation"`
	Digest            string `json:"digest"`
	SubmitterSig      string `json:"submitterSig"`
}

// Digest is the keccak256 of the canonical deletion message followed by the
// enclave signature; the submitter key signs this digest.
func Digest(att models.DeletionAttestation) ethcommon.Hash {
	msg := signing.DeletionMessage(att.UserIDHash, att.DeletionTimestamp, att.ComposeHash)
	return crypto.Keccak256Hash([]byte(msg), []byte(att.Signature))
}

// RPCSubmitter sends attestations to a JSON-RPC ledger gateway.
type RPCSubmitter struct {
	client   *rpc.Client
	method   string
	contract ethcommon.Address
	key      *ecdsa.PrivateKey
	from     ethcommon.Address
	timeout  time.Duration
}

// ParseKey accepts a hex secp256k1 private key with or without 0x.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: ledger credential: %v", common.ErrConfiguration, err)
	}
	return key, nil
}

func NewRPCSubmitter(ctx context.Context, rpcURL, contract, method, hexKey string, timeout time.Duration) (*RPCSubmitter, error) {
	if !ethcommon.IsHexAddress(contract) {
		return nil, fmt.Errorf("%w: invalid contract address %q", common.ErrConfiguration, contract)
	}
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial ledger rpc: %v", common.ErrConfiguration, err)
	}
	return &RPCSubmitter{
		client:   client,
		method:   method,
		contract: ethcommon.HexToAddress(contract),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		timeout:  timeout,
	}, nil
}

// From is the address derived from the submission credential.
func (s *RPCSubmitter) From() ethcommon.Address {
	return s.from
}

func (s *RPCSubmitter) Submit(ctx context.Context, att models.DeletionAttestation) besteffort.Outcome[string] {
	digest := Digest(att)
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return besteffort.Failed[string](fmt.Errorf("sign digest: %w", err))
	}

	req := Submission{
		Contract:          s.contract.Hex(),
		From:              s.from.Hex(),
		UserIDHash:        att.UserIDHash,
		DeletionTimestamp: att.DeletionTimestamp,
		ComposeHash:       att.ComposeHash,
		Attestation:       att.Signature,
		Digest:            digest.Hex(),
		SubmitterSig:      hexutil.Encode(sig),
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var result string
	if err := s.client.CallContext(ctx, &result, s.method, req); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return besteffort.Failed[string](fmt.Errorf("%w: ledger rejected submission (%d): %v", common.ErrExternalCall, rpcErr.ErrorCode(), err))
		}
		return besteffort.Unavailable[string](fmt.Errorf("%w: %v", common.ErrExternalCall, err))
	}

	raw, err := hexutil.Decode(result)
	if err != nil || len(raw) != ethcommon.HashLength {
		return besteffort.Failed[string](fmt.Errorf("%w: malformed transaction hash %q", common.ErrExternalCall, result))
	}
	return besteffort.OK(ethcommon.BytesToHash(raw).Hex())
}

func (s *RPCSubmitter) Close() {
	s.client.Close()
}
