package wallet

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"math/big"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

var (
	secp256k1N, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	secp256k1halfN = new(big.Int).Div(secp256k1N, big.NewInt(2))

	crc32cTable = crc32.MakeTable(crc32.Castagnoli)
)

// KeyManagementClient is the part of *kms.KeyManagementClient used for signing.
type KeyManagementClient interface {
	GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest, opts ...gax.CallOption) (*kmspb.PublicKey, error)
	AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, opts ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error)
}

type kmsWallet struct {
	kmsClient  KeyManagementClient
	keyVersion string
	publicKey  *ecdsa.PublicKey
	address    common.Address
}

// NewKMSSigner loads the public key of keyVersion once; the private key never leaves Cloud KMS.
func NewKMSSigner(ctx context.Context, kmsClient KeyManagementClient, keyVersion string) (repository.SignerRepository, error) {
	k := &kmsWallet{
		kmsClient:  kmsClient,
		keyVersion: keyVersion,
	}

	pubKey, err := k.getPublicKey(ctx)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to get public key: %w", err))
	}
	k.publicKey = pubKey
	k.address = crypto.PubkeyToAddress(*pubKey)
	log.Debug().Str("address", k.address.Hex()).Msg(util.WrapLogMessage(packageName, "NewKMSSigner", "loaded kms key"))

	return k, nil
}

func (k *kmsWallet) Address() common.Address {
	return k.address
}

func (k *kmsWallet) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	funcName := util.FuncName()

	signer := types.LatestSignerForChainID(chainID)
	txHash := signer.Hash(tx)

	signature, err := k.sign(ctx, txHash[:])
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to sign: %w", err))
	}

	signedTx, err := tx.WithSignature(signer, signature)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName,
			model.NewSubmissionError(model.ErrorClassSigningFailure, "sign transaction", err))
	}
	return signedTx, nil
}

func (k *kmsWallet) getPublicKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	funcName := util.FuncName()

	publicKeyResponse, err := k.kmsClient.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{
		Name: k.keyVersion,
	})
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, classifyKMSError("get public key", err))
	}
	if publicKeyResponse.Name != k.keyVersion {
		return nil, util.WrapErrorForLog(packageName, funcName, signingFailure("get public key", fmt.Errorf("invalid key name")))
	}
	publicKeyPEM := publicKeyResponse.Pem
	if publicKeyPEM == "" {
		return nil, util.WrapErrorForLog(packageName, funcName, signingFailure("get public key", fmt.Errorf("empty PEM")))
	}
	if int64(crc32c([]byte(publicKeyPEM))) != publicKeyResponse.GetPemCrc32C().GetValue() {
		return nil, util.WrapErrorForLog(packageName, funcName, signingFailure("get public key", fmt.Errorf("invalid CRC32")))
	}

	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, util.WrapErrorForLog(packageName, funcName, signingFailure("get public key", fmt.Errorf("failed to decode public key")))
	}
	pubKey, err := getPublicKeyFromDecodedPEM(block)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, signingFailure("get public key", err))
	}

	return &pubKey, nil
}

func (k *kmsWallet) sign(ctx context.Context, hash []byte) ([]byte, error) {
	funcName := util.FuncName()

	signResponse, err := k.kmsClient.AsymmetricSign(ctx, &kmspb.AsymmetricSignRequest{
		Name: k.keyVersion,
		Digest: &kmspb.Digest{
			Digest: &kmspb.Digest_Sha256{
				Sha256: hash,
			},
		},
		DigestCrc32C: wrapperspb.Int64(int64(crc32c(hash))),
	})
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, classifyKMSError("sign digest", err))
	}

	if !signResponse.GetVerifiedDigestCrc32C() {
		return nil, util.WrapErrorForLog(packageName, funcName,
			model.NewSubmissionError(model.ErrorClassConnectionFailure, "sign digest", fmt.Errorf("request corrupted in-transit")))
	}
	if len(signResponse.Signature) == 0 {
		return nil, util.WrapErrorForLog(packageName, funcName, signingFailure("sign digest", fmt.Errorf("empty signature")))
	}
	if int64(crc32c(signResponse.Signature)) != signResponse.GetSignatureCrc32C().GetValue() {
		return nil, util.WrapErrorForLog(packageName, funcName,
			model.NewSubmissionError(model.ErrorClassConnectionFailure, "sign digest", fmt.Errorf("response corrupted in-transit")))
	}

	r, s, err := parseSignature(signResponse.Signature)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, signingFailure("parse signature", err))
	}

	signature, err := recoverableSignature(hash, r, s, k.publicKey)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, signingFailure("recover signature", err))
	}
	return signature, nil
}

// recoverableSignature appends the recovery id that maps (r, s) back to pubKey.
func recoverableSignature(hash []byte, r, s *big.Int, pubKey *ecdsa.PublicKey) ([]byte, error) {
	for _, v := range []byte{0, 1} {
		candidateSignature := make([]byte, crypto.SignatureLength)
		r.FillBytes(candidateSignature[:32])
		s.FillBytes(candidateSignature[32:64])
		candidateSignature[crypto.RecoveryIDOffset] = v

		candidateRawPublicKey, err := crypto.Ecrecover(hash, candidateSignature)
		if err != nil {
			continue
		}
		candidatePublicKey, err := crypto.UnmarshalPubkey(candidateRawPublicKey)
		if err != nil {
			continue
		}
		if candidatePublicKey.Equal(pubKey) {
			return candidateSignature, nil
		}
	}
	return nil, errors.New("no recovery id matches the public key")
}

func getPublicKeyFromDecodedPEM(block *pem.Block) (ecdsa.PublicKey, error) {
	funcName := util.FuncName()

	var pki struct {
		Raw       asn1.RawContent
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}

	_, err := asn1.Unmarshal(block.Bytes, &pki)
	if err != nil {
		return ecdsa.PublicKey{}, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to unmarshal public key: %w", err))
	}
	asn1Data := pki.PublicKey.RightAlign()
	if len(asn1Data) != 65 || asn1Data[0] != 0x04 {
		return ecdsa.PublicKey{}, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("unexpected public key encoding (%d bytes)", len(asn1Data)))
	}
	x, y := asn1Data[1:33], asn1Data[33:]
	pubKey := ecdsa.PublicKey{Curve: crypto.S256(), X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}

	return pubKey, nil
}

func parseSignature(signature []byte) (r *big.Int, s *big.Int, err error) {
	funcName := util.FuncName()

	sig := new(struct {
		R *big.Int
		S *big.Int
	})

	_, err = asn1.Unmarshal(signature, sig)
	if err != nil {
		return nil, nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to unmarshal signature: %w", err))
	}

	// Ethereum only accepts low-S signatures.
	if sig.S.Cmp(secp256k1halfN) > 0 {
		sig.S = new(big.Int).Sub(secp256k1N, sig.S)
	}

	return sig.R, sig.S, nil
}

func crc32c(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

func signingFailure(op string, err error) error {
	return model.NewSubmissionError(model.ErrorClassSigningFailure, op, err)
}

// classifyKMSError keeps KMS outages retryable; everything else is a key problem.
func classifyKMSError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return model.NewSubmissionError(model.ErrorClassCanceled, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewSubmissionError(model.ErrorClassNetworkTimeout, op, err)
	}

	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return model.NewSubmissionError(model.ErrorClassNetworkTimeout, op, err)
	case codes.Unavailable, codes.Aborted, codes.Internal:
		return model.NewSubmissionError(model.ErrorClassConnectionFailure, op, err)
	case codes.ResourceExhausted:
		return model.NewSubmissionError(model.ErrorClassRateLimited, op, err)
	default:
		return signingFailure(op, err)
	}
}
