package crypto

import (
	"fmt"

	mh "github.com/multiformats/go-multihash"

	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// ============================================================================
//                              PeerID 派生
// ============================================================================

// PeerIDFromPublicKey 从公钥派生 PeerID
//
// 序列化公钥不超过 types.MaxInlineKeyLength 字节时使用 identity multihash，
// 公钥直接内联在 ID 中；否则取 sha2-256 multihash。
func PeerIDFromPublicKey(pub PublicKey) (types.PeerID, error) {
	if pub == nil {
		return types.EmptyPeerID, ErrNilPublicKey
	}

	data, err := MarshalPublicKey(pub)
	if err != nil {
		return types.EmptyPeerID, err
	}

	code := uint64(mh.SHA2_256)
	if len(data) <= types.MaxInlineKeyLength {
		code = mh.IDENTITY
	}

	hash, err := mh.Sum(data, code, -1)
	if err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}
	return types.PeerID(hash), nil
}

// PeerIDFromPrivateKey 从私钥派生 PeerID
func PeerIDFromPrivateKey(priv PrivateKey) (types.PeerID, error) {
	if priv == nil {
		return types.EmptyPeerID, ErrNilPrivateKey
	}
	return PeerIDFromPublicKey(priv.GetPublic())
}

// ============================================================================
//                              内联公钥
// ============================================================================

// IsKeyInlineable 公钥是否可以内联到 PeerID 中
func IsKeyInlineable(pub PublicKey) bool {
	data, err := MarshalPublicKey(pub)
	if err != nil {
		return false
	}
	return len(data) <= types.MaxInlineKeyLength
}

// ExtractPublicKey 从 PeerID 中提取内联公钥
//
// PeerID 不是 identity multihash 时返回 ErrNoInlineKey。
func ExtractPublicKey(id types.PeerID) (PublicKey, error) {
	decoded, err := mh.Decode(id.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPeerID, err)
	}
	if decoded.Code != mh.IDENTITY {
		return nil, ErrNoInlineKey
	}
	return UnmarshalPublicKeyBytes(decoded.Digest)
}

// ============================================================================
//                              公钥与 PeerID 校验
// ============================================================================

// VerifyPeerID 验证公钥是否对应给定的 PeerID
func VerifyPeerID(pub PublicKey, id types.PeerID) (bool, error) {
	derived, err := PeerIDFromPublicKey(pub)
	if err != nil {
		return false, err
	}
	return derived == id, nil
}
