package pubsub

import (
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	sha256 "github.com/minio/sha256-simd"

	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// SignPrefix 消息签名的域前缀
const SignPrefix = "libp2p-pubsub:"

// seqnoLength 序列号字节数
const seqnoLength = 8

// signer 按签名策略构造、验证消息并计算消息 ID
type signer struct {
	policy types.SignaturePolicy
	self   types.PeerID
	priv   crypto.PrivateKey

	// key 序列化的本地公钥，可内联到 self 时为 nil
	key []byte

	// keys 已验证的作者公钥，键为 len(from):from || key
	keys *lru.Cache[string, crypto.PublicKey]
}

// newSigner 创建 signer
func newSigner(policy types.SignaturePolicy, priv crypto.PrivateKey, cacheSize int) (*signer, error) {
	if !policy.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSignaturePolicy, policy)
	}
	if priv == nil {
		return nil, ErrNilPrivateKey
	}

	self, err := crypto.PeerIDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: derive peer id: %w", ErrConfiguration, err)
	}

	keys, err := lru.New[string, crypto.PublicKey](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: public key cache: %w", ErrConfiguration, err)
	}

	s := &signer{
		policy: policy,
		self:   self,
		priv:   priv,
		keys:   keys,
	}

	pub := priv.GetPublic()
	if !crypto.IsKeyInlineable(pub) {
		s.key, err = crypto.MarshalPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal public key: %w", ErrConfiguration, err)
		}
	}
	return s, nil
}

// BuildMessage 按策略补全本地发布的消息
func (s *signer) BuildMessage(msg *interfaces.Message) error {
	switch s.policy {
	case types.StrictSign:
		seqno, err := crypto.RandomBytes(seqnoLength)
		if err != nil {
			return err
		}
		msg.From = s.self
		msg.FromPresent = true
		msg.Seqno = seqno
		msg.Signature = nil
		msg.Key = nil

		data, err := signingBytes(msg)
		if err != nil {
			return err
		}
		sig, err := crypto.SignWithPrefix(s.priv, SignPrefix, data)
		if err != nil {
			return err
		}
		msg.Signature = sig
		msg.Key = s.key
		return nil

	case types.StrictNoSign:
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnhandledSignaturePolicy, s.policy)
	}
}

// Validate 按策略检查消息字段和签名
func (s *signer) Validate(msg *interfaces.Message) error {
	switch s.policy {
	case types.StrictSign:
		if msg.Signature == nil {
			return ErrMissingSignature
		}
		if msg.Seqno == nil {
			return ErrMissingSeqno
		}
		return s.verify(msg)

	case types.StrictNoSign:
		switch {
		case msg.FromPresent || !msg.From.IsEmpty():
			return ErrUnexpectedFrom
		case msg.Signature != nil:
			return ErrUnexpectedSignature
		case msg.Key != nil:
			return ErrUnexpectedKey
		case msg.Seqno != nil:
			return ErrUnexpectedSeqno
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnhandledSignaturePolicy, s.policy)
	}
}

// MsgID 计算消息 ID
//
// StrictSign 为 from || seqno，StrictNoSign 为 sha256(data)。
func (s *signer) MsgID(msg *interfaces.Message) []byte {
	if s.policy == types.StrictNoSign {
		sum := sha256.Sum256(msg.Data)
		return sum[:]
	}
	id := make([]byte, 0, len(msg.From)+len(msg.Seqno))
	id = append(id, msg.From...)
	return append(id, msg.Seqno...)
}

// verify 验证签名
func (s *signer) verify(msg *interfaces.Message) error {
	pub, err := s.authorKey(msg)
	if err != nil {
		return err
	}

	data, err := signingBytes(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ok, err := crypto.VerifyWithPrefix(pub, SignPrefix, data, msg.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

// authorKey 确定作者公钥
//
// 消息带 key 时 key 必须与 from 对应，否则从 from 中提取内联公钥。
func (s *signer) authorKey(msg *interfaces.Message) (crypto.PublicKey, error) {
	if msg.From.IsEmpty() {
		return nil, fmt.Errorf("%w: missing from", ErrInvalidSignature)
	}

	cacheKey := strconv.Itoa(len(msg.From)) + ":" + string(msg.From) + string(msg.Key)
	if pub, ok := s.keys.Get(cacheKey); ok {
		return pub, nil
	}

	var pub crypto.PublicKey
	if msg.Key != nil {
		var err error
		pub, err = crypto.UnmarshalPublicKeyBytes(msg.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: bad key: %v", ErrInvalidSignature, err)
		}
		match, err := crypto.VerifyPeerID(pub, msg.From)
		if err != nil || !match {
			return nil, fmt.Errorf("%w: key does not match from", ErrInvalidSignature)
		}
	} else {
		var err error
		pub, err = crypto.ExtractPublicKey(msg.From)
		if err != nil {
			return nil, fmt.Errorf("%w: extract key: %v", ErrInvalidSignature, err)
		}
	}

	s.keys.Add(cacheKey, pub)
	return pub, nil
}

// isSelf 消息作者是否为本地节点
func (s *signer) isSelf(msg *interfaces.Message) bool {
	return msg.From == s.self
}
