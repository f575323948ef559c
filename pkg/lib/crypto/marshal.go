package crypto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ============================================================================
//                              序列化格式
// ============================================================================

// 公钥/私钥的序列化格式与 libp2p 的 protobuf 定义一致：
//
//	message PublicKey  { required KeyType Type = 1; required bytes Data = 2; }
//	message PrivateKey { required KeyType Type = 1; required bytes Data = 2; }
//
// 线上 KeyType 取值：RSA=0, Ed25519=1, Secp256k1=2（见 key.go 的 keySpecs）。
// pubsub 消息的 key 字段携带的就是序列化后的公钥。

const (
	keyFieldType protowire.Number = 1
	keyFieldData protowire.Number = 2
)

// ============================================================================
//                              公钥序列化
// ============================================================================

// MarshalPublicKey 序列化公钥
func MarshalPublicKey(key PublicKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPublicKey
	}
	return marshalKey(key)
}

// UnmarshalPublicKeyBytes 反序列化 MarshalPublicKey 的输出
func UnmarshalPublicKeyBytes(data []byte) (PublicKey, error) {
	kt, raw, err := unmarshalKey(data)
	if err != nil {
		return nil, err
	}
	return UnmarshalPublicKey(kt, raw)
}

// ============================================================================
//                              私钥序列化
// ============================================================================

// MarshalPrivateKey 序列化私钥
func MarshalPrivateKey(key PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}
	return marshalKey(key)
}

// UnmarshalPrivateKeyBytes 反序列化 MarshalPrivateKey 的输出
func UnmarshalPrivateKeyBytes(data []byte) (PrivateKey, error) {
	kt, raw, err := unmarshalKey(data)
	if err != nil {
		return nil, err
	}
	return UnmarshalPrivateKey(kt, raw)
}

// ============================================================================
//                              内部实现
// ============================================================================

func marshalKey(key Key) ([]byte, error) {
	wt, err := wireKeyType(key.Type())
	if err != nil {
		return nil, err
	}

	raw, err := key.Raw()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	buf := make([]byte, 0, len(raw)+8)
	buf = protowire.AppendTag(buf, keyFieldType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, wt)
	buf = protowire.AppendTag(buf, keyFieldData, protowire.BytesType)
	buf = protowire.AppendBytes(buf, raw)
	return buf, nil
}

func unmarshalKey(data []byte) (KeyType, []byte, error) {
	var (
		kt      KeyType
		raw     []byte
		hasType bool
		hasData bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == keyFieldType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(m))
			}
			t, err := localKeyType(v)
			if err != nil {
				return 0, nil, err
			}
			kt, hasType = t, true
			data = data[m:]

		case num == keyFieldData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(m))
			}
			raw, hasData = v, true
			data = data[m:]

		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	if !hasType || !hasData {
		return 0, nil, fmt.Errorf("%w: missing type or data", ErrUnmarshalFailed)
	}
	return kt, raw, nil
}
