package crypto

// ============================================================================
//                              带域前缀的签名
// ============================================================================

// 签名内容为 prefix || data，不同协议使用不同前缀，
// 防止一个协议的签名被挪用到另一个协议。

// SignWithPrefix 对 prefix || data 签名
func SignWithPrefix(key PrivateKey, prefix string, data []byte) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}
	return key.Sign(withPrefix(prefix, data))
}

// VerifyWithPrefix 验证 prefix || data 的签名
func VerifyWithPrefix(key PublicKey, prefix string, data, sig []byte) (bool, error) {
	if key == nil {
		return false, ErrNilPublicKey
	}
	if len(sig) == 0 {
		return false, nil
	}
	return key.Verify(withPrefix(prefix, data), sig)
}

func withPrefix(prefix string, data []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(data))
	buf = append(buf, prefix...)
	return append(buf, data...)
}
