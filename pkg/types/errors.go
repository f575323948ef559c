// Package types 定义基础类型
//
// 本文件定义公共错误。
package types

import "errors"

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("invalid peer ID")

	// ErrInvalidSignaturePolicy 未知的签名策略
	ErrInvalidSignaturePolicy = errors.New("invalid signature policy")
)
