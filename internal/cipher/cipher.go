// Package cipher 票据载荷加密
// 载荷在进入存储或网络边界前加密签名，读取时验证解密
package cipher

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecode 载荷验证或解密失败（数据损坏，不等同于不存在）
var ErrDecode = errors.New("票据载荷解密失败")

// Executor 载荷编解码接口
type Executor interface {
	// Name 实现名称
	Name() string
	// Encode 加密并签名载荷
	Encode(data []byte) ([]byte, error)
	// Decode 验证并解密载荷，失败返回 ErrDecode
	Decode(data []byte) ([]byte, error)
}

// NoOpExecutor 空实现，载荷原样透传
type NoOpExecutor struct{}

// Name 实现名称
func (NoOpExecutor) Name() string { return "noop" }

// Encode 原样返回
func (NoOpExecutor) Encode(data []byte) ([]byte, error) { return data, nil }

// Decode 原样返回
func (NoOpExecutor) Decode(data []byte) ([]byte, error) { return data, nil }

// nonce 长度（secretbox 要求 24 字节）
const nonceSize = 24

// SecretboxExecutor 基于 NaCl secretbox 的认证加密实现
// 随机 nonce 前置于密文，解密同时完成完整性验证
type SecretboxExecutor struct {
	key [32]byte
}

// NewSecretboxExecutor 从十六进制密钥创建加密执行器
// 密钥必须是 32 字节（64 个十六进制字符）
func NewSecretboxExecutor(hexKey string) (*SecretboxExecutor, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析加密密钥失败: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("加密密钥长度必须为 32 字节，实际 %d 字节", len(raw))
	}

	e := &SecretboxExecutor{}
	copy(e.key[:], raw)
	return e, nil
}

// GenerateKey 生成随机密钥（十六进制），供引导工具使用
func GenerateKey() (string, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("生成加密密钥失败: %w", err)
	}
	return hex.EncodeToString(key[:]), nil
}

// Name 实现名称
func (e *SecretboxExecutor) Name() string { return "secretbox" }

// Encode 加密并签名载荷
func (e *SecretboxExecutor) Encode(data []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("生成 nonce 失败: %w", err)
	}
	return secretbox.Seal(nonce[:], data, &nonce, &e.key), nil
}

// Decode 验证并解密载荷
func (e *SecretboxExecutor) Decode(data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, ErrDecode
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])

	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &e.key)
	if !ok {
		return nil, ErrDecode
	}
	return plain, nil
}
