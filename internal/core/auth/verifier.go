package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-varint"
	"golang.org/x/crypto/argon2"

	"github.com/dep2p/go-ctlplane/internal/core/wire"
)

// 认证机制名
const (
	MechanismNull  = wire.MechanismNull
	MechanismPlain = "PLAIN"
	MechanismCurve = "CURVE"
)

// Verifier 按机制校验凭证
//
// 凭证不匹配返回 ErrCredentialsRejected，其他错误按内部错误处理。
type Verifier interface {
	Verify(identity string, credentials [][]byte) error
}

// VerifierFunc 函数形式的 Verifier
type VerifierFunc func(identity string, credentials [][]byte) error

// Verify 实现 Verifier
func (f VerifierFunc) Verify(identity string, credentials [][]byte) error {
	return f(identity, credentials)
}

// ============================================================================
//                              NULL
// ============================================================================

// NullVerifier 不携带凭证的机制
type NullVerifier struct{}

// Verify 实现 Verifier，只接受空凭证
func (NullVerifier) Verify(_ string, credentials [][]byte) error {
	if len(credentials) != 0 {
		return ErrCredentialsRejected
	}
	return nil
}

// ============================================================================
//                              PLAIN
// ============================================================================

// Argon2 参数
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltSize      = 16

	hashPrefix = "argon2id"
)

// HashPassword 生成 "argon2id$<salt>$<key>" 形式的密码哈希（base64 无填充）
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	enc := base64.RawStdEncoding
	return hashPrefix + "$" + enc.EncodeToString(salt) + "$" + enc.EncodeToString(key), nil
}

// passwordHash 解析后的哈希
type passwordHash struct {
	salt []byte
	key  []byte
}

func parseHash(s string) (passwordHash, error) {
	fields := strings.Split(s, "$")
	if len(fields) != 3 || fields[0] != hashPrefix {
		return passwordHash{}, ErrMalformedHash
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(fields[1])
	if err != nil {
		return passwordHash{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	key, err := enc.DecodeString(fields[2])
	if err != nil || len(key) != argon2KeyLen {
		return passwordHash{}, ErrMalformedHash
	}
	return passwordHash{salt: salt, key: key}, nil
}

func (h passwordHash) matches(password []byte) bool {
	key := argon2.IDKey(password, h.salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return subtle.ConstantTimeCompare(key, h.key) == 1
}

// PlainVerifier 用户名/密码校验
//
// 凭证为 [用户名, 密码] 两帧。argon2 计算代价高，已验证的组合按
// sha256(用户名, 密码) 缓存在 LRU 中；修改用户时清空缓存。
type PlainVerifier struct {
	mu    sync.RWMutex
	users map[string]passwordHash

	verified *lru.Cache[[sha256.Size]byte, struct{}]
}

// NewPlainVerifier 创建 PLAIN 校验器，cacheSize 为缓存容量
func NewPlainVerifier(cacheSize int) (*PlainVerifier, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[[sha256.Size]byte, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	return &PlainVerifier{
		users:    make(map[string]passwordHash),
		verified: cache,
	}, nil
}

// SetUser 设置用户的密码哈希
func (v *PlainVerifier) SetUser(username, hash string) error {
	h, err := parseHash(hash)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.users[username] = h
	v.mu.Unlock()
	v.verified.Purge()
	return nil
}

// RemoveUser 删除用户
func (v *PlainVerifier) RemoveUser(username string) {
	v.mu.Lock()
	delete(v.users, username)
	v.mu.Unlock()
	v.verified.Purge()
}

// Users 返回排序后的用户名
func (v *PlainVerifier) Users() []string {
	v.mu.RLock()
	out := make([]string, 0, len(v.users))
	for u := range v.users {
		out = append(out, u)
	}
	v.mu.RUnlock()
	sort.Strings(out)
	return out
}

// LoadFile 读取 "用户名:哈希" 行，返回读取的用户数
func (v *PlainVerifier) LoadFile(path string) (int, error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}
	for i, line := range lines {
		username, hash, ok := strings.Cut(line, ":")
		if !ok || username == "" {
			return i, fmt.Errorf("%w: line %d", ErrMalformedEntry, i+1)
		}
		if err := v.SetUser(username, hash); err != nil {
			return i, fmt.Errorf("user %s: %w", username, err)
		}
	}
	return len(lines), nil
}

// Verify 实现 Verifier
func (v *PlainVerifier) Verify(_ string, credentials [][]byte) error {
	if len(credentials) != 2 {
		return ErrCredentialsRejected
	}
	username, password := credentials[0], credentials[1]

	cacheKey := pairKey(username, password)
	if v.verified.Contains(cacheKey) {
		return nil
	}

	v.mu.RLock()
	h, ok := v.users[string(username)]
	v.mu.RUnlock()
	if !ok || !h.matches(password) {
		return ErrCredentialsRejected
	}

	v.verified.Add(cacheKey, struct{}{})
	return nil
}

// pairKey 各字段带 uvarint 长度前缀，不同拆分不会得到相同的键
func pairKey(username, password []byte) [sha256.Size]byte {
	buf := make([]byte, 0, len(username)+len(password)+2*varint.MaxLenUvarint63)
	buf = append(buf, varint.ToUvarint(uint64(len(username)))...)
	buf = append(buf, username...)
	buf = append(buf, varint.ToUvarint(uint64(len(password)))...)
	buf = append(buf, password...)
	return sha256.Sum256(buf)
}

// ============================================================================
//                              CURVE
// ============================================================================

// CurveKeySize CURVE 公钥长度
const CurveKeySize = 32

// CurveVerifier 公钥白名单
//
// 凭证为一帧 32 字节公钥。文件中每行一个 base58 编码的公钥。
type CurveVerifier struct {
	mu   sync.RWMutex
	keys map[[CurveKeySize]byte]struct{}
}

// NewCurveVerifier 创建 CURVE 校验器
func NewCurveVerifier() *CurveVerifier {
	return &CurveVerifier{keys: make(map[[CurveKeySize]byte]struct{})}
}

// AddKey 添加公钥
func (v *CurveVerifier) AddKey(key []byte) error {
	if len(key) != CurveKeySize {
		return ErrInvalidKey
	}
	var k [CurveKeySize]byte
	copy(k[:], key)
	v.mu.Lock()
	v.keys[k] = struct{}{}
	v.mu.Unlock()
	return nil
}

// AddEncodedKey 添加 base58 编码的公钥
func (v *CurveVerifier) AddEncodedKey(s string) error {
	key, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return v.AddKey(key)
}

// RemoveKey 删除公钥
func (v *CurveVerifier) RemoveKey(key []byte) {
	if len(key) != CurveKeySize {
		return
	}
	var k [CurveKeySize]byte
	copy(k[:], key)
	v.mu.Lock()
	delete(v.keys, k)
	v.mu.Unlock()
}

// Keys 返回排序后的 base58 编码公钥
func (v *CurveVerifier) Keys() []string {
	v.mu.RLock()
	out := make([]string, 0, len(v.keys))
	for k := range v.keys {
		out = append(out, base58.Encode(k[:]))
	}
	v.mu.RUnlock()
	sort.Strings(out)
	return out
}

// LoadFile 读取 base58 公钥行，返回读取的公钥数
func (v *CurveVerifier) LoadFile(path string) (int, error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}
	for i, line := range lines {
		if err := v.AddEncodedKey(line); err != nil {
			return i, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return len(lines), nil
}

// DumpFile 写出 base58 公钥，每行一个
func (v *CurveVerifier) DumpFile(path string) error {
	return writeLines(path, v.Keys())
}

// Verify 实现 Verifier
func (v *CurveVerifier) Verify(_ string, credentials [][]byte) error {
	if len(credentials) != 1 || len(credentials[0]) != CurveKeySize {
		return ErrCredentialsRejected
	}
	var k [CurveKeySize]byte
	copy(k[:], credentials[0])

	v.mu.RLock()
	_, ok := v.keys[k]
	v.mu.RUnlock()
	if !ok {
		return ErrCredentialsRejected
	}
	return nil
}
