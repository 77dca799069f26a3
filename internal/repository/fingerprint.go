package repository

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint は記事本文のSHA-256ハッシュを16進文字列で返す。
// タグ除去や切り詰めを行う前の生の本文を対象とする。
func Fingerprint(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
