package service

import (
	"errors"
	"fmt"
)

// ErrMissingIdentity 表示请求既没有登录身份也没有访客会话，无法确定命名空间。
var ErrMissingIdentity = errors.New("no resolvable identity for namespace")

// UserNamespace 返回登录用户的向量命名空间。
func UserNamespace(userID uint) string {
	return fmt.Sprintf("user_%d", userID)
}

// GuestNamespace 返回访客会话的向量命名空间。
func GuestNamespace(sessionToken string) string {
	return fmt.Sprintf("session_%s", sessionToken)
}

// ResolveNamespace 决定请求的文档归属命名空间。
// 登录身份优先于访客会话；两者都没有时返回 ErrMissingIdentity。
func ResolveNamespace(userID uint, authenticated bool, guestToken string) (string, error) {
	if authenticated {
		return UserNamespace(userID), nil
	}
	if guestToken != "" {
		return GuestNamespace(guestToken), nil
	}
	return "", ErrMissingIdentity
}
