// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// UserRole はユーザーの種別を表す。
type UserRole string

const (
	// RoleClient はトレーニングを受けるクライアント。
	RoleClient UserRole = "client"
	// RoleTrainer はクライアントを指導するトレーナー。
	RoleTrainer UserRole = "trainer"
)

// AccountStatus はアカウントの審査状態を表す。
type AccountStatus string

const (
	AccountStatusPending  AccountStatus = "pending"
	AccountStatusApproved AccountStatus = "approved"
	AccountStatusRejected AccountStatus = "rejected"
)

// User はアプリ利用ユーザーを表す。
// FCMTokens はプッシュ配信先トークンの順序付きリストで、重複に意味はない。
type User struct {
	ID              string        `json:"id"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	Role            UserRole      `json:"role"`
	Status          AccountStatus `json:"status"`
	RejectionReason string        `json:"rejection_reason"`
	FCMTokens       []string      `json:"fcm_tokens"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// FullName は姓名を連結した表示名を返す。どちらも空の場合は空文字列を返す。
func (u *User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
