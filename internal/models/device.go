package models

import (
	"strings"
	"time"
)

// User 设备认领者（通知接收人）
type User struct {
	ID        string `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}

// FullName 拼接姓名，两者都为空时回退到邮箱
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Device 物理传感器设备
// ClaimedBy 为空表示未被认领：接收读数，但从不触发通知
type Device struct {
	ID        string     `json:"device_id" db:"device_id"`
	Name      string     `json:"name" db:"name"`
	ClaimedBy *string    `json:"claimed_by,omitempty" db:"claimed_by"`
	Owner     *User      `json:"owner,omitempty"`
	IPAddress string     `json:"ip_address,omitempty" db:"ip_address"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	LastSeen  *time.Time `json:"last_seen,omitempty" db:"last_seen"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// IsClaimed 设备是否有认领者
func (d Device) IsClaimed() bool {
	return d.ClaimedBy != nil && *d.ClaimedBy != ""
}

// Recipient 通知接收人；未认领或认领者无邮箱时返回 nil
func (d Device) Recipient() *User {
	if !d.IsClaimed() || d.Owner == nil || d.Owner.Email == "" {
		return nil
	}
	return d.Owner
}

// DiscoveredDevice 发现列表中的设备（最近上报心跳）
type DiscoveredDevice struct {
	Device
	Claimable bool `json:"claimable"`
	OwnedByMe bool `json:"owned_by_me"`
}
