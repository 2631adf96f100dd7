package model

import "time"

// UserProfile 核心身份库中的用户展示字段
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// LastActiveRecord 租户库中的持久在线记录
// 连接终止时由 Presence Coordinator 回写（upsert），网关永不删除
type LastActiveRecord struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}
