package models

import (
	"time"

	"gorm.io/gorm"
)

type TicketKind string

const (
	KindValue TicketKind = "value"
	KindAsset TicketKind = "asset"
)

type TicketStatus string

const (
	StatusPending TicketStatus = "pending"
	StatusValid   TicketStatus = "valid"
	StatusUsed    TicketStatus = "used"
)

// Ticket 票据登记表（链上状态为准，这里只做索引）
type Ticket struct {
	gorm.Model
	Kind            TicketKind   `gorm:"size:10;index"`
	Address         string       `gorm:"uniqueIndex;size:44"` // Value-Ticket 地址或 mint 地址
	Owner           string       `gorm:"index;size:44"`
	TokenAccount    string       `gorm:"size:44"` // 仅 Asset-Ticket
	Price           uint64       // lamports
	Status          TicketStatus `gorm:"size:20;default:'pending'"`
	CreateSignature string       `gorm:"size:88"`
	UseSignature    string       `gorm:"size:88"`
	UsedAt          *time.Time
}

// TicketMetadata Asset-Ticket 的活动信息
type TicketMetadata struct {
	gorm.Model
	Mint      string `gorm:"uniqueIndex;size:44"`
	Name      string `gorm:"size:200"`
	EventName string `gorm:"size:200"`
	EventDate string `gorm:"size:40"`
	Section   string `gorm:"size:40"`
	Row       string `gorm:"size:40"`
	Seat      string `gorm:"size:40"`
	Price     uint64
	Image     string `gorm:"size:500"`
}

// TicketKey 保存 Value-Ticket 托管账户私钥，使用时需要它签名
type TicketKey struct {
	Address   string `gorm:"primaryKey;size:44"`
	SecretHex string `gorm:"size:128"`
	CreatedAt time.Time
}
