// Package db is the gorm-backed ticket registry.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/internal/models"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
)

type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// Enabled 未配置 host 时使用内存登记表
func (c MySQLConfig) Enabled() bool { return c.Host != "" }

func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Store implements services.Store on top of gorm.
type Store struct {
	db *gorm.DB
}

var _ services.Store = (*Store)(nil)

// Open 连接 MySQL 并执行表迁移
func Open(cfg MySQLConfig) (*Store, error) {
	conn, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("%w: mysql: %v", services.ErrStorage, err)
	}
	s := New(conn)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func New(conn *gorm.DB) *Store { return &Store{db: conn} }

func (s *Store) DB() *gorm.DB { return s.db }

// Migrate 创建或更新表结构
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&models.Ticket{}, &models.TicketMetadata{}, &models.TicketKey{}); err != nil {
		return fmt.Errorf("%w: migrate: %v", services.ErrStorage, err)
	}
	return nil
}

func (s *Store) PutTicketKey(ctx context.Context, address string, k keys.Keypair) error {
	rec := models.TicketKey{Address: address, SecretHex: keys.Export(k, keys.Hex), CreatedAt: time.Now()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	return wrap(err, "save key %s", address)
}

func (s *Store) TicketKey(ctx context.Context, address string) (keys.Keypair, error) {
	var rec models.TicketKey
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&rec).Error; err != nil {
		return keys.Keypair{}, wrap(err, "key %s", address)
	}
	return keys.Import(rec.SecretHex, keys.Hex)
}

func (s *Store) DeleteTicketKey(ctx context.Context, address string) error {
	err := s.db.WithContext(ctx).Where("address = ?", address).Delete(&models.TicketKey{}).Error
	return wrap(err, "delete key %s", address)
}

// SaveTicket 按地址 upsert
func (s *Store) SaveTicket(ctx context.Context, t *models.Ticket) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev models.Ticket
		err := tx.Where("address = ?", t.Address).First(&prev).Error
		switch {
		case err == nil:
			t.ID = prev.ID
			t.CreatedAt = prev.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			t.ID = 0
		default:
			return wrap(err, "ticket %s", t.Address)
		}
		return wrap(tx.Save(t).Error, "save ticket %s", t.Address)
	})
}

func (s *Store) MarkTicketUsed(ctx context.Context, address, signature string, at time.Time) error {
	updates := map[string]any{"status": models.StatusUsed, "used_at": at}
	if signature != "" {
		updates["use_signature"] = signature
	}
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("address = ?", address).Updates(updates)
	if res.Error != nil {
		return wrap(res.Error, "mark used %s", address)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: ticket %s", services.ErrNotFound, address)
	}
	return nil
}

func (s *Store) Ticket(ctx context.Context, address string) (*models.Ticket, error) {
	var t models.Ticket
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&t).Error; err != nil {
		return nil, wrap(err, "ticket %s", address)
	}
	return &t, nil
}

// ListTickets 按创建顺序倒序返回
func (s *Store) ListTickets(ctx context.Context, f services.TicketFilter) ([]models.Ticket, error) {
	q := s.db.WithContext(ctx).Model(&models.Ticket{})
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Owner != "" {
		q = q.Where("owner = ?", f.Owner)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.Ticket
	if err := q.Order("id DESC").Find(&out).Error; err != nil {
		return nil, wrap(err, "list tickets")
	}
	return out, nil
}

func (s *Store) SaveMetadata(ctx context.Context, m *models.TicketMetadata) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mint"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "event_name", "event_date", "section", "row", "seat", "price", "image", "updated_at"}),
		}).
		Create(m).Error
	return wrap(err, "save metadata %s", m.Mint)
}

func (s *Store) Metadata(ctx context.Context, mint string) (*models.TicketMetadata, error) {
	var m models.TicketMetadata
	if err := s.db.WithContext(ctx).Where("mint = ?", mint).First(&m).Error; err != nil {
		return nil, wrap(err, "metadata %s", mint)
	}
	return &m, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap(err, "ping")
	}
	return wrap(sqlDB.PingContext(ctx), "ping")
}

// wrap 将 gorm 错误映射到 services 的错误类别
func wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", services.ErrNotFound, what)
	}
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", services.ErrStorage, what, err)
}
