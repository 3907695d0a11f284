package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Rajkoli143/server/pkg/models"
)

type MySQLDB struct {
	*gorm.DB
}

// RoomRecord is the durable form of a room: one row per code, with the
// whole document serialized as JSON. The aggregate is the unit of
// consistency, so no per-song or per-vote tables exist.
type RoomRecord struct {
	Code      string `gorm:"primaryKey;size:6"`
	Data      []byte `gorm:"type:json"`
	UpdatedAt time.Time
}

func NewMySQLDB(host, port, user, password, dbname string) (*MySQLDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLDB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	return db.AutoMigrate(&RoomRecord{})
}

// RoomStore persists room documents in MySQL. It does not lock; the
// engine serializes commands per room.
type RoomStore struct {
	db *MySQLDB
}

func NewRoomStore(db *MySQLDB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) Load(ctx context.Context, code string) (*models.Room, error) {
	var rec RoomRecord
	err := s.db.WithContext(ctx).First(&rec, "code = ?", strings.ToUpper(code)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(rec.Data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

func (s *RoomStore) Save(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	rec := RoomRecord{
		Code:      strings.ToUpper(room.Code),
		Data:      data,
		UpdatedAt: room.UpdatedAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

func (s *RoomStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&RoomRecord{}).
		Where("code = ?", strings.ToUpper(code)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check room code: %w", err)
	}
	return count > 0, nil
}
