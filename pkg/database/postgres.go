package database

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"RiskLens/pkg/config"
	"RiskLens/pkg/model"
)

// Postgres 数据库连接
type Postgres struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// NewPostgres 创建数据库连接并设置连接池
func NewPostgres(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}

	// 设置连接池参数
	dbCfg := cfg.Database
	sqlDB.SetMaxIdleConns(dbCfg.PoolSize)
	sqlDB.SetMaxOpenConns(dbCfg.PoolSize + dbCfg.MaxOverflow)
	sqlDB.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	// 测试连接
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("测试数据库连接失败: %w", err)
	}

	return &Postgres{db: db, sqlDB: sqlDB}, nil
}

// Migrate 创建或更新决策表及索引
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&model.DecisionRecord{}); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

// Ping 健康检查
func (p *Postgres) Ping(ctx context.Context) error {
	return p.sqlDB.PingContext(ctx)
}

// Decisions 决策存储
func (p *Postgres) Decisions() *DecisionDB {
	return NewDecisionDB(p.db)
}

// Close 关闭数据库连接
func (p *Postgres) Close() error {
	return p.sqlDB.Close()
}

// SQLDB 底层连接池，用于采集连接指标
func (p *Postgres) SQLDB() *sql.DB {
	return p.sqlDB
}
