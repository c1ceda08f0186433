package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the relational persistence layer for users and their tweets.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// OpenStore connects to databaseURL and migrates the schema. URLs starting
// with postgres:// or postgresql:// use PostgreSQL, anything else is treated
// as a SQLite path, optionally prefixed with sqlite://.
func OpenStore(databaseURL string, log zerolog.Logger) (*Store, error) {
	config := &gorm.Config{
		Logger: newGormLogger(log),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if isPostgresURL(databaseURL) {
		log.Info().Msg("connecting to PostgreSQL")
		db, err = gorm.Open(postgres.Open(databaseURL), config)
	} else {
		dsn := sqliteDSN(databaseURL)
		log.Info().Str("dsn", dsn).Msg("opening SQLite database")
		var conn *sql.DB
		conn, err = openDB(dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite serializes writers; one connection avoids "database is locked".
		conn.SetMaxOpenConns(1)
		db, err = gorm.Open(sqlite.New(sqlite.Config{Conn: conn}), config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	if isPostgresURL(databaseURL) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&User{}, &Tweet{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

func openDB(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite3", dsn)
}

func isPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// sqliteDSN turns sqlite:///tmp/x.db into /tmp/x.db and enables foreign
// keys so tweets cascade with their user.
func sqliteDSN(url string) string {
	dsn := strings.TrimPrefix(url, "sqlite://")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// SaveTimeline creates the user if needed and inserts every post not
// already stored. Existing tweets are left as they are. It returns the
// user and the number of newly inserted tweets.
func (s *Store) SaveTimeline(ctx context.Context, name string, timeline *Timeline) (*User, int, error) {
	var (
		user     User
		inserted int
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(User{Name: name}).
			Assign(User{
				ScreenName:  screenName(name, timeline.Username),
				TwitterID:   timeline.UserID,
				DisplayName: timeline.DisplayName,
			}).
			FirstOrCreate(&user).Error
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", name, err)
		}

		if len(timeline.Posts) == 0 {
			return nil
		}

		tweets := make([]Tweet, 0, len(timeline.Posts))
		for _, p := range timeline.Posts {
			tweets = append(tweets, Tweet{
				ID:       p.ID,
				UserName: name,
				Text:     p.Text,
				PostedAt: p.CreatedAt.UTC(),
			})
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).CreateInBatches(tweets, 100)
		if result.Error != nil {
			return fmt.Errorf("insert tweets for %s: %w", name, result.Error)
		}
		inserted = int(result.RowsAffected)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	s.log.Debug().Str("user", name).Int("inserted", inserted).Msg("timeline stored")
	return &user, inserted, nil
}

// screenName keeps the remote casing of a handle when it matches name.
func screenName(name, remote string) string {
	if remote != "" && strings.EqualFold(remote, name) {
		return remote
	}
	return name
}

// ListUsers returns every user in insertion order.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("created_at, name").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, name string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", name, err)
	}
	return &user, nil
}

// TweetsFor returns the tweets of a known user, newest first.
func (s *Store) TweetsFor(ctx context.Context, name string) ([]Tweet, error) {
	if _, err := s.GetUser(ctx, name); err != nil {
		return nil, err
	}

	var tweets []Tweet
	err := s.db.WithContext(ctx).
		Where("user_name = ?", name).
		Order("posted_at DESC, id DESC").
		Find(&tweets).Error
	if err != nil {
		return nil, fmt.Errorf("tweets for %s: %w", name, err)
	}
	return tweets, nil
}

// Counts returns the number of stored users and tweets.
func (s *Store) Counts(ctx context.Context) (users, tweets int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&User{}).Count(&users).Error; err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	if err = db.Model(&Tweet{}).Count(&tweets).Error; err != nil {
		return 0, 0, fmt.Errorf("count tweets: %w", err)
	}
	return users, tweets, nil
}

// Reset drops every table and recreates the empty schema. All users and
// tweets are lost.
func (s *Store) Reset(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Migrator().DropTable(&Tweet{}); err != nil {
		return fmt.Errorf("reset database: drop tweets: %w", err)
	}
	if err := db.Migrator().DropTable(&User{}); err != nil {
		return fmt.Errorf("reset database: drop users: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &Tweet{}); err != nil {
		return fmt.Errorf("reset database: recreate schema: %w", err)
	}
	s.log.Warn().Msg("database reset, all users and tweets deleted")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
