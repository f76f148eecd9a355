package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// List is an owned, ordered container of card references.
// CardIDs is the display order; Version is bumped by every successful save.
type List struct {
	ID        string  `gorm:"primaryKey;size:36"`
	Title     string  `gorm:"not null;size:255;uniqueIndex:idx_lists_owner_title,priority:2"`
	OwnerID   string  `gorm:"not null;size:64;uniqueIndex:idx_lists_owner_position,priority:1;uniqueIndex:idx_lists_owner_title,priority:1"`
	Position  int     `gorm:"not null;uniqueIndex:idx_lists_owner_position,priority:2"`
	CardIDs   CardIDs `gorm:"type:text;not null"`
	Version   int64   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy whose CardIDs can be modified without touching l.
func (l *List) Clone() *List {
	c := *l
	c.CardIDs = slices.Clone(l.CardIDs)
	return &c
}

// CardIDs is stored as a JSON array so the same column works on
// PostgreSQL and SQLite.
type CardIDs []string

func (c CardIDs) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CardIDs) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = CardIDs{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("card_ids: unsupported type %T", src)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("card_ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	*c = ids
	return nil
}
