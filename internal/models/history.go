package models

import "time"

// RequestRecord запись аудита обработанного запроса
type RequestRecord struct {
	ID        uint      `gorm:"column:id;primaryKey" db:"id"`
	Route     string    `gorm:"column:route;not null" db:"route"`
	Action    string    `gorm:"column:action" db:"action"`
	Org       string    `gorm:"column:org" db:"org"`
	Project   string    `gorm:"column:project" db:"project"`
	Status    int       `gorm:"column:status;not null" db:"status"`
	Detail    string    `gorm:"column:detail" db:"detail"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" db:"created_at"`
}

func (RequestRecord) TableName() string {
	return "request_records"
}
