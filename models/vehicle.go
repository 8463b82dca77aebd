package models

import "time"

type Vehicle struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Plate        string    `gorm:"size:20;not null" json:"plate"`
	TrailerPlate *string   `gorm:"column:trailer_plate;size:20" json:"trailer_plate"`
	TruckType    string    `gorm:"column:truck_type;size:1;not null" json:"truck_type"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
