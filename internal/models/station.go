package models

// StationType is the transport mode of a station.
type StationType string

const (
	StationTrain   StationType = "TRAIN"
	StationAirport StationType = "AIRPORT"
	StationBus     StationType = "BUS"
)

// Station is an entry of the read-only station directory.
type Station struct {
	ID       uint        `gorm:"primaryKey" json:"id"`
	Name     string      `gorm:"column:station;size:100;not null;index" json:"station"`
	Info     StationType `gorm:"column:station_info;size:10;not null" json:"station_info"`
	Location Location    `gorm:"embedded;embeddedPrefix:location_" json:"location"`
}
