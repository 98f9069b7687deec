package models

import "time"

// Location is a point in the map projection used by boards and stations.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SquaredDistance returns the squared euclidean distance to (x, y).
func (l Location) SquaredDistance(x, y float64) float64 {
	dx, dy := l.X-x, l.Y-y
	return dx*dx + dy*dy
}

// Board is the community board of one city.
type Board struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Province     string    `gorm:"size:50;not null" json:"province"`
	ProvAbb      string    `gorm:"size:20;not null;index" json:"prov_abb"`
	City         string    `gorm:"size:50;not null" json:"city"`
	Abb          string    `gorm:"size:20" json:"abb"`
	Image        string    `gorm:"size:512" json:"image"`
	Location     Location  `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	FirstArticle string    `gorm:"size:255" json:"first_article"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
