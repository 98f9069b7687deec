// Package seed loads the board and station directory and generates demo community data
// for development environments.
package seed

import (
	_ "embed"
	"fmt"

	"lastday/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// BoardEntry is one city board of the catalog. Image is the number of the board's
// picture on the image host.
type BoardEntry struct {
	Province string `yaml:"province"`
	ProvAbb  string `yaml:"prov_abb"`
	City     string `yaml:"city"`
	Abb      string `yaml:"abb"`
	Image    int    `yaml:"image"`
	Location point  `yaml:"location"`
}

type StationEntry struct {
	Name     string             `yaml:"station"`
	Info     models.StationType `yaml:"station_info"`
	Location point              `yaml:"location"`
}

// Catalog is the static directory shipped with the binary.
type Catalog struct {
	Boards   []BoardEntry   `yaml:"boards"`
	Stations []StationEntry `yaml:"stations"`

	images map[string]int
}

// LoadCatalog parses the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c.images = make(map[string]int, len(c.Boards))
	for i, b := range c.Boards {
		if b.Province == "" || b.City == "" {
			return nil, fmt.Errorf("catalog board %d: province and city are required", i)
		}
		key := boardKey(b.Province, b.City)
		if _, dup := c.images[key]; dup {
			return nil, fmt.Errorf("catalog board %s %s is listed twice", b.Province, b.City)
		}
		c.images[key] = b.Image
	}
	for i, s := range c.Stations {
		switch s.Info {
		case models.StationTrain, models.StationAirport, models.StationBus:
		default:
			return nil, fmt.Errorf("catalog station %d (%s): unknown type %q", i, s.Name, s.Info)
		}
	}
	return &c, nil
}

func boardKey(province, city string) string {
	return province + "\x00" + city
}

// ImageNumber returns the catalog image number of a board.
func (c *Catalog) ImageNumber(province, city string) (int, bool) {
	n, ok := c.images[boardKey(province, city)]
	return n, ok
}

// ImageURL builds the picture URL of entry under baseURL.
func (b BoardEntry) ImageURL(baseURL string) string {
	return fmt.Sprintf("%s%d.jpg", baseURL, b.Image)
}

func (b BoardEntry) model(baseURL string) models.Board {
	return models.Board{
		Province: b.Province,
		ProvAbb:  b.ProvAbb,
		City:     b.City,
		Abb:      b.Abb,
		Image:    b.ImageURL(baseURL),
		Location: models.Location{X: b.Location.X, Y: b.Location.Y},
	}
}

func (s StationEntry) model() models.Station {
	return models.Station{
		Name:     s.Name,
		Info:     s.Info,
		Location: models.Location{X: s.Location.X, Y: s.Location.Y},
	}
}
