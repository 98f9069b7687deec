package server

import "github.com/gofiber/fiber/v2"

// GetStations handles GET /api/stations
// @Summary List stations
// @Tags stations
// @Produce json
// @Success 200 {array} models.Station
// @Router /stations [get]
func (s *Server) GetStations(c *fiber.Ctx) error {
	stations, err := s.stations.ListStations(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stations)
}

// SearchStations handles GET /api/stations/search?q=
func (s *Server) SearchStations(c *fiber.Ctx) error {
	stations, err := s.stations.SearchStations(c.UserContext(), c.Query("q"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stations)
}
