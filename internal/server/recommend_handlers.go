package server

import (
	"lastday/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Coordinate handles GET /api/recommend/coordinate?keyword=
// @Summary Keyword place search
// @Tags recommend
// @Produce json
// @Param keyword query string true "Keyword"
// @Success 200 {array} service.Place
// @Failure 502 {object} models.ErrorResponse
// @Router /recommend/coordinate [get]
func (s *Server) Coordinate(c *fiber.Ctx) error {
	places, err := s.recommend.Coordinate(c.UserContext(), c.Query("keyword"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(places)
}

// RecommendRooms handles POST /api/recommend/rooms
func (s *Server) RecommendRooms(c *fiber.Ctx) error {
	var req service.RoomQuery
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	recs, err := s.recommend.RecommendRooms(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(recs)
}

// RecommendStations handles POST /api/recommend/stations
func (s *Server) RecommendStations(c *fiber.Ctx) error {
	var req service.StationQuery
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	recs, err := s.recommend.RecommendStations(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(recs)
}

// GetPlace handles GET /api/recommend/places/:contentId?content_type=
func (s *Server) GetPlace(c *fiber.Ctx) error {
	info, err := s.recommend.PlaceOverview(c.UserContext(), c.Params("contentId"), c.Query("content_type"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(info)
}
