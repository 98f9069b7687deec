package server

import (
	"context"
	"strconv"

	"lastday/internal/models"
	"lastday/internal/service"

	"github.com/gofiber/fiber/v2"
)

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GetBoards handles GET /api/community/boards
// @Summary List boards
// @Tags community
// @Produce json
// @Success 200 {array} models.Board
// @Router /community/boards [get]
func (s *Server) GetBoards(c *fiber.Ctx) error {
	boards, err := s.queries.ListBoards(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(boards)
}

// GetNearbyBoards handles GET /api/community/boards/nearby?x=&y=
func (s *Server) GetNearbyBoards(c *fiber.Ctx) error {
	x, errX := strconv.ParseFloat(c.Query("x"), 64)
	y, errY := strconv.ParseFloat(c.Query("y"), 64)
	if errX != nil || errY != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("x and y must be numbers"))
	}

	boards, err := s.queries.ListBoardsNearby(c.UserContext(), x, y)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(boards)
}

// GetFavoriteBoards handles GET /api/community/boards/favorites
func (s *Server) GetFavoriteBoards(c *fiber.Ctx) error {
	boards, err := s.queries.ListFavoriteBoards(c.UserContext(), viewerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(boards)
}

// GetBoard handles GET /api/community/boards/:boardId?page=
// @Summary Board detail with a page of posts
// @Tags community
// @Produce json
// @Security BearerAuth
// @Param boardId path int true "Board ID"
// @Param page query int false "Page number"
// @Success 200 {object} service.BoardDetail
// @Failure 404 {object} models.ErrorResponse
// @Router /community/boards/{boardId} [get]
func (s *Server) GetBoard(c *fiber.Ctx) error {
	boardID, err := parseID(c, "boardId")
	if err != nil {
		return nil
	}

	detail, err := s.queries.GetBoardDetail(c.UserContext(), viewerID(c), boardID, c.QueryInt("page", 1))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

func (s *Server) AddFavorite(c *fiber.Ctx) error    { return s.setFavorite(c, true) }
func (s *Server) RemoveFavorite(c *fiber.Ctx) error { return s.setFavorite(c, false) }

func (s *Server) setFavorite(c *fiber.Ctx, present bool) error {
	boardID, err := parseID(c, "boardId")
	if err != nil {
		return nil
	}
	if err := s.community.SetFavorite(c.UserContext(), viewerID(c), boardID, present); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CreatePost handles POST /api/community/boards/:boardId/posts
// @Summary Create a post
// @Tags community
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param boardId path int true "Board ID"
// @Param request body postRequest true "Post"
// @Success 201 {object} models.Post
// @Failure 409 {object} models.ErrorResponse
// @Router /community/boards/{boardId}/posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	boardID, err := parseID(c, "boardId")
	if err != nil {
		return nil
	}
	var req postRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.community.CreatePost(c.UserContext(), service.CreatePostInput{
		BoardID: boardID,
		UserID:  viewerID(c),
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPost handles GET /api/community/posts/:postId
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}

	detail, err := s.queries.GetPostDetail(c.UserContext(), viewerID(c), postID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

// EditPost handles PATCH /api/community/posts/:postId
func (s *Server) EditPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}
	var req postRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.community.EditPost(c.UserContext(), service.EditPostInput{
		PostID:  postID,
		UserID:  viewerID(c),
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/community/posts/:postId
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}

	if _, err := s.community.DeletePost(c.UserContext(), service.DeletePostInput{
		PostID: postID,
		UserID: viewerID(c),
	}); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) LikePost(c *fiber.Ctx) error    { return s.react(c, s.community.SetLike, true) }
func (s *Server) UnlikePost(c *fiber.Ctx) error  { return s.react(c, s.community.SetLike, false) }
func (s *Server) ScrapPost(c *fiber.Ctx) error   { return s.react(c, s.community.SetScrap, true) }
func (s *Server) UnscrapPost(c *fiber.Ctx) error { return s.react(c, s.community.SetScrap, false) }

func (s *Server) react(c *fiber.Ctx, set func(ctx context.Context, userID, postID uint, present bool) (*models.Post, error), present bool) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}

	viewer := viewerID(c)
	post, err := set(c.UserContext(), viewer, postID, present)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"post_id":     post.ID,
		"liked":       models.SetContains(post.Likes, viewer),
		"scrapped":    models.SetContains(post.Scraps, viewer),
		"like_count":  len(post.Likes),
		"scrap_count": len(post.Scraps),
	})
}

// CreateComment handles POST /api/community/posts/:postId/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.community.CreateComment(c.UserContext(), service.CreateCommentInput{
		PostID:  postID,
		UserID:  viewerID(c),
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post.Comments[len(post.Comments)-1])
}

// DeleteComment handles DELETE /api/community/posts/:postId/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}

	if _, err := s.community.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		PostID:    postID,
		CommentID: c.Params("commentId"),
		UserID:    viewerID(c),
	}); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMyContent handles GET /api/community/me/:kind where kind is posts, comments, likes
// or scraps.
func (s *Server) GetMyContent(c *fiber.Ctx) error {
	posts, err := s.queries.GetUserContent(c.UserContext(), viewerID(c), c.Params("kind"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}
