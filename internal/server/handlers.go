package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/plainhr/plain/internal/models"
	"github.com/plainhr/plain/internal/service"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type commentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parentId"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type verifyRequest struct {
	Badge string `json:"badge"`
}

type promotionRequest struct {
	Reason string `json:"reason"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// bindOptionalJSON допускает пустое тело запроса.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := s.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	token, err := s.auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	token, user, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *Server) me(c *gin.Context) {
	profile, err := s.svc.Me(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) listStories(c *gin.Context) {
	limit, cursor, ok := pageParams(c)
	if !ok {
		return
	}
	filter := models.StoryFilter{
		Query:        c.Query("q"),
		Tag:          c.Query("tag"),
		AuthorID:     c.Query("author"),
		VerifiedOnly: c.Query("verified") == "true",
	}
	page, err := s.svc.ListStories(c.Request.Context(), filter, limit, cursor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getStory(c *gin.Context) {
	story, err := s.svc.GetStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (s *Server) createStory(c *gin.Context) {
	var in service.StoryInput
	if !bindJSON(c, &in) {
		return
	}
	story, err := s.svc.CreateStory(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (s *Server) updateStory(c *gin.Context) {
	var in service.StoryInput
	if !bindJSON(c, &in) {
		return
	}
	story, err := s.svc.UpdateStory(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (s *Server) deleteStory(c *gin.Context) {
	if err := s.svc.DeleteStory(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) verifyStory(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	story, err := s.svc.VerifyStory(c.Request.Context(), c.Param("id"), req.Badge)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (s *Server) listLoungePosts(c *gin.Context) {
	limit, cursor, ok := pageParams(c)
	if !ok {
		return
	}
	filter := models.LoungeFilter{
		Query:         c.Query("q"),
		Type:          models.LoungeType(c.Query("type")),
		AuthorID:      c.Query("author"),
		ExcellentOnly: c.Query("excellent") == "true",
	}
	page, err := s.svc.ListLoungePosts(c.Request.Context(), filter, limit, cursor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getLoungePost(c *gin.Context) {
	post, err := s.svc.GetLoungePost(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) createLoungePost(c *gin.Context) {
	var in service.LoungeInput
	if !bindJSON(c, &in) {
		return
	}
	post, err := s.svc.CreateLoungePost(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) updateLoungePost(c *gin.Context) {
	var in service.LoungeInput
	if !bindJSON(c, &in) {
		return
	}
	post, err := s.svc.UpdateLoungePost(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) deleteLoungePost(c *gin.Context) {
	if err := s.svc.DeleteLoungePost(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requestPromotion(c *gin.Context) {
	var req promotionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	result, err := s.svc.RequestPromotion(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) listComments(postType models.PostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, cursor, ok := pageParams(c)
		if !ok {
			return
		}
		var parentID *string
		if raw := c.Query("parent"); raw != "" {
			parentID = &raw
		}
		page, err := s.svc.ListComments(c.Request.Context(), postType, c.Param("id"), parentID, limit, cursor)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func (s *Server) createComment(postType models.PostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req commentRequest
		if !bindJSON(c, &req) {
			return
		}
		comment, err := s.svc.CreateComment(c.Request.Context(), postType, c.Param("id"), req.ParentID, req.Content)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, comment)
	}
}

func (s *Server) deleteComment(c *gin.Context) {
	if err := s.svc.DeleteComment(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleLike(postType models.PostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.svc.ToggleLike(c.Request.Context(), postType, c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Server) toggleScrap(postType models.PostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.svc.ToggleScrap(c.Request.Context(), postType, c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Server) listMyScraps(c *gin.Context) {
	limit, cursor, ok := pageParams(c)
	if !ok {
		return
	}
	page, err := s.svc.ListMyScraps(c.Request.Context(), limit, cursor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) myLevel(c *gin.Context) {
	lvl, err := s.svc.GetMyLevel(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lvl)
}

func (s *Server) updateProfile(c *gin.Context) {
	var in service.ProfileInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := s.svc.UpdateProfile(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) profile(c *gin.Context) {
	profile, err := s.svc.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) leaderboard(c *gin.Context) {
	limit, _, ok := pageParams(c)
	if !ok {
		return
	}
	entries, err := s.svc.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

func (s *Server) listNotifications(c *gin.Context) {
	limit, cursor, ok := pageParams(c)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	page, err := s.svc.ListNotifications(c.Request.Context(), unreadOnly, limit, cursor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) unreadCount(c *gin.Context) {
	count, err := s.svc.UnreadCount(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *Server) markRead(c *gin.Context) {
	if err := s.svc.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markAllRead(c *gin.Context) {
	updated, err := s.svc.MarkAllRead(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (s *Server) search(c *gin.Context) {
	limit, _, ok := pageParams(c)
	if !ok {
		return
	}
	result, err := s.svc.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) popularKeywords(c *gin.Context) {
	limit, _, ok := pageParams(c)
	if !ok {
		return
	}
	keywords, err := s.svc.PopularKeywords(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": keywords})
}

func (s *Server) listPromotions(c *gin.Context) {
	limit, cursor, ok := pageParams(c)
	if !ok {
		return
	}
	status := models.PromotionStatus(c.Query("status"))
	page, err := s.svc.ListPromotionRequests(c.Request.Context(), status, limit, cursor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) approvePromotion(c *gin.Context) {
	var req noteRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	result, story, err := s.svc.ApprovePromotion(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": result, "story": story})
}

func (s *Server) rejectPromotion(c *gin.Context) {
	var req noteRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	result, err := s.svc.RejectPromotion(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) dashboardStats(c *gin.Context) {
	stats, err := s.svc.DashboardStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
