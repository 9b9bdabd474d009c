package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// PostType различает статьи (Story) и посты лаунжа.
type PostType string

const (
	PostTypeStory  PostType = "story"
	PostTypeLounge PostType = "lounge"
)

func (t PostType) Valid() bool {
	return t == PostTypeStory || t == PostTypeLounge
}

type LoungeType string

const (
	LoungeQuestion   LoungeType = "question"
	LoungeExperience LoungeType = "experience"
	LoungeInfo       LoungeType = "info"
	LoungeFree       LoungeType = "free"
	LoungeNews       LoungeType = "news"
	LoungeConcern    LoungeType = "concern"
)

var loungeTypes = map[LoungeType]bool{
	LoungeQuestion:   true,
	LoungeExperience: true,
	LoungeInfo:       true,
	LoungeFree:       true,
	LoungeNews:       true,
	LoungeConcern:    true,
}

func (t LoungeType) Valid() bool {
	return loungeTypes[t]
}

type PromotionStatus string

const (
	PromotionNone     PromotionStatus = "none"
	PromotionPending  PromotionStatus = "pending"
	PromotionApproved PromotionStatus = "approved"
	PromotionRejected PromotionStatus = "rejected"
)

type NotificationType string

const (
	NotificationLike      NotificationType = "like"
	NotificationComment   NotificationType = "comment"
	NotificationReply     NotificationType = "reply"
	NotificationPromotion NotificationType = "promotion"
	NotificationLevelUp   NotificationType = "level_up"
)

type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	Bio          string    `json:"bio" db:"bio"`
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Story struct {
	ID                string    `json:"id" db:"id"`
	Title             string    `json:"title" db:"title"`
	Summary           string    `json:"summary" db:"summary"`
	Content           string    `json:"content" db:"content"`
	ThumbnailURL      string    `json:"thumbnailUrl" db:"thumbnail_url"`
	AuthorID          string    `json:"authorId" db:"author_id"`
	Tags              []string  `json:"tags" db:"tags"`
	ReadTime          int       `json:"readTime" db:"read_time"`
	IsVerified        bool      `json:"isVerified" db:"is_verified"`
	VerificationBadge string    `json:"verificationBadge,omitempty" db:"verification_badge"`
	SourceLoungeID    *string   `json:"sourceLoungeId,omitempty" db:"source_lounge_id"`
	ViewCount         int       `json:"viewCount" db:"view_count"`
	LikeCount         int       `json:"likeCount" db:"like_count"`
	ScrapCount        int       `json:"scrapCount" db:"scrap_count"`
	CommentCount      int       `json:"commentCount" db:"comment_count"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

type LoungePost struct {
	ID              string          `json:"id" db:"id"`
	Title           string          `json:"title" db:"title"`
	Content         string          `json:"content" db:"content"`
	Type            LoungeType      `json:"type" db:"type"`
	AuthorID        string          `json:"authorId" db:"author_id"`
	Tags            []string        `json:"tags" db:"tags"`
	IsExcellent     bool            `json:"isExcellent" db:"is_excellent"`
	PromotionStatus PromotionStatus `json:"promotionStatus" db:"promotion_status"`
	PromotionNote   string          `json:"promotionNote,omitempty" db:"promotion_note"`
	ViewCount       int             `json:"viewCount" db:"view_count"`
	LikeCount       int             `json:"likeCount" db:"like_count"`
	ScrapCount      int             `json:"scrapCount" db:"scrap_count"`
	CommentCount    int             `json:"commentCount" db:"comment_count"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

type Comment struct {
	ID        string    `json:"id" db:"id"`
	PostType  PostType  `json:"postType" db:"post_type"`
	PostID    string    `json:"postId" db:"post_id"`
	ParentID  *string   `json:"parentId" db:"parent_id"`
	AuthorID  string    `json:"authorId" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	IsDeleted bool      `json:"isDeleted" db:"is_deleted"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type Like struct {
	UserID    string    `json:"userId" db:"user_id"`
	PostType  PostType  `json:"postType" db:"post_type"`
	PostID    string    `json:"postId" db:"post_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Scrap struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	PostType  PostType  `json:"postType" db:"post_type"`
	PostID    string    `json:"postId" db:"post_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type UserLevel struct {
	UserID       string    `json:"userId" db:"user_id"`
	Level        int       `json:"level" db:"level"`
	Experience   int       `json:"experience" db:"experience"`
	Achievements []string  `json:"achievements" db:"achievements"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// ActivityCounts - исходные данные для расчёта опыта пользователя.
type ActivityCounts struct {
	Stories        int `json:"stories"`
	LoungePosts    int `json:"loungePosts"`
	Comments       int `json:"comments"`
	LikesReceived  int `json:"likesReceived"`
	ScrapsReceived int `json:"scrapsReceived"`
	ExcellentPosts int `json:"excellentPosts"`
}

type Notification struct {
	ID          string           `json:"id" db:"id"`
	RecipientID string           `json:"recipientId" db:"recipient_id"`
	ActorID     *string          `json:"actorId,omitempty" db:"actor_id"`
	Type        NotificationType `json:"type" db:"type"`
	Message     string           `json:"message" db:"message"`
	PostType    *PostType        `json:"postType,omitempty" db:"post_type"`
	PostID      *string          `json:"postId,omitempty" db:"post_id"`
	IsRead      bool             `json:"isRead" db:"is_read"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`
}

type PromotionRequest struct {
	ID           string          `json:"id" db:"id"`
	LoungePostID string          `json:"loungePostId" db:"lounge_post_id"`
	RequesterID  *string         `json:"requesterId,omitempty" db:"requester_id"`
	Status       PromotionStatus `json:"status" db:"status"`
	Reason       string          `json:"reason" db:"reason"`
	ReviewerID   *string         `json:"reviewerId,omitempty" db:"reviewer_id"`
	ReviewNote   string          `json:"reviewNote,omitempty" db:"review_note"`
	StoryID      *string         `json:"storyId,omitempty" db:"story_id"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	ReviewedAt   *time.Time      `json:"reviewedAt,omitempty" db:"reviewed_at"`
}

type SearchKeyword struct {
	Keyword        string    `json:"keyword" db:"keyword"`
	Count          int       `json:"count" db:"count"`
	LastSearchedAt time.Time `json:"lastSearchedAt" db:"last_searched_at"`
}

type StoryFilter struct {
	Query        string `json:"query,omitempty"`
	Tag          string `json:"tag,omitempty"`
	AuthorID     string `json:"authorId,omitempty"`
	VerifiedOnly bool   `json:"verifiedOnly,omitempty"`
}

type LoungeFilter struct {
	Query         string     `json:"query,omitempty"`
	Type          LoungeType `json:"type,omitempty"`
	AuthorID      string     `json:"authorId,omitempty"`
	ExcellentOnly bool       `json:"excellentOnly,omitempty"`
}

// Page - страница результатов с курсорной пагинацией.
type Page[T any] struct {
	Items      []T     `json:"items"`
	TotalCount int     `json:"totalCount"`
	NextCursor *string `json:"nextCursor"`
}

type PaginatedStories = Page[*Story]

type PaginatedLoungePosts = Page[*LoungePost]

type PaginatedComments = Page[*Comment]

type DashboardStats struct {
	Users             int `json:"users"`
	Stories           int `json:"stories"`
	LoungePosts       int `json:"loungePosts"`
	Comments          int `json:"comments"`
	Likes             int `json:"likes"`
	Scraps            int `json:"scraps"`
	PendingPromotions int `json:"pendingPromotions"`
}
