package service

import (
	"context"
	"fmt"

	"github.com/plainhr/plain/internal/auth"
	"github.com/plainhr/plain/internal/batch"
	"github.com/plainhr/plain/internal/level"
	"github.com/plainhr/plain/internal/models"
)

// Author - публичная карточка автора рядом с постом или комментарием.
type Author struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatarUrl"`
	Level      int    `json:"level"`
	LevelTitle string `json:"levelTitle"`
}

type StoryView struct {
	*models.Story
	Author   *Author `json:"author,omitempty"`
	Liked    bool    `json:"liked"`
	Scrapped bool    `json:"scrapped"`
}

type LoungeView struct {
	*models.LoungePost
	Author   *Author `json:"author,omitempty"`
	Liked    bool    `json:"liked"`
	Scrapped bool    `json:"scrapped"`
}

type CommentView struct {
	*models.Comment
	Author *Author `json:"author,omitempty"`
}

// authors загружает карточки авторов пакетом. Внутри HTTP-запроса
// используются загрузчики из контекста, иначе хранилище напрямую.
func (s *Service) authors(ctx context.Context, ids []string) (map[string]*Author, error) {
	ids = uniq(ids)
	if len(ids) == 0 {
		return map[string]*Author{}, nil
	}

	var (
		users  map[string]*models.User
		levels map[string]*models.UserLevel
		err    error
	)
	if loaders, ok := batch.FromContext(ctx); ok {
		if users, err = batch.LoadAll(ctx, loaders.Users, ids); err != nil {
			return nil, err
		}
		if levels, err = batch.LoadAll(ctx, loaders.Levels, ids); err != nil {
			return nil, err
		}
	} else {
		list, err := s.store.GetUsersByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load authors: %w", err)
		}
		users = make(map[string]*models.User, len(list))
		for _, u := range list {
			users[u.ID] = u
		}
		lvls, err := s.store.GetUserLevelsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load author levels: %w", err)
		}
		levels = make(map[string]*models.UserLevel, len(lvls))
		for _, l := range lvls {
			levels[l.UserID] = l
		}
	}

	result := make(map[string]*Author, len(users))
	for id, u := range users {
		lvl := 1
		if l, ok := levels[id]; ok && l.Level > 0 {
			lvl = l.Level
		}
		result[id] = &Author{
			ID:         u.ID,
			Name:       u.Name,
			AvatarURL:  u.AvatarURL,
			Level:      lvl,
			LevelTitle: level.Title(lvl),
		}
	}
	return result, nil
}

func (s *Service) storyViews(ctx context.Context, stories []*models.Story) ([]*StoryView, error) {
	ids := make([]string, len(stories))
	for i, st := range stories {
		ids[i] = st.AuthorID
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]*StoryView, len(stories))
	for i, st := range stories {
		views[i] = &StoryView{Story: st, Author: authors[st.AuthorID]}
	}
	return views, nil
}

func (s *Service) loungeViews(ctx context.Context, posts []*models.LoungePost) ([]*LoungeView, error) {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.AuthorID
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]*LoungeView, len(posts))
	for i, p := range posts {
		views[i] = &LoungeView{LoungePost: p, Author: authors[p.AuthorID]}
	}
	return views, nil
}

// reactionFlags возвращает лайк и закладку зрителя; анонимный зритель получает false.
func (s *Service) reactionFlags(ctx context.Context, postType models.PostType, postID string) (liked, scrapped bool, err error) {
	actor, ok := auth.ActorFrom(ctx)
	if !ok {
		return false, false, nil
	}
	if liked, err = s.store.HasLike(ctx, actor.UserID, postType, postID); err != nil {
		return false, false, fmt.Errorf("failed to check like: %w", err)
	}
	if scrapped, err = s.store.HasScrap(ctx, actor.UserID, postType, postID); err != nil {
		return false, false, fmt.Errorf("failed to check scrap: %w", err)
	}
	return liked, scrapped, nil
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func mapPage[T, V any](page *models.Page[T], items []V) *models.Page[V] {
	return &models.Page[V]{
		Items:      items,
		TotalCount: page.TotalCount,
		NextCursor: page.NextCursor,
	}
}
