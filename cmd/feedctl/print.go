package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/milan604/feedclient/pkg/feed"
	"github.com/milan604/feedclient/pkg/utils"
)

func (a *app) count(key string, n int) string {
	return a.tr.T("", key, map[string]any{"count": n})
}

func (a *app) printPosts(p *feed.Page[feed.Post], page int) {
	if len(p.Results) == 0 {
		fmt.Fprintln(a.out, "No posts")
		return
	}
	for i := range p.Results {
		a.printPost(&p.Results[i], false)
		fmt.Fprintln(a.out)
	}
	fmt.Fprintf(a.out, "Page %d, %d posts in total\n", page, p.Count)
	if p.HasNext() {
		fmt.Fprintf(a.out, "More: --page %d\n", page+1)
	}
}

func (a *app) printPost(p *feed.Post, full bool) {
	title := utils.Coalesce(p.Title, utils.Truncate(p.Content, 60, true), "(untitled)")
	fmt.Fprintf(a.out, "#%d %s [%s]\n", p.ID, title, p.EffectiveContentType())
	fmt.Fprintf(a.out, "  by %s, %s  slug=%s\n", p.Author.DisplayName(),
		utils.RelativeTime(p.CreatedAt, time.Now()), p.Slug)

	switch {
	case p.IsVideo():
		fmt.Fprintf(a.out, "  video: %s\n", p.VideoURL)
	case p.ImageURL != "":
		fmt.Fprintf(a.out, "  image: %s\n", p.ImageURL)
	}
	if full && p.Content != "" && p.Title != "" {
		fmt.Fprintf(a.out, "\n%s\n\n", p.Content)
	}
	if full {
		for i, s := range p.WorkflowSteps {
			fmt.Fprintf(a.out, "  %d. %s", i+1, s.Title)
			if s.Description != "" {
				fmt.Fprintf(a.out, " - %s", s.Description)
			}
			fmt.Fprintln(a.out)
		}
	}
	if len(p.Tags) > 0 {
		fmt.Fprintf(a.out, "  #%s\n", strings.Join(p.Tags, " #"))
	}

	marks := ""
	if p.IsLiked {
		marks += " (liked)"
	}
	if p.IsBookmarked {
		marks += " (bookmarked)"
	}
	fmt.Fprintf(a.out, "  %s, %s, %d shares%s\n",
		a.count("feed:likes.count", p.LikesCount), a.count("feed:comments.count", p.CommentsCount),
		p.SharesCount, marks)
}

func (a *app) printEngagement(id int64, r feed.EngagementResult) {
	var parts []string
	if r.Liked != nil {
		parts = append(parts, map[bool]string{true: "liked", false: "unliked"}[*r.Liked])
	}
	if r.LikesCount != nil {
		parts = append(parts, a.count("feed:likes.count", *r.LikesCount))
	}
	if r.Bookmarked != nil {
		parts = append(parts, map[bool]string{true: "bookmarked", false: "bookmark removed"}[*r.Bookmarked])
	}
	if r.SharesCount != nil {
		parts = append(parts, fmt.Sprintf("%d shares", *r.SharesCount))
	} else if r.Shared != nil && *r.Shared {
		parts = append(parts, "shared")
	}
	if msg := utils.Coalesce(r.Message, r.Detail); msg != "" {
		parts = append(parts, msg)
	}
	fmt.Fprintf(a.out, "Post %d: %s\n", id, utils.DefaultIfEmpty(strings.Join(parts, ", "), "done"))
}

func (a *app) printComments(thread []*feed.Comment, depth int) {
	if depth == 0 && len(thread) == 0 {
		fmt.Fprintln(a.out, "No comments")
		return
	}
	indent := strings.Repeat("  ", depth)
	for _, c := range thread {
		fmt.Fprintf(a.out, "%s[%d] %s: %s (%s)\n", indent, c.ID, c.Author.DisplayName(), c.Text,
			utils.RelativeTime(c.CreatedAt, time.Now()))
		a.printComments(c.Replies, depth+1)
	}
}

func (a *app) printProfile(p *feed.Profile) {
	fmt.Fprintf(a.out, "%s (@%s)\n", p.Name(), p.Username)
	if p.Email != "" {
		fmt.Fprintf(a.out, "  email: %s\n", p.Email)
	}
	for _, f := range [][2]string{{"bio", p.Bio}, {"location", p.Location}, {"website", p.Website}, {"avatar", p.AvatarURL}} {
		if f[1] != "" {
			fmt.Fprintf(a.out, "  %s: %s\n", f[0], f[1])
		}
	}
}

func (a *app) printProfileView(v *feed.ProfileView) {
	fmt.Fprintf(a.out, "@%s\n", v.Username)
	if v.Stats != nil {
		fmt.Fprintf(a.out, "  %d posts, %s received\n", v.Stats.PostsCount,
			a.count("feed:likes.count", v.Stats.LikesReceived))
	}
	if v.Posts != nil {
		fmt.Fprintln(a.out)
		a.printPosts(v.Posts, 1)
	}
}
