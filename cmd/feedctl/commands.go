package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/milan604/feedclient/pkg/auth"
	"github.com/milan604/feedclient/pkg/feed"
	feedhttp "github.com/milan604/feedclient/pkg/http"
	"github.com/milan604/feedclient/pkg/version"
)

var errUsage = errors.New("invalid arguments")

func flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

// password returns the flag value, FEED_PASSWORD, or a line read from the input.
func (a *app) password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("FEED_PASSWORD"); env != "" {
		return env, nil
	}
	fmt.Fprint(a.errOut, "Password: ")
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func postID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: post id must be a positive number, got %q", errUsage, arg)
	}
	return id, nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := flagSet("login")
	email := fs.String("email", "", "account email")
	pass := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := a.password(*pass)
	if err != nil {
		return err
	}
	u, err := a.auth.Login(ctx, auth.Credentials{Email: *email, Password: pw})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", u.Name, u.Username)
	return nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := flagSet("register")
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "account email")
	pass := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := a.password(*pass)
	if err != nil {
		return err
	}
	res, err := a.auth.Register(ctx, auth.RegisterInput{Name: *name, Email: *email, Password: pw})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func cmdWhoami(_ context.Context, a *app, _ []string) error {
	u, ok := a.auth.CurrentUser()
	if !ok || !a.auth.IsAuthenticated() {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "%s (%s) <%s>\n", u.Name, u.Username, u.Email)
	if u.CreatedAt != nil {
		fmt.Fprintf(a.out, "Member since %s\n", u.CreatedAt.Format("January 2006"))
	}
	return nil
}

func cmdVerify(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: verify TOKEN", errUsage)
	}
	res, err := a.auth.VerifyEmail(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	return nil
}

func cmdResend(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: resend EMAIL", errUsage)
	}
	msg, err := a.auth.ResendVerification(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func cmdFeed(ctx context.Context, a *app, args []string) error {
	fs := flagSet("feed")
	page := fs.Int("page", 1, "page number")
	ctype := fs.String("type", "", "content type filter")
	author := fs.String("author", "", "author username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := a.feed.ListPosts(ctx, feed.ListPostsParams{
		Page:        *page,
		ContentType: feed.ContentType(*ctype),
		Author:      *author,
	})
	if err != nil {
		return err
	}
	a.printPosts(p, *page)
	return nil
}

func cmdPost(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: post SLUG", errUsage)
	}
	p, err := a.feed.GetPost(ctx, args[0])
	if err != nil {
		return err
	}
	a.printPost(p, true)
	return nil
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	fs := flagSet("create")
	title := fs.String("title", "", "title")
	content := fs.String("content", "", "text")
	ctype := fs.String("type", "", "content type (inferred when empty)")
	tags := fs.StringSlice("tags", nil, "comma separated tags")
	steps := fs.StringArray("step", nil, "workflow step, repeatable")
	file := fs.String("file", "", "image or video to upload")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := feed.CreatePostInput{
		Title:       *title,
		Content:     *content,
		ContentType: feed.ContentType(*ctype),
		Tags:        *tags,
	}
	for _, s := range *steps {
		in.WorkflowSteps = append(in.WorkflowSteps, feed.WorkflowStep{Title: s})
	}
	var opts []feed.UploadOption
	if *file != "" {
		m, err := feed.MediaFromFile(*file)
		if err != nil {
			return err
		}
		in.Media = m
		opts = append(opts, feed.WithProgress(func(p feedhttp.Progress) {
			fmt.Fprintf(a.errOut, "\rUploading %s / %s (%.0f%%)", humanize.IBytes(uint64(p.Sent)),
				humanize.IBytes(uint64(p.Total)), p.Percent())
		}))
	}

	p, err := a.feed.CreatePost(ctx, in, opts...)
	if *file != "" {
		fmt.Fprintln(a.errOut)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created post %d (%s)\n", p.ID, p.Slug)
	return nil
}

func engage(ctx context.Context, a *app, args []string, verb string, fn func(context.Context, int64) (feed.EngagementResult, error)) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s POST_ID", errUsage, verb)
	}
	id, err := postID(args[0])
	if err != nil {
		return err
	}
	res, err := fn(ctx, id)
	if err != nil {
		return err
	}
	a.printEngagement(id, res)
	return nil
}

func cmdLike(ctx context.Context, a *app, args []string) error {
	return engage(ctx, a, args, "like", a.feed.LikePost)
}

func cmdBookmark(ctx context.Context, a *app, args []string) error {
	return engage(ctx, a, args, "bookmark", a.feed.BookmarkPost)
}

func cmdShare(ctx context.Context, a *app, args []string) error {
	return engage(ctx, a, args, "share", a.feed.SharePost)
}

func cmdComments(ctx context.Context, a *app, args []string) error {
	fs := flagSet("comments")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: comments POST_ID", errUsage)
	}
	id, err := postID(fs.Arg(0))
	if err != nil {
		return err
	}
	p, err := a.feed.ListComments(ctx, id, *page)
	if err != nil {
		return err
	}
	a.printComments(feed.ThreadComments(p.Results), 0)
	if p.HasNext() {
		fmt.Fprintf(a.out, "More: feedctl comments %d --page %d\n", id, *page+1)
	}
	return nil
}

func cmdComment(ctx context.Context, a *app, args []string) error {
	fs := flagSet("comment")
	parent := fs.Int64("parent", 0, "reply to this comment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("%w: comment POST_ID TEXT", errUsage)
	}
	id, err := postID(fs.Arg(0))
	if err != nil {
		return err
	}
	in := feed.CreateCommentInput{Text: strings.Join(fs.Args()[1:], " ")}
	if *parent > 0 {
		in.ParentID = parent
	}
	c, err := a.feed.CreateComment(ctx, id, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Comment %d added\n", c.ID)
	return nil
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	fs := flagSet("search")
	tags := fs.StringSlice("tags", nil, "comma separated tags, all must match")
	author := fs.String("author", "", "author username")
	ctype := fs.String("type", "", "content type filter")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := a.feed.SearchPosts(ctx, feed.SearchParams{
		Query:       strings.Join(fs.Args(), " "),
		Tags:        *tags,
		Author:      *author,
		ContentType: feed.ContentType(*ctype),
		Page:        *page,
	})
	if err != nil {
		return err
	}
	a.printPosts(p, *page)
	return nil
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	fs := flagSet("profile")
	var upd feed.ProfileUpdate
	bio := fs.String("bio", "", "new bio")
	location := fs.String("location", "", "new location")
	website := fs.String("website", "", "new website")
	display := fs.String("display-name", "", "new display name")
	avatar := fs.String("avatar", "", "image to use as avatar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	set := func(name string, v *string) *string {
		if fs.Changed(name) {
			return v
		}
		return nil
	}
	upd.Bio = set("bio", bio)
	upd.Location = set("location", location)
	upd.Website = set("website", website)
	upd.DisplayName = set("display-name", display)

	if fs.NFlag() > 0 {
		var m *feed.Media
		if *avatar != "" {
			var err error
			if m, err = feed.MediaFromFile(*avatar); err != nil {
				return err
			}
		}
		prof, err := a.feed.UpdateProfile(ctx, upd, m)
		if err != nil {
			return err
		}
		if err := a.store.SetUser(ctx, prof.SessionUser()); err != nil {
			a.log.WarnFCtx(ctx, "caching updated profile: %v", err)
		}
		a.printProfile(prof)
		return nil
	}

	username := fs.Arg(0)
	if username == "" {
		if u, ok := a.auth.CurrentUser(); ok {
			username = u.Username
		}
	}
	view, err := a.feed.LoadProfile(ctx, username)
	if err != nil {
		return err
	}
	a.printProfileView(view)
	return nil
}

func cmdVersion(_ context.Context, a *app, _ []string) error {
	fmt.Fprintln(a.out, version.UserAgent())
	info := version.Info()
	for _, k := range slices.Sorted(maps.Keys(info)) {
		if info[k] != "" {
			fmt.Fprintf(a.out, "  %s: %s\n", k, info[k])
		}
	}
	return nil
}
