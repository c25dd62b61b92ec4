package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"trading-challenges/internal/models"
)

func TestSiteSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewContentService(env.db)

	settings, err := svc.SiteSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, "CTG Trading", settings.SiteName)
	require.Empty(t, settings.Logo)

	_, err = svc.ClearSiteImage(ctx, "logo")
	require.EqualError(t, err, "No logo to delete")

	name := "Prop Arena"
	logo := "https://cdn.example.com/logo.png"
	updated, err := svc.UpdateSiteSettings(ctx, &SiteSettingsUpdate{SiteName: &name, Logo: &logo})
	require.NoError(t, err)
	require.Equal(t, settings.ID, updated.ID)
	require.Equal(t, "Prop Arena", updated.SiteName)
	require.Equal(t, logo, updated.Logo)
	require.Equal(t, "Professional Trading Challenge Platform", updated.SiteDescription)

	cleared, err := svc.ClearSiteImage(ctx, "logo")
	require.NoError(t, err)
	require.Empty(t, cleared.Logo)
	require.Equal(t, "Prop Arena", cleared.SiteName)

	_, err = svc.ClearSiteImage(ctx, "banner")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	var rows int64
	require.NoError(t, env.db.Model(&models.SiteSettings{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func footerRequest() *FooterRequest {
	return &FooterRequest{
		CompanyName:        "Prop Arena",
		CompanyDescription: "Trading competitions",
		Email:              "Hello@PropArena.io",
		Phone:              "+44 20 0000 0000",
		Address:            "London",
		Newsletter:         models.NewsletterBlock{Title: "News", Description: "Weekly digest", IsActive: true},
		LegalLinks: models.LegalLinks{
			PrivacyPolicy:  "/privacy",
			TermsOfService: "https://proparena.io/terms",
			CookiePolicy:   "/cookies",
		},
	}
}

func TestFooterSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewContentService(env.db)
	admin := createAdmin(t, env.db, "root")

	public, err := svc.PublicFooter(ctx)
	require.NoError(t, err)
	require.Zero(t, public.ID)
	require.Equal(t, "CTG", public.CompanyName)

	created, err := svc.CreateFooter(ctx, admin.ID, footerRequest())
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.Equal(t, "hello@proparena.io", created.Email)

	_, err = svc.CreateFooter(ctx, admin.ID, footerRequest())
	require.ErrorIs(t, err, ErrFooterExists)

	public, err = svc.PublicFooter(ctx)
	require.NoError(t, err)
	require.Equal(t, created.ID, public.ID)

	bad := footerRequest()
	bad.LegalLinks.PrivacyPolicy = "privacy"
	bad.LegalLinks.CookiePolicy = "ftp://proparena.io/cookies"
	_, err = svc.UpdateFooter(ctx, created.ID, admin.ID, bad)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, []string{"privacy_policy", "cookie_policy"}, ve.Fields)

	req := footerRequest()
	req.Address = "Dublin"
	updated, err := svc.UpdateFooter(ctx, created.ID, admin.ID, req)
	require.NoError(t, err)
	require.Equal(t, "Dublin", updated.Address)

	toggled, err := svc.ToggleFooter(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, toggled.IsActive)

	public, err = svc.PublicFooter(ctx)
	require.NoError(t, err)
	require.Zero(t, public.ID)

	adminView, err := svc.AdminFooter(ctx, admin.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, adminView.ID)

	require.NoError(t, svc.DeleteFooter(ctx, created.ID))
	require.ErrorIs(t, svc.DeleteFooter(ctx, created.ID), ErrNotFound)

	seeded, err := svc.AdminFooter(ctx, admin.ID)
	require.NoError(t, err)
	require.NotZero(t, seeded.ID)
	require.Equal(t, "CTG", seeded.CompanyName)
	require.Equal(t, admin.ID, seeded.UpdatedByID)
}

func TestYouTubeVideos(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewContentService(env.db)
	admin := createAdmin(t, env.db, "root")

	_, err := svc.CreateVideo(ctx, admin.ID, &VideoRequest{Title: "Not YouTube", URL: "https://vimeo.com/123"})
	require.ErrorIs(t, err, ErrInvalidVideo)

	watch, err := svc.CreateVideo(ctx, admin.ID, &VideoRequest{Title: "Risk management", URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.True(t, watch.IsActive)
	require.Equal(t, "dQw4w9WgXcQ", watch.VideoID)
	require.Equal(t, "https://img.youtube.com/vi/dQw4w9WgXcQ/maxresdefault.jpg", watch.ThumbnailURL)

	off := false
	short, err := svc.CreateVideo(ctx, admin.ID, &VideoRequest{
		Title:     "Weekly recap",
		URL:       "youtu.be/abcdefghijk",
		Thumbnail: "https://cdn.example.com/recap.jpg",
		IsActive:  &off,
	})
	require.NoError(t, err)
	require.False(t, short.IsActive)
	require.Equal(t, "abcdefghijk", short.VideoID)
	require.Equal(t, "https://cdn.example.com/recap.jpg", short.ThumbnailURL)

	feed, err := svc.Videos(ctx, true)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Equal(t, watch.ID, feed[0].ID)

	all, err := svc.Videos(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	toggled, err := svc.ToggleVideo(ctx, short.ID)
	require.NoError(t, err)
	require.True(t, toggled.IsActive)

	badURL := "https://example.com/clip"
	_, err = svc.UpdateVideo(ctx, watch.ID, &VideoUpdate{URL: &badURL})
	require.ErrorIs(t, err, ErrInvalidVideo)

	embed := "https://www.youtube.com/embed/ZYXWVUTSRQP"
	title := "Risk management, part 2"
	updated, err := svc.UpdateVideo(ctx, watch.ID, &VideoUpdate{URL: &embed, Title: &title})
	require.NoError(t, err)
	require.Equal(t, "ZYXWVUTSRQP", updated.VideoID)
	require.Equal(t, title, updated.Title)

	require.NoError(t, svc.DeleteVideo(ctx, watch.ID))
	_, err = svc.ToggleVideo(ctx, watch.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
