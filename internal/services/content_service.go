package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
)

var (
	ErrFooterExists = ruleError("footer_exists", "Footer settings already exist. Use update instead.")
	ErrInvalidVideo = ruleError("invalid_video_url", "Please provide a valid YouTube URL")
)

// ContentService manages the site branding, footer and video feed shown on
// the public pages.
type ContentService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewContentService(db *gorm.DB) *ContentService {
	return &ContentService{db: db, log: logger.Component("content")}
}

// SiteSettings returns the settings row, creating it with defaults on first use.
func (s *ContentService) SiteSettings(ctx context.Context) (*models.SiteSettings, error) {
	var settings models.SiteSettings
	err := s.db.WithContext(ctx).Order("id ASC").Attrs(models.DefaultSiteSettings()).FirstOrCreate(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &settings, nil
}

// SiteSettingsUpdate sets images by URL; uploads happen elsewhere.
type SiteSettingsUpdate struct {
	SiteName        *string `json:"site_name" binding:"omitempty,min=1,max=100"`
	SiteDescription *string `json:"site_description" binding:"omitempty,max=500"`
	Logo            *string `json:"logo" binding:"omitempty,url"`
	Favicon         *string `json:"favicon" binding:"omitempty,url"`
	MentorPhoto     *string `json:"mentor_photo" binding:"omitempty,url"`
}

func (s *ContentService) UpdateSiteSettings(ctx context.Context, req *SiteSettingsUpdate) (*models.SiteSettings, error) {
	settings, err := s.SiteSettings(ctx)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.SiteName != nil {
		updates["site_name"] = strings.TrimSpace(*req.SiteName)
	}
	if req.SiteDescription != nil {
		updates["site_description"] = strings.TrimSpace(*req.SiteDescription)
	}
	if req.Logo != nil {
		updates["logo"] = *req.Logo
	}
	if req.Favicon != nil {
		updates["favicon"] = *req.Favicon
	}
	if req.MentorPhoto != nil {
		updates["mentor_photo"] = *req.MentorPhoto
	}
	if len(updates) == 0 {
		return settings, nil
	}
	if err := s.db.WithContext(ctx).Model(settings).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return s.SiteSettings(ctx)
}

var siteImages = map[string]struct{ column, label string }{
	"logo":         {"logo", "logo"},
	"favicon":      {"favicon", "favicon"},
	"mentor-photo": {"mentor_photo", "mentor photo"},
}

// ClearSiteImage removes one of the logo, favicon or mentor-photo images.
func (s *ContentService) ClearSiteImage(ctx context.Context, image string) (*models.SiteSettings, error) {
	target, ok := siteImages[image]
	if !ok {
		return nil, validationError("Unknown image "+image, "image")
	}
	settings, err := s.SiteSettings(ctx)
	if err != nil {
		return nil, err
	}
	current := map[string]string{
		"logo":         settings.Logo,
		"favicon":      settings.Favicon,
		"mentor_photo": settings.MentorPhoto,
	}[target.column]
	if current == "" {
		return nil, ruleError("no_image", "No "+target.label+" to delete")
	}
	if err := s.db.WithContext(ctx).Model(settings).Update(target.column, "").Error; err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", target.label, err)
	}
	s.log.WithField("image", image).Info("site image cleared")
	return s.SiteSettings(ctx)
}

// PublicFooter returns the active footer, or the defaults when none is active.
func (s *ContentService) PublicFooter(ctx context.Context) (*models.FooterSettings, error) {
	var footer models.FooterSettings
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").First(&footer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		footer = models.DefaultFooterSettings()
		return &footer, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load footer: %w", err)
	}
	return &footer, nil
}

// AdminFooter returns the footer row for editing, creating it from the
// defaults if none exists.
func (s *ContentService) AdminFooter(ctx context.Context, adminID uint) (*models.FooterSettings, error) {
	defaults := models.DefaultFooterSettings()
	defaults.UpdatedByID = adminID
	var footer models.FooterSettings
	if err := s.db.WithContext(ctx).Order("id ASC").Attrs(defaults).FirstOrCreate(&footer).Error; err != nil {
		return nil, fmt.Errorf("failed to load footer: %w", err)
	}
	return &footer, nil
}

type FooterRequest struct {
	CompanyName        string                 `json:"company_name" binding:"required,max=100"`
	CompanyDescription string                 `json:"company_description" binding:"required,max=500"`
	Email              string                 `json:"email" binding:"required,email"`
	Phone              string                 `json:"phone" binding:"required,max=20"`
	Address            string                 `json:"address" binding:"required,max=200"`
	SocialMedia        models.SocialLinks     `json:"social_media"`
	Newsletter         models.NewsletterBlock `json:"newsletter"`
	LegalLinks         models.LegalLinks      `json:"legal_links"`
	IsActive           *bool                  `json:"is_active"`
}

func legalLink(raw string) bool {
	if strings.HasPrefix(raw, "/") {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (r *FooterRequest) apply(f *models.FooterSettings, adminID uint) error {
	links := []struct{ field, link string }{
		{"privacy_policy", r.LegalLinks.PrivacyPolicy},
		{"terms_of_service", r.LegalLinks.TermsOfService},
		{"cookie_policy", r.LegalLinks.CookiePolicy},
	}
	var bad []string
	for _, l := range links {
		if !legalLink(strings.TrimSpace(l.link)) {
			bad = append(bad, l.field)
		}
	}
	if len(bad) > 0 {
		return validationError("Legal links must be a URL or a path starting with /", bad...)
	}

	f.CompanyName = strings.TrimSpace(r.CompanyName)
	f.CompanyDescription = strings.TrimSpace(r.CompanyDescription)
	f.Email = strings.ToLower(strings.TrimSpace(r.Email))
	f.Phone = strings.TrimSpace(r.Phone)
	f.Address = strings.TrimSpace(r.Address)
	f.SocialMedia = r.SocialMedia
	f.Newsletter = r.Newsletter
	f.LegalLinks = models.LegalLinks{
		PrivacyPolicy:  strings.TrimSpace(r.LegalLinks.PrivacyPolicy),
		TermsOfService: strings.TrimSpace(r.LegalLinks.TermsOfService),
		CookiePolicy:   strings.TrimSpace(r.LegalLinks.CookiePolicy),
	}
	if r.IsActive != nil {
		f.IsActive = *r.IsActive
	}
	f.UpdatedByID = adminID
	return nil
}

func (s *ContentService) CreateFooter(ctx context.Context, adminID uint, req *FooterRequest) (*models.FooterSettings, error) {
	footer := models.FooterSettings{IsActive: true}
	if err := req.apply(&footer, adminID); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.FooterSettings{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrFooterExists
		}
		return tx.Create(&footer).Error
	})
	if err != nil {
		return nil, wrapUnexpected(err, "failed to create footer settings")
	}
	return &footer, nil
}

func (s *ContentService) UpdateFooter(ctx context.Context, id, adminID uint, req *FooterRequest) (*models.FooterSettings, error) {
	var footer models.FooterSettings
	if err := s.db.WithContext(ctx).First(&footer, id).Error; err != nil {
		return nil, mapNotFound(err, "Footer settings")
	}
	if err := req.apply(&footer, adminID); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(&footer).Error; err != nil {
		return nil, fmt.Errorf("failed to update footer settings: %w", err)
	}
	return &footer, nil
}

func (s *ContentService) DeleteFooter(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.FooterSettings{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete footer settings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Footer settings")
	}
	return nil
}

func (s *ContentService) ToggleFooter(ctx context.Context, id uint) (*models.FooterSettings, error) {
	var footer models.FooterSettings
	if err := s.db.WithContext(ctx).First(&footer, id).Error; err != nil {
		return nil, mapNotFound(err, "Footer settings")
	}
	footer.IsActive = !footer.IsActive
	if err := s.db.WithContext(ctx).Model(&footer).Update("is_active", footer.IsActive).Error; err != nil {
		return nil, fmt.Errorf("failed to toggle footer settings: %w", err)
	}
	return &footer, nil
}

// Video is a feed entry with its derived id and thumbnail.
type Video struct {
	models.YouTubeVideo
	VideoID      string `json:"video_id"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func videoView(v models.YouTubeVideo) Video {
	return Video{YouTubeVideo: v, VideoID: v.VideoID(), ThumbnailURL: v.ThumbnailURL()}
}

// Videos lists newest first; activeOnly hides disabled entries.
func (s *ContentService) Videos(ctx context.Context, activeOnly bool) ([]Video, error) {
	q := s.db.WithContext(ctx).Model(&models.YouTubeVideo{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []models.YouTubeVideo
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	out := make([]Video, 0, len(rows))
	for _, v := range rows {
		out = append(out, videoView(v))
	}
	return out, nil
}

type VideoRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	URL         string `json:"url" binding:"required"`
	Thumbnail   string `json:"thumbnail" binding:"omitempty,url"`
	Description string `json:"description" binding:"max=500"`
	IsActive    *bool  `json:"is_active"`
}

func (s *ContentService) CreateVideo(ctx context.Context, adminID uint, req *VideoRequest) (*Video, error) {
	link := strings.TrimSpace(req.URL)
	if !models.IsYouTubeURL(link) {
		return nil, ErrInvalidVideo
	}
	video := models.YouTubeVideo{
		Title:       strings.TrimSpace(req.Title),
		URL:         link,
		Thumbnail:   strings.TrimSpace(req.Thumbnail),
		Description: strings.TrimSpace(req.Description),
		IsActive:    true,
		AddedByID:   adminID,
	}
	if req.IsActive != nil {
		video.IsActive = *req.IsActive
	}
	if err := s.db.WithContext(ctx).Create(&video).Error; err != nil {
		return nil, fmt.Errorf("failed to create video: %w", err)
	}
	view := videoView(video)
	return &view, nil
}

type VideoUpdate struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=200"`
	URL         *string `json:"url"`
	Thumbnail   *string `json:"thumbnail" binding:"omitempty,url"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	IsActive    *bool   `json:"is_active"`
}

func (s *ContentService) UpdateVideo(ctx context.Context, id uint, req *VideoUpdate) (*Video, error) {
	var video models.YouTubeVideo
	if err := s.db.WithContext(ctx).First(&video, id).Error; err != nil {
		return nil, mapNotFound(err, "Video")
	}
	updates := map[string]interface{}{}
	if req.URL != nil {
		link := strings.TrimSpace(*req.URL)
		if !models.IsYouTubeURL(link) {
			return nil, ErrInvalidVideo
		}
		updates["url"] = link
	}
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Thumbnail != nil {
		updates["thumbnail"] = strings.TrimSpace(*req.Thumbnail)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&video).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update video: %w", err)
		}
		if err := s.db.WithContext(ctx).First(&video, id).Error; err != nil {
			return nil, fmt.Errorf("failed to reload video: %w", err)
		}
	}
	view := videoView(video)
	return &view, nil
}

func (s *ContentService) DeleteVideo(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.YouTubeVideo{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete video: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Video")
	}
	return nil
}

func (s *ContentService) ToggleVideo(ctx context.Context, id uint) (*Video, error) {
	var video models.YouTubeVideo
	if err := s.db.WithContext(ctx).First(&video, id).Error; err != nil {
		return nil, mapNotFound(err, "Video")
	}
	video.IsActive = !video.IsActive
	if err := s.db.WithContext(ctx).Model(&video).Update("is_active", video.IsActive).Error; err != nil {
		return nil, fmt.Errorf("failed to toggle video: %w", err)
	}
	view := videoView(video)
	return &view, nil
}
