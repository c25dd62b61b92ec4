package models

import (
	"regexp"
	"time"
)

// SiteSettings is the single row of site branding.
type SiteSettings struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SiteName        string    `gorm:"size:100;not null;default:'CTG Trading'" json:"site_name"`
	SiteDescription string    `gorm:"size:500" json:"site_description"`
	Logo            string    `gorm:"size:500" json:"logo"`
	Favicon         string    `gorm:"size:500" json:"favicon"`
	MentorPhoto     string    `gorm:"size:500" json:"mentor_photo"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (SiteSettings) TableName() string {
	return "site_settings"
}

func DefaultSiteSettings() SiteSettings {
	return SiteSettings{
		SiteName:        "CTG Trading",
		SiteDescription: "Professional Trading Challenge Platform",
	}
}

type SocialLinks struct {
	Facebook  string `gorm:"size:300" json:"facebook" binding:"omitempty,http_url"`
	Twitter   string `gorm:"size:300" json:"twitter" binding:"omitempty,http_url"`
	Instagram string `gorm:"size:300" json:"instagram" binding:"omitempty,http_url"`
	LinkedIn  string `gorm:"size:300" json:"linkedin" binding:"omitempty,http_url"`
	YouTube   string `gorm:"size:300" json:"youtube" binding:"omitempty,http_url"`
}

type NewsletterBlock struct {
	Title       string `gorm:"size:100" json:"title" binding:"required,max=100"`
	Description string `gorm:"size:300" json:"description" binding:"required,max=300"`
	IsActive    bool   `json:"is_active"`
}

// LegalLinks hold absolute http(s) URLs or site-relative paths.
type LegalLinks struct {
	PrivacyPolicy  string `gorm:"size:300" json:"privacy_policy" binding:"required"`
	TermsOfService string `gorm:"size:300" json:"terms_of_service" binding:"required"`
	CookiePolicy   string `gorm:"size:300" json:"cookie_policy" binding:"required"`
}

// FooterSettings is the public footer content. At most one row exists.
type FooterSettings struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	CompanyName        string          `gorm:"size:100;not null" json:"company_name"`
	CompanyDescription string          `gorm:"size:500;not null" json:"company_description"`
	Email              string          `gorm:"size:255;not null" json:"email"`
	Phone              string          `gorm:"size:20;not null" json:"phone"`
	Address            string          `gorm:"size:200;not null" json:"address"`
	SocialMedia        SocialLinks     `gorm:"embedded;embeddedPrefix:social_" json:"social_media"`
	Newsletter         NewsletterBlock `gorm:"embedded;embeddedPrefix:newsletter_" json:"newsletter"`
	LegalLinks         LegalLinks      `gorm:"embedded;embeddedPrefix:legal_" json:"legal_links"`
	IsActive           bool            `gorm:"index" json:"is_active"`
	UpdatedByID        uint            `json:"updated_by_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (FooterSettings) TableName() string {
	return "footer_settings"
}

func DefaultFooterSettings() FooterSettings {
	return FooterSettings{
		CompanyName:        "CTG",
		CompanyDescription: "Empowering traders worldwide with cutting-edge competition platforms, signal services, and prop firm solutions. Join thousands of successful traders.",
		Email:              "support@ctgtrading.com",
		Phone:              "+1 (555) 123-4567",
		Address:            "New York, NY 10001",
		Newsletter: NewsletterBlock{
			Title:       "Stay Updated",
			Description: "Get the latest trading insights, competition updates, and exclusive offers delivered to your inbox.",
			IsActive:    true,
		},
		LegalLinks: LegalLinks{
			PrivacyPolicy:  "/privacy",
			TermsOfService: "/terms",
			CookiePolicy:   "/cookies",
		},
		IsActive: true,
	}
}

var (
	youtubeURLPattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com/(watch\?v=|embed/)|youtu\.be/)[\w-]+`)
	youtubeIDPattern  = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)
)

// IsYouTubeURL reports whether raw points at a watch, embed or short link.
func IsYouTubeURL(raw string) bool {
	return youtubeURLPattern.MatchString(raw)
}

type YouTubeVideo struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	URL         string    `gorm:"size:500;not null" json:"url"`
	Thumbnail   string    `gorm:"size:500" json:"thumbnail"`
	Description string    `gorm:"size:500" json:"description"`
	IsActive    bool      `gorm:"index:idx_video_feed,priority:1" json:"is_active"`
	AddedByID   uint      `gorm:"not null" json:"added_by_id"`
	CreatedAt   time.Time `gorm:"index:idx_video_feed,priority:2" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (YouTubeVideo) TableName() string {
	return "youtube_videos"
}

// VideoID is the 11 character id embedded in the URL, or "".
func (v YouTubeVideo) VideoID() string {
	m := youtubeIDPattern.FindStringSubmatch(v.URL)
	if m == nil {
		return ""
	}
	return m[1]
}

// ThumbnailURL prefers the stored thumbnail and falls back to the one
// YouTube serves for the video id.
func (v YouTubeVideo) ThumbnailURL() string {
	if v.Thumbnail != "" {
		return v.Thumbnail
	}
	if id := v.VideoID(); id != "" {
		return "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg"
	}
	return ""
}
