// Package registry owns subdomain reservations under the parent domain. Its
// Service is both the availability oracle used by the allocator and the sink
// that performs the actual reservation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/welldanyogia/colancer-registry/internal/naming"
	"github.com/welldanyogia/colancer-registry/internal/repository"
)

// Service errors
var (
	ErrNameTaken      = errors.New("subdomain already taken")
	ErrInvalidLabel   = errors.New("invalid subdomain label")
	ErrReservedLabel  = errors.New("subdomain label is reserved")
	ErrNotFound       = errors.New("subdomain not found")
	ErrNotOwner       = errors.New("wallet does not own subdomain")
	ErrInvalidRecords = errors.New("invalid subdomain records")
	ErrNullifierUsed  = errors.New("proof already bound to a subdomain")
)

// MaxDescriptionLength bounds the description record after sanitization
const MaxDescriptionLength = 500

// reservedLabels can never be allocated
var reservedLabels = map[string]bool{
	"admin":    true,
	"test":     true,
	"demo":     true,
	"www":      true,
	"api":      true,
	"root":     true,
	"colancer": true,
}

// Repository is the persistence the registry needs
type Repository interface {
	ExistsByLabel(ctx context.Context, label string) (bool, error)
	Create(ctx context.Context, s *repository.Subdomain) error
	GetByLabel(ctx context.Context, label string) (*repository.Subdomain, error)
	GetByOwner(ctx context.Context, owner string) ([]repository.Subdomain, error)
	UpdateRecords(ctx context.Context, label string, description, url *string) (*repository.Subdomain, error)
	UpdateAvatar(ctx context.Context, label, avatarKey string) error
}

// AvatarStore stores avatar images
type AvatarStore interface {
	Put(ctx context.Context, label, contentType string, body []byte) (string, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// Reservation is a request to bind a label to a wallet
type Reservation struct {
	Label         string
	OwnerAddress  string
	NullifierHash string
	Records       Records
}

// Records are the user-editable text records of a subdomain
type Records struct {
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	URL         *string `json:"url,omitempty" validate:"omitempty,max=2048"`
}

// SubdomainInfo is the public view of a reserved subdomain
type SubdomainInfo struct {
	Label       string    `json:"label"`
	FullName    string    `json:"full_name"`
	Node        string    `json:"node"`
	Owner       string    `json:"owner"`
	Description *string   `json:"description,omitempty"`
	URL         *string   `json:"url,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service handles subdomain availability, reservation and records
type Service struct {
	repo         Repository
	avatars      AvatarStore
	parentDomain string
	policy       *bluemonday.Policy
	logger       *slog.Logger
}

// ServiceConfig contains configuration for the registry Service
type ServiceConfig struct {
	Repository   Repository
	AvatarStore  AvatarStore // optional; avatar endpoints fail without it
	ParentDomain string
	Logger       *slog.Logger
}

// NewService creates a new registry Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.ParentDomain == "" {
		cfg.ParentDomain = "colancer.eth"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		repo:         cfg.Repository,
		avatars:      cfg.AvatarStore,
		parentDomain: strings.ToLower(cfg.ParentDomain),
		policy:       bluemonday.StrictPolicy(),
		logger:       cfg.Logger,
	}
}

// ParentDomain returns the domain labels are registered under
func (s *Service) ParentDomain() string {
	return s.parentDomain
}

// IsReserved reports whether label is on the reserved list
func IsReserved(label string) bool {
	return reservedLabels[strings.ToLower(label)]
}

// IsAvailable implements naming.Oracle. Malformed and reserved labels are
// reported as unavailable; repository failures are returned as errors.
func (s *Service) IsAvailable(ctx context.Context, label string) (bool, error) {
	if !naming.IsValidFormat(label) || IsReserved(label) {
		return false, nil
	}

	exists, err := s.repo.ExistsByLabel(ctx, label)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Reserve binds the label to the owner. The database unique index is the
// final arbiter, so a label taken since the availability check yields ErrNameTaken.
func (s *Service) Reserve(ctx context.Context, r Reservation) (*SubdomainInfo, error) {
	label := strings.ToLower(r.Label)
	if !naming.IsValidFormat(label) {
		return nil, ErrInvalidLabel
	}
	if IsReserved(label) {
		return nil, ErrReservedLabel
	}

	records, err := s.sanitizeRecords(r.Records)
	if err != nil {
		return nil, err
	}

	fullName := naming.FullName(label, s.parentDomain)
	sub := &repository.Subdomain{
		Label:         label,
		FullName:      fullName,
		Node:          naming.Namehash(fullName).Hex(),
		OwnerAddress:  r.OwnerAddress,
		NullifierHash: r.NullifierHash,
		Description:   records.Description,
		URL:           records.URL,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		switch {
		case errors.Is(err, repository.ErrSubdomainExists):
			return nil, ErrNameTaken
		case errors.Is(err, repository.ErrNullifierExists):
			return nil, ErrNullifierUsed
		}
		return nil, fmt.Errorf("failed to reserve subdomain: %w", err)
	}

	s.logger.Info("Subdomain reserved",
		"label", sub.Label,
		"full_name", sub.FullName,
		"owner", sub.OwnerAddress,
	)

	return s.toInfo(ctx, sub), nil
}

// Get returns the public view of a reserved subdomain
func (s *Service) Get(ctx context.Context, label string) (*SubdomainInfo, error) {
	sub, err := s.repo.GetByLabel(ctx, label)
	if err != nil {
		if errors.Is(err, repository.ErrSubdomainNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subdomain: %w", err)
	}
	return s.toInfo(ctx, sub), nil
}

// ListByOwner returns every subdomain held by a wallet
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]SubdomainInfo, error) {
	subs, err := s.repo.GetByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list subdomains: %w", err)
	}

	result := make([]SubdomainInfo, 0, len(subs))
	for i := range subs {
		result = append(result, *s.toInfo(ctx, &subs[i]))
	}
	return result, nil
}

// UpdateRecords replaces the text records after an ownership check
func (s *Service) UpdateRecords(ctx context.Context, owner, label string, records Records) (*SubdomainInfo, error) {
	if _, err := s.authorize(ctx, owner, label); err != nil {
		return nil, err
	}

	clean, err := s.sanitizeRecords(records)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.UpdateRecords(ctx, label, clean.Description, clean.URL)
	if err != nil {
		if errors.Is(err, repository.ErrSubdomainNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update records: %w", err)
	}
	return s.toInfo(ctx, sub), nil
}

// SetAvatar uploads a new avatar for the subdomain and drops the old one
func (s *Service) SetAvatar(ctx context.Context, owner, label, contentType string, body []byte) (*SubdomainInfo, error) {
	if s.avatars == nil {
		return nil, errors.New("avatar storage not configured")
	}

	sub, err := s.authorize(ctx, owner, label)
	if err != nil {
		return nil, err
	}

	key, err := s.avatars.Put(ctx, sub.Label, contentType, body)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAvatar(ctx, sub.Label, key); err != nil {
		if delErr := s.avatars.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned avatar", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to record avatar: %w", err)
	}

	if sub.AvatarKey != nil && *sub.AvatarKey != key {
		if err := s.avatars.Delete(ctx, *sub.AvatarKey); err != nil {
			s.logger.Warn("Failed to remove previous avatar", "key", *sub.AvatarKey, "error", err)
		}
	}
	sub.AvatarKey = &key

	return s.toInfo(ctx, sub), nil
}

// authorize loads the subdomain and checks the caller owns it
func (s *Service) authorize(ctx context.Context, owner, label string) (*repository.Subdomain, error) {
	sub, err := s.repo.GetByLabel(ctx, label)
	if err != nil {
		if errors.Is(err, repository.ErrSubdomainNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subdomain: %w", err)
	}
	if !strings.EqualFold(sub.OwnerAddress, owner) {
		return nil, ErrNotOwner
	}
	return sub, nil
}

// sanitizeRecords strips markup from text records and validates the URL scheme
func (s *Service) sanitizeRecords(r Records) (Records, error) {
	var out Records

	if r.Description != nil {
		desc := strings.TrimSpace(s.policy.Sanitize(*r.Description))
		if len(desc) > MaxDescriptionLength {
			return Records{}, fmt.Errorf("%w: description too long", ErrInvalidRecords)
		}
		if desc != "" {
			out.Description = &desc
		}
	}

	if r.URL != nil && strings.TrimSpace(*r.URL) != "" {
		raw := strings.TrimSpace(*r.URL)
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Records{}, fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidRecords)
		}
		clean := u.String()
		out.URL = &clean
	}

	return out, nil
}

func (s *Service) toInfo(ctx context.Context, sub *repository.Subdomain) *SubdomainInfo {
	info := &SubdomainInfo{
		Label:       sub.Label,
		FullName:    sub.FullName,
		Node:        sub.Node,
		Owner:       sub.OwnerAddress,
		Description: sub.Description,
		URL:         sub.URL,
		CreatedAt:   sub.CreatedAt,
	}

	if sub.AvatarKey != nil && s.avatars != nil {
		avatarURL, err := s.avatars.PresignedURL(ctx, *sub.AvatarKey)
		if err != nil {
			s.logger.Warn("Failed to presign avatar URL", "label", sub.Label, "error", err)
		} else {
			info.AvatarURL = avatarURL
		}
	}
	return info
}
