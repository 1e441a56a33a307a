package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/ad/script-agent-bot/internal/config"
	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/storage"

	"github.com/go-telegram/bot"
)

// RoleService manages role rewards. Roles live in the record store as
// a comma-joined list; grants are announced in the public chat so the
// community sees them.
type RoleService struct {
	bot     ChatAPI
	config  *config.Config
	records *storage.RecordStore
	logger  domain.Logger
}

// NewRoleService creates the role service.
func NewRoleService(b ChatAPI, cfg *config.Config, records *storage.RecordStore, log domain.Logger) *RoleService {
	return &RoleService{
		bot:     b,
		config:  cfg,
		records: records,
		logger:  log,
	}
}

// GrantVerified announces a successful verification. The record-store
// side was already written by the reconciler; a failed announcement is
// the grant failure surfaced to the user.
func (s *RoleService) GrantVerified(ctx context.Context, userID int64, username string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: s.config.PublicReviewChatID,
		Text:   username + " is now " + domain.RoleVerified + ".",
	})
	if err != nil {
		return err
	}
	s.logger.Info("verified role granted", "user_id", userID, "username", username)
	return nil
}

// GrantUploader adds the Uploader role to the user's reward list.
func (s *RoleService) GrantUploader(ctx context.Context, userID int64) error {
	return s.setRole(userID, domain.RoleUploader, true)
}

// RevokeUploader removes the Uploader role from the user's reward list.
func (s *RoleService) RevokeUploader(ctx context.Context, userID int64) error {
	return s.setRole(userID, domain.RoleUploader, false)
}

func (s *RoleService) setRole(userID int64, role string, grant bool) error {
	id := strconv.FormatInt(userID, 10)
	return s.records.Mutate(func(doc *storage.Document) error {
		rec := doc.User(id)
		roles := splitRoles(rec.RoleReward)

		idx := -1
		for i, r := range roles {
			if r == role {
				idx = i
				break
			}
		}
		if grant && idx < 0 {
			roles = append(roles, role)
		}
		if !grant && idx >= 0 {
			roles = append(roles[:idx], roles[idx+1:]...)
		}
		rec.RoleReward = strings.Join(roles, ", ")
		return nil
	})
}

func splitRoles(reward string) []string {
	if reward == "" {
		return nil
	}
	parts := strings.Split(reward, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
