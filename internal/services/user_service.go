// internal/services/user_service.go
package services

import (
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/models"
	"github.com/Rryannta/marketplace-digital/internal/utils"
)

// UserService covers profile reads and edits plus avatar uploads.
type UserService struct {
	db      *gorm.DB
	storage *StorageService
	cfg     *config.Config
}

type UpdateProfileRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
	Bio      *string `json:"bio" validate:"omitempty,max=1000"`
}

// PublicProfile is the seller page shape: no email, no account status.
type PublicProfile struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Bio       string    `json:"bio"`
	AvatarURL string    `json:"avatar_url"`
}

func NewUserService(db *gorm.DB, storage *StorageService, cfg *config.Config) *UserService {
	return &UserService{db: db, storage: storage, cfg: cfg}
}

func (s *UserService) GetProfile(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *UserService) GetPublicProfile(username string) (*PublicProfile, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &PublicProfile{
		ID:        user.ID,
		Username:  user.Username,
		FullName:  user.FullName,
		Bio:       user.Bio,
		AvatarURL: user.AvatarURL,
	}, nil
}

func (s *UserService) UpdateProfile(userID uuid.UUID, req *UpdateProfileRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	user, err := s.GetProfile(userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return user, nil
}

// UploadAvatar stores the avatar in the public bucket and deletes the old
// object after the new key is saved.
func (s *UserService) UploadAvatar(userID uuid.UUID, file multipart.File, header *multipart.FileHeader) (*models.User, error) {
	user, err := s.GetProfile(userID)
	if err != nil {
		return nil, err
	}

	if err := s.storage.ValidateImage(file); err != nil {
		return nil, err
	}

	options := s.storage.GetDefaultUploadOptions("avatars")
	result, err := s.storage.UploadFile(file, header, options)
	if err != nil {
		return nil, err
	}

	oldKey := user.AvatarKey
	updates := map[string]interface{}{
		"avatar_key": result.Key,
		"avatar_url": result.URL,
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to save avatar: %w", err)
	}
	user.AvatarKey = result.Key
	user.AvatarURL = result.URL

	if oldKey != "" && oldKey != result.Key {
		if err := s.storage.DeleteFile(s.cfg.AWS.ImageBucket, oldKey); err != nil {
			logrus.WithError(err).WithField("key", oldKey).Warn("Failed to delete replaced avatar")
		}
	}

	return user, nil
}
