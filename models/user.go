package models

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID         int       `gorm:"primaryKey" json:"id"`
	BusinessId string    `gorm:"size:191;index" json:"businessId"`
	Username   string    `gorm:"size:191;unique;not null" json:"username" validate:"required"`
	Name       string    `gorm:"size:255" json:"name"`
	Email      *string   `gorm:"size:255;unique" json:"email"`
	Phone      string    `gorm:"size:64" json:"phone"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	Role       UserRole  `gorm:"type:enum('Admin','Owner','Staff');default:'Staff'" json:"role"`
	IsActive   *bool     `gorm:"default:true" json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func NewUser() *User {
	return &User{}
}

type LoginInfo struct {
	Token        string `json:"token"`
	AccessToken  string `json:"accessToken"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	BusinessId   string `json:"businessId"`
	BusinessName string `json:"businessName"`
	Timezone     string `json:"timezone"`
}

func (user *User) validate() error {
	validate := validator.New()
	if err := validate.Struct(user); err != nil {
		return err
	}
	if user.Email != nil && !utils.IsValidEmail(*user.Email) {
		return fmt.Errorf("invalid email: %s", *user.Email)
	}
	return nil
}

// PrepareGive clears fields that must never leave the server.
func (user *User) PrepareGive() {
	user.Password = ""
}

func tokenLifespan() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func getUserByUsername(username string) (*User, error) {
	user := NewUser()
	redisKey := "User:" + username
	found, err := config.GetRedisObject(redisKey, user)
	if err != nil {
		config.LogError(config.GetLogger(), "models", "getUserByUsername", "redis lookup", username, err)
	}
	if found {
		return user, nil
	}

	db := config.GetDB()
	if err := db.Where("username = ?", username).First(user).Error; err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(redisKey, user, time.Hour); err != nil {
		config.LogError(config.GetLogger(), "models", "getUserByUsername", "redis store", username, err)
	}
	return user, nil
}

// Login verifies the credentials and issues a session token. The token is a
// redis value key "Token:{token}" holding the username, expiring after
// TOKEN_HOUR_LIFESPAN. Active tokens per user are tracked in the
// "UserTokens:{username}" set so Logout can revoke them all.
func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	user, err := getUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("invalid username or password")
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, fmt.Errorf("user is inactive")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, fmt.Errorf("invalid username or password")
	}

	token := uuid.New().String()
	if err := config.SetRedisValue("Token:"+token, user.Username, tokenLifespan()); err != nil {
		return nil, err
	}
	if err := config.AddRedisSet("UserTokens:"+user.Username, token); err != nil {
		config.LogError(config.GetLogger(), "models", "Login", "token set", user.Username, err)
	}

	accessToken, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}

	info := &LoginInfo{
		Token:       token,
		AccessToken: accessToken,
		Name:        user.Name,
		Role:        string(user.Role),
		BusinessId:  user.BusinessId,
	}
	if user.BusinessId != "" {
		business, err := GetBusinessById(ctx, user.BusinessId)
		if err == nil {
			info.BusinessName = business.Name
			info.Timezone = business.Timezone
		}
	}
	return info, nil
}

// Logout revokes every active token of the user.
func Logout(ctx context.Context, username string) error {
	setKey := "UserTokens:" + username
	tokens, err := config.GetRedisSetMembers(setKey)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		if err := config.RemoveRedisKey("Token:" + token); err != nil {
			config.LogError(config.GetLogger(), "models", "Logout", "remove token", username, err)
		}
		if err := config.RemoveRedisSetMember(setKey, token); err != nil {
			config.LogError(config.GetLogger(), "models", "Logout", "remove set member", username, err)
		}
	}
	return config.RemoveRedisKey("User:" + username)
}

func CreateUser(ctx context.Context, user *User) (*User, error) {
	user.Username = html.EscapeString(utils.NormalizeWhitespace(user.Username))
	if user.Email != nil {
		user.Email = utils.NilIfEmpty(utils.NormalizeEmail(*user.Email))
	}
	if err := user.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var count int64
	query := db.Model(&User{}).Where("username = ?", user.Username)
	if user.Email != nil {
		query = query.Or("email = ?", *user.Email)
	}
	if err := query.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("username or email already taken: %s", user.Username)
	}

	hashed, err := utils.HashPassword(user.Password)
	if err != nil {
		return nil, err
	}
	user.Password = hashed

	if err := db.Create(user).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("username or email already taken: %s", user.Username)
		}
		return nil, err
	}
	return user, nil
}

// CreateDefaultOwner seeds the Owner account when a business is created. The
// initial password is random; the owner resets it through the usual flow.
func CreateDefaultOwner(tx *gorm.DB, ctx context.Context, businessId string, email string, name string) (*User, error) {
	username := utils.NormalizeHandle(name)
	if username == "" {
		username = utils.NormalizeHandle(email)
	}
	if username == "" {
		username = "owner-" + businessId[:8]
	}

	hashed, err := utils.HashPassword(uuid.New().String())
	if err != nil {
		return nil, err
	}
	user := &User{
		BusinessId: businessId,
		Username:   username,
		Name:       name,
		Email:      utils.NilIfEmpty(utils.NormalizeEmail(email)),
		Password:   hashed,
		Role:       UserRoleOwner,
		IsActive:   utils.NewTrue(),
	}
	if err := tx.Create(user).Error; err != nil {
		if isDuplicateKeyError(err) {
			// Handle collision across businesses; suffix keeps it unique.
			user.Username = username + "-" + businessId[:8]
			if err := tx.Create(user).Error; err != nil {
				return nil, err
			}
			return user, nil
		}
		return nil, err
	}
	return user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	db := config.GetDB()
	user := NewUser()
	if err := db.First(user, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	user.PrepareGive()
	return user, nil
}

func GetUsers(ctx context.Context) ([]*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	users, err := utils.FetchAllModels[User](ctx, businessId)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		user.PrepareGive()
	}
	return users, nil
}

// ResolveBusinessIdByUsername maps a session username to the business it
// belongs to, for request scoping in middleware.
func ResolveBusinessIdByUsername(ctx context.Context, username string) (string, error) {
	user, err := getUserByUsername(username)
	if err != nil {
		return "", err
	}
	return user.BusinessId, nil
}
