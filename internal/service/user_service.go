package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"docchat-go/internal/model"
	"docchat-go/internal/repository"
	"docchat-go/pkg/database"
	"docchat-go/pkg/hash"
	"docchat-go/pkg/log"
	"docchat-go/pkg/token"
)

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(username, email, password string) (*model.User, error)
	Login(username, password, guestToken string) (accessToken, refreshToken string, err error)
	GetProfile(username string) (*model.User, error)
	Logout(tokenString string) error
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo     repository.UserRepository
	guestService GuestService
	jwtManager   *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, guestService GuestService, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:     userRepo,
		guestService: guestService,
		jwtManager:   jwtManager,
	}
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(username, email, password string) (*model.User, error) {
	// 1. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(username)
	if err == nil {
		return nil, errors.New("用户名已存在")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 3. 创建新用户
	newUser := &model.User{
		Username: username,
		Email:    email,
		Password: hashedPassword,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}

	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
// 登录前存在访客会话时，该会话的数据会被直接清理，不做迁移。
func (s *userService) Login(username, password, guestToken string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", errors.New("invalid credentials")
		}
		return "", "", err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", errors.New("invalid credentials")
	}

	// 3. 清理登录前的访客会话
	if guestToken != "" {
		if err := s.guestService.Teardown(context.Background(), guestToken); err != nil {
			// 清理失败不阻塞登录，后台任务会再次回收
			log.Errorf("登录时清理访客会话失败: %s, %v", guestToken, err)
		}
	}

	// 4. 生成 access token 和 refresh token
	accessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(username string) (*model.User, error) {
	return s.userRepo.FindByUsername(username)
}

// Logout 处理用户登出逻辑，将 token 加入 Redis 黑名单。
func (s *userService) Logout(tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	// 使用 Redis 实现一个简单的 token 黑名单。
	// token 的剩余有效期将作为 Redis key 的过期时间。
	expiration := time.Until(claims.ExpiresAt.Time)
	return database.RDB.Set(context.Background(), "blacklist:"+tokenString, "true", expiration).Err()
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	// 1. 验证 refresh token 是否有效
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	// 2. 检查用户是否存在
	user, err := s.userRepo.FindByUsername(claims.Username)
	if err != nil {
		return "", "", errors.New("user not found")
	}

	// 3. 签发新的 token
	newAccessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return "", "", err
	}

	return newAccessToken, newRefreshToken, nil
}
