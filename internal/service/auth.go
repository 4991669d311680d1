package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"sunrisetour.staff/internal/jwt"
	"sunrisetour.staff/internal/model"
	"sunrisetour.staff/internal/repository"
	apperrors "sunrisetour.staff/pkg/errors"
	"sunrisetour.staff/pkg/snowflake"
)

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=50"`
	Name     string `json:"name" binding:"required,min=1,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	UserID       int64  `json:"user_id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// AuthService 认证服务
type AuthService struct {
	userRepo   *repository.UserRepository
	tokenRepo  *repository.TokenRepository
	jwtService *jwt.Service
	snowflake  *snowflake.Node
}

// NewAuthService 创建认证服务
func NewAuthService(userRepo *repository.UserRepository, tokenRepo *repository.TokenRepository, jwtService *jwt.Service, sf *snowflake.Node) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		jwtService: jwtService,
		snowflake:  sf,
	}
}

// Register 员工注册
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	// 角色缺省为旅行社代理
	if req.Role == "" {
		req.Role = model.RoleAgent
	}
	if !model.ValidRole(req.Role) {
		return nil, apperrors.ErrInvalidRole
	}

	// 检查用户名是否存在
	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.ErrUsernameExists
	}

	// 密码加密
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           s.snowflake.Generate().Int64(),
		Username:     req.Username,
		PasswordHash: string(passwordHash),
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		Status:       model.UserStatusNormal,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Login 员工登录
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	// 查询用户
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	// 检查用户状态
	if user.Status != model.UserStatusNormal {
		return nil, apperrors.ErrUserDisabled
	}

	// 生成 Token
	tokenPair, err := s.jwtService.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	// 清理旧登录态并保存新登录态
	if err := s.tokenRepo.DeleteOldToken(ctx, user.ID); err != nil {
		return nil, err
	}
	tokenInfo := &repository.UserTokenInfo{
		UserID:   user.ID,
		Username: user.Username,
		Name:     user.Name,
		Avatar:   user.Avatar,
		Role:     user.Role,
	}
	if err := s.tokenRepo.SaveToken(ctx, tokenInfo, tokenPair.AccessToken, s.jwtService.GetAccessExpire()); err != nil {
		return nil, err
	}

	return &LoginResponse{
		UserID:       user.ID,
		Name:         user.Name,
		Role:         user.Role,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
	}, nil
}

// Logout 登出，删除 Redis 登录态
func (s *AuthService) Logout(ctx context.Context, userID int64, accessToken string) error {
	return s.tokenRepo.DeleteToken(ctx, userID, accessToken)
}

// RefreshToken 刷新 Token
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	// 验证 Refresh Token
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrTokenInvalid
	}

	// 检查用户是否存在
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}

	// 检查用户状态
	if user.Status != model.UserStatusNormal {
		return nil, apperrors.ErrUserDisabled
	}

	// 生成新的 Token Pair 并更新登录态
	tokenPair, err := s.jwtService.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	if err := s.tokenRepo.DeleteOldToken(ctx, user.ID); err != nil {
		return nil, err
	}
	tokenInfo := &repository.UserTokenInfo{
		UserID:   user.ID,
		Username: user.Username,
		Name:     user.Name,
		Avatar:   user.Avatar,
		Role:     user.Role,
	}
	if err := s.tokenRepo.SaveToken(ctx, tokenInfo, tokenPair.AccessToken, s.jwtService.GetAccessExpire()); err != nil {
		return nil, err
	}

	return &LoginResponse{
		UserID:       user.ID,
		Name:         user.Name,
		Role:         user.Role,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
	}, nil
}
