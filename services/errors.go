package services

import "errors"

var (
	ErrNotConnected     = errors.New("platform is not connected")
	ErrNotYetPublished  = errors.New("article is not published on this platform")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrArticleNotFound  = errors.New("article not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrTagExists        = errors.New("tag already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownPlatform  = errors.New("unknown platform")
	ErrFeatureLocked    = errors.New("feature is not available on the current plan")
	ErrPlanLimitReached = errors.New("plan limit reached")
	ErrRetryInProgress  = errors.New("retry already claimed")
)
