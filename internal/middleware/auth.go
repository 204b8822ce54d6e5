package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
)

const UploadClaimsKey = "upload_claims"

// UploadToken authorizes a direct upload. The signed token comes from the
// "token" query parameter or a Bearer header and must name the exact
// pathname being written.
func UploadToken(signer *blob.TokenSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = strings.TrimSpace(parts[1])
			}
		}
		if tokenString == "" {
			abort(c, apperror.New(apperror.ErrCodeUnauthorized, "missing upload token"))
			return
		}

		// Tokens pasted into URLs are sometimes escaped twice.
		if decoded, err := url.QueryUnescape(tokenString); err == nil {
			tokenString = decoded
		}

		claims, err := signer.Verify(tokenString)
		if err != nil {
			message := "invalid upload token"
			if errors.Is(err, blob.ErrTokenExpired) {
				message = "upload token has expired"
			}
			abort(c, apperror.Wrap(err, apperror.ErrCodeUnauthorized, message))
			return
		}

		if blob.CleanPath(c.Param("pathname")) != claims.Pathname {
			abort(c, apperror.New(apperror.ErrCodeUnauthorized, "upload token does not match pathname"))
			return
		}

		c.Set(UploadClaimsKey, claims)
		c.Next()
	}
}

// UploadClaimsFrom returns the claims stored by UploadToken.
func UploadClaimsFrom(c *gin.Context) (*blob.UploadClaims, bool) {
	v, ok := c.Get(UploadClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*blob.UploadClaims)
	return claims, ok
}

func abort(c *gin.Context, appErr *apperror.AppError) {
	if appErr.Cause != nil {
		logger.Log.WithError(appErr.Cause).WithField("path", c.Request.URL.Path).Debug(appErr.Message)
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error: models.ErrorBody{Code: string(appErr.Code), Message: appErr.Message},
	})
}
