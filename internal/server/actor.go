package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/servicepoint/internal/authorization"
	obscontext "github.com/smallbiznis/servicepoint/internal/observability/context"
)

// Identity is terminated at the gateway, which forwards the verified caller
// in these headers.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromRequest(c)
		if ok {
			ctx := obscontext.WithActor(c.Request.Context(), actor.Role, actor.ID)
			c.Request = c.Request.WithContext(ctx)
		}

		if !s.cfg.Authz.Enabled || s.authzSvc == nil {
			c.Next()
			return
		}
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromRequest(c *gin.Context) (authorization.Actor, bool) {
	if c == nil || c.Request == nil {
		return authorization.Actor{}, false
	}
	actor := authorization.Actor{
		ID:   strings.TrimSpace(c.GetHeader(HeaderActorID)),
		Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
	}
	if actor.ID == "" || actor.Role == "" {
		return authorization.Actor{}, false
	}
	return actor, true
}
