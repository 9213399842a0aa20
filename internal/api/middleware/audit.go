package middleware

import (
	"fmt"
	"log"
	"net/http"

	"github.com/TheGojiOG/athena/internal/logging"
	"github.com/gin-gonic/gin"
)

// ActivityTypeAPIRequest marks activity rows written by Audit.
const ActivityTypeAPIRequest = "api.request"

// ActivityRecorder persists an audit activity.
type ActivityRecorder interface {
	LogActivity(activity *logging.Activity) error
}

// Audit records every mutating API request into the activity log. Reads are
// not recorded.
func Audit(recorder ActivityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if recorder == nil {
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := c.Writer.Status()
		errorMsg := ""
		if status >= 400 {
			errorMsg = http.StatusText(status)
		}

		operator, _ := c.Get(OperatorKey)

		err := recorder.LogActivity(&logging.Activity{
			ServerID:     c.Param("id"),
			ActivityType: ActivityTypeAPIRequest,
			Description:  fmt.Sprintf("%s %s", c.Request.Method, path),
			Metadata: map[string]interface{}{
				"status":   status,
				"operator": operator,
				"ip":       c.ClientIP(),
			},
			Success:      status < 400,
			ErrorMessage: errorMsg,
		})
		if err != nil {
			log.Printf("[Audit] Failed to record %s %s: %v", c.Request.Method, path, err)
		}
	}
}
