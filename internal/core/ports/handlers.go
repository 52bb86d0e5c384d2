package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	RegisterRoutes(router *gin.RouterGroup)
}
